// Package otrdata implements in-band file transfer over an encrypted,
// message-oriented channel.
//
// The channel only needs to move short opaque messages between two peers.
// On top of it otrdata runs a chunked, integrity-verified transfer protocol:
// files are announced with an OFFER, pulled by the receiver with ranged GET
// requests and checked against the SHA-1 digest announced in the offer. Every
// request and response travels as a tunneled HTTP-like message inside one TLV
// record.
//
// # Getting Started
//
// Create a handler around a record channel and react to transfer events:
//
//	opts := otrdata.NewOptions()
//	otrdata.LoadOptionsFromEnv(opts)
//
//	h, err := otrdata.New(opts, channel)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close()
//
//	go func() {
//	    for ev := range h.Events() {
//	        switch ev.Kind {
//	        case file.EventOffered:
//	            h.AcceptIncomingTransfer(ev.Transfer.ID)
//	        case file.EventCompleted:
//	            data, _ := h.IncomingData(ev.Transfer.ID)
//	            fmt.Printf("received %s (%d bytes)\n", ev.Transfer.FileName, len(data))
//	        }
//	    }
//	}()
//
//	id, err := h.SendFile("report.pdf", content, peer, nil)
//
// If the channel does not deliver inbound messages itself, pass every
// received TLV batch to [DataHandler.ReceiveMessage].
//
// Transfer ids are chosen by the offering side, so two peers may announce the
// same one. The id-only calls then report [file.ErrAmbiguousTransfer]; use
// the peer-scoped variants such as [DataHandler.AcceptIncomingTransferFrom]
// with ev.Transfer.Peer.
//
// # Local Transfers
//
// [NewLoopbackPair] wires two handlers through an in-process link secured
// with a Noise XX session, which is useful for demos and integration tests:
//
//	alice, bob, err := otrdata.NewLoopbackPair(opts, aliceKeys, bobKeys)
//
// # Configuration
//
// The scheduler can be tuned through [Options] or environment variables:
//
//   - OTRDATA_CHUNK_SIZE: bytes per range request
//   - OTRDATA_MAX_CONCURRENT_FETCHES: requests in flight per transfer
//   - OTRDATA_FETCH_TIMEOUT_MS: time before an unanswered request is retried
//   - OTRDATA_FETCH_ATTEMPTS: requests per range before the transfer fails
//   - OTRDATA_AT_REST_CIPHER: "secretbox" or "aes-gcm" for Options.AtRestKey
//
// # Subpackages
//
//   - tlv: record codec
//   - tunnel: tunneled message codec and parser
//   - file: transfer state machine, fetch scheduler and manager
//   - crypto: content digests and at-rest sealing
//   - noise, real, factory, testing: channel implementations
package otrdata
