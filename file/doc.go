// Package file implements in-band file transfer over an encrypted record
// channel.
//
// # Overview
//
// The sender announces a file with an OFFER carrying its name, length, MIME
// type and SHA-1 digest. The receiver accepts it and pulls the content in
// fixed-size chunks with ranged GET requests, keeping a bounded number of
// requests in flight. Once every chunk has arrived the content is verified
// against the announced digest.
//
// Every message travels as a tunneled HTTP-like request or response inside
// one TLV record:
//
//	OFFER otr-in-band:/storage/<id> HTTP/1.1
//	GET otr-in-band:/storage/<id> HTTP/1.1      Range: bytes=0-16383
//	HTTP/1.1 200 OK                             Request-Id: <request id>
//
// # Transfer Manager
//
// [Manager] owns every transfer and is the only entry point:
//
//	m, err := file.NewManager(channel, file.DefaultConfig())
//	id, err := m.SendFile("report.pdf", content, peer, nil)
//
//	// on the receiving side, feed records from the channel
//	m.OnRecordsReceived(records, peer, tag)
//
//	for ev := range m.Events() {
//	    switch ev.Kind {
//	    case file.EventOffered:
//	        m.AcceptIncomingTransfer(ev.Transfer.ID)
//	    case file.EventCompleted:
//	        data, _ := m.IncomingData(ev.Transfer.ID)
//	    }
//	}
//
// # Transfer States
//
//	StateAnnounced -> StateAccepted -> StateInProgress -> StateCompleted
//	                                                   -> StateFailed
//	                                                   -> StateCancelled
//
// An outgoing transfer moves to StateAccepted when the receiver acknowledges
// the offer and to StateInProgress on the first range request. It completes
// once every byte has been served at least once and keeps answering repeated
// requests until it is released with Cancel.
//
// # Fetch Scheduling
//
// Each chunk request carries a fresh Request-Id and a timer. A timeout or a
// malformed answer re-requests the same range under a new id. When a range
// has been tried [Config.MaxFetchAttempts] times the transfer fails with
// [ReasonFetchExhausted] and its partial data is discarded.
//
// # Events
//
// Notifications are queued while the manager lock is held, so for a single
// transfer they arrive in the order the state changed. A dispatcher
// goroutine drains the queue into [Manager.Events]; a slow consumer never
// blocks the transfer logic.
//
// # Thread Safety
//
// All Manager methods are safe for concurrent use. Records are never sent
// while the manager lock is held.
package file
