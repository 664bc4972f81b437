// Package interfaces defines the collaborator contracts of otrdata.
//
// The file transfer core never touches the encrypted session directly. It
// hands TLV records to an [IRecordChannel] and is fed received record batches
// by the host application.
//
// # Core Interfaces
//
// [IRecordChannel] is what the transfer manager sends through:
//
//	err := ch.SendRecords([]tlv.Record{rec}, peer, tag)
//	if err != nil {
//	    // peer unavailable
//	}
//
// [IMessageLink] is the frame transport underneath a concrete channel. The
// noise channel in package real encrypts record batches and ships them over a
// link; tests and the loopback example use an in-process link.
//
// # Peers
//
// A [Peer] names a conversation as (account, user, protocol). It is
// comparable and can key maps. [Peer.Remote] flips the perspective so the
// receiving side can address replies.
//
// # Configuration
//
// [ChannelConfig] selects and tunes channel implementations; see package
// factory for environment overrides.
package interfaces
