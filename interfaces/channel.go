package interfaces

import (
	"fmt"
	"time"

	"github.com/opd-ai/otrdata/tlv"
)

// Peer identifies the remote end of a conversation on the secure channel.
type Peer struct {
	Account  string
	User     string
	Protocol string
}

// String returns "account -> user (protocol)" for logging.
func (p Peer) String() string {
	return fmt.Sprintf("%s -> %s (%s)", p.Account, p.User, p.Protocol)
}

// Remote returns the peer as seen from the other side of the conversation.
func (p Peer) Remote() Peer {
	return Peer{Account: p.User, User: p.Account, Protocol: p.Protocol}
}

// IRecordChannel sends TLV records to a peer over an established encrypted
// session. Implementations deliver the records of one call together and in
// order; the tag is opaque caller context passed through untouched.
type IRecordChannel interface {
	SendRecords(records []tlv.Record, peer Peer, tag any) error
}

// MessageHandler receives a decrypted record batch from a peer.
type MessageHandler func(data []byte, peer Peer, tag any)

// IMessageLink carries opaque frames between two endpoints. It is the
// lowest layer below a record channel and has no notion of encryption.
type IMessageLink interface {
	// Send transmits one frame to the peer.
	Send(peer Peer, frame []byte) error

	// SetReceiver installs the callback invoked for every inbound frame.
	SetReceiver(fn func(from Peer, frame []byte))

	// Close shuts down the link.
	Close() error

	// IsConnected returns true while frames can be sent.
	IsConnected() bool
}

// ChannelConfig holds configuration for record channel implementations.
type ChannelConfig struct {
	// UseSimulation selects the in-memory channel instead of the noise channel.
	UseSimulation bool

	// RetryAttempts is the number of link sends tried before giving up.
	RetryAttempts int

	// RetryBackoff is the base delay between attempts; attempt n waits n times it.
	RetryBackoff time.Duration
}

// IDuplexChannel is a record channel that also delivers inbound batches to
// a handler.
type IDuplexChannel interface {
	IRecordChannel

	// SetHandler installs the callback for inbound record batches.
	SetHandler(h MessageHandler)

	// Close releases the channel and its link.
	Close() error

	// IsSimulation returns true for in-memory implementations.
	IsSimulation() bool
}
