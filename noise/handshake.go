package noise

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"github.com/opd-ai/otrdata/crypto"
	"github.com/sirupsen/logrus"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrOutOfTurn indicates a message was written or read in the wrong order
	ErrOutOfTurn = errors.New("handshake message out of turn")
)

// Role defines whether we're initiating or responding to the handshake.
type Role uint8

const (
	// Initiator sends the first handshake message.
	Initiator Role = iota
	// Responder answers the initiator.
	Responder
)

// String returns the role name.
func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// cipherSuite is shared by every handshake in this package.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// XXHandshake runs the Noise XX pattern. Neither side needs the other's
// static key in advance; both learn and authenticate it during the exchange.
//
//	-> e
//	<- e, ee, s, es
//	-> s, se
type XXHandshake struct {
	role        Role
	state       *noise.HandshakeState
	step        int
	session     *Session
	localPubKey []byte
}

// NewXXHandshake creates a handshake for the given static identity.
func NewXXHandshake(static *crypto.KeyPair, role Role) (*XXHandshake, error) {
	if static == nil {
		return nil, errors.New("static key pair is required")
	}

	staticKey := noise.DHKey{
		Private: make([]byte, 32),
		Public:  make([]byte, 32),
	}
	copy(staticKey.Private, static.Private[:])
	copy(staticKey.Public, static.Public[:])

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create XX handshake state: %w", err)
	}

	return &XXHandshake{
		role:        role,
		state:       hs,
		localPubKey: staticKey.Public,
	}, nil
}

// writesStep reports whether this side writes the message at the current step.
func (xx *XXHandshake) writesStep() bool {
	// Initiator writes messages 0 and 2, responder writes message 1.
	return (xx.step%2 == 0) == (xx.role == Initiator)
}

// WriteMessage produces the next handshake message carrying payload.
func (xx *XXHandshake) WriteMessage(payload []byte) ([]byte, bool, error) {
	if xx.session != nil {
		return nil, false, ErrHandshakeComplete
	}
	if !xx.writesStep() {
		return nil, false, fmt.Errorf("%w: %s cannot write message %d", ErrOutOfTurn, xx.role, xx.step)
	}

	message, cs1, cs2, err := xx.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("XX handshake write failed: %w", err)
	}
	xx.step++
	xx.finish(cs1, cs2)

	return message, xx.session != nil, nil
}

// ReadMessage consumes the peer's next handshake message and returns its payload.
func (xx *XXHandshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if xx.session != nil {
		return nil, false, ErrHandshakeComplete
	}
	if xx.writesStep() {
		return nil, false, fmt.Errorf("%w: %s cannot read message %d", ErrOutOfTurn, xx.role, xx.step)
	}

	payload, cs1, cs2, err := xx.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("XX handshake read failed: %w", err)
	}
	xx.step++
	xx.finish(cs1, cs2)

	return payload, xx.session != nil, nil
}

// finish builds the session once the final message produced cipher states.
// cs1 always protects initiator-to-responder traffic.
func (xx *XXHandshake) finish(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}

	send, recv := cs1, cs2
	if xx.role == Responder {
		send, recv = cs2, cs1
	}
	xx.session = newSession(send, recv, xx.state.PeerStatic())

	logrus.WithFields(logrus.Fields{
		"function": "XXHandshake.finish",
		"role":     xx.role.String(),
	}).WithFields(crypto.SecureFieldHash(xx.state.PeerStatic(), "remote_static")).Debug("Noise XX handshake complete")
}

// IsComplete returns whether the XX handshake is complete.
func (xx *XXHandshake) IsComplete() bool {
	return xx.session != nil
}

// Session returns the transport session established by the handshake.
func (xx *XXHandshake) Session() (*Session, error) {
	if xx.session == nil {
		return nil, ErrHandshakeNotComplete
	}
	return xx.session, nil
}

// LocalStaticKey returns a copy of our static public key.
func (xx *XXHandshake) LocalStaticKey() []byte {
	key := make([]byte, len(xx.localPubKey))
	copy(key, xx.localPubKey)
	return key
}

// Establish runs a complete XX exchange between two local identities and
// returns the initiator and responder sessions. It is used to set up
// loopback channels where both ends live in the same process.
func Establish(initiatorKeys, responderKeys *crypto.KeyPair) (*Session, *Session, error) {
	ini, err := NewXXHandshake(initiatorKeys, Initiator)
	if err != nil {
		return nil, nil, err
	}
	resp, err := NewXXHandshake(responderKeys, Responder)
	if err != nil {
		return nil, nil, err
	}

	for !ini.IsComplete() || !resp.IsComplete() {
		from, to := ini, resp
		if !ini.writesStep() {
			from, to = resp, ini
		}
		msg, _, err := from.WriteMessage(nil)
		if err != nil {
			return nil, nil, err
		}
		if _, _, err := to.ReadMessage(msg); err != nil {
			return nil, nil, err
		}
	}

	return ini.session, resp.session, nil
}
