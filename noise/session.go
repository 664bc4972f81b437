package noise

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"
)

// ErrDecryptFailed indicates a transport message failed authentication.
var ErrDecryptFailed = errors.New("noise transport message failed authentication")

// Session holds the transport cipher states produced by a completed
// handshake. Encrypt and Decrypt each advance their own nonce counter, so
// the peer must decrypt messages in the order they were encrypted.
type Session struct {
	sendMu sync.Mutex
	send   *noise.CipherState

	recvMu sync.Mutex
	recv   *noise.CipherState

	remoteStatic []byte
}

func newSession(send, recv *noise.CipherState, remoteStatic []byte) *Session {
	s := &Session{send: send, recv: recv}
	s.remoteStatic = append([]byte(nil), remoteStatic...)
	return s
}

// Encrypt seals plaintext with the next send nonce.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	out, err := s.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("noise encrypt failed: %w", err)
	}
	return out, nil
}

// Decrypt opens ciphertext with the next receive nonce.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	out, err := s.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return out, nil
}

// RemoteStatic returns a copy of the peer's authenticated static public key.
func (s *Session) RemoteStatic() []byte {
	return append([]byte(nil), s.remoteStatic...)
}
