package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrOpenFailed indicates sealed data failed authentication.
var ErrOpenFailed = errors.New("sealed data failed authentication")

// ErrInvalidKey indicates a key of the wrong size.
var ErrInvalidKey = errors.New("invalid key size")

// ErrSealerWiped indicates a sealer used after its key was erased.
var ErrSealerWiped = errors.New("sealer key wiped")

// Sealer protects content at rest with authenticated encryption.
type Sealer interface {
	// Seal encrypts plaintext and returns nonce || ciphertext.
	Seal(plaintext []byte) ([]byte, error)
	// Open authenticates and decrypts data produced by Seal.
	Open(sealed []byte) ([]byte, error)
}

// WipingSealer is a Sealer whose key can be erased when it is no longer needed.
type WipingSealer interface {
	Sealer
	Wipe()
}

var (
	_ WipingSealer = (*SecretboxSealer)(nil)
	_ WipingSealer = (*AESGCMSealer)(nil)
)

// SecretboxSealer seals with NaCl secretbox (XSalsa20-Poly1305).
type SecretboxSealer struct {
	key [32]byte
}

// NewSecretboxSealer creates a sealer from a 32-byte key.
func NewSecretboxSealer(key []byte) (*SecretboxSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: secretbox needs 32 bytes, got %d", ErrInvalidKey, len(key))
	}
	s := &SecretboxSealer{}
	copy(s.key[:], key)
	return s, nil
}

// Seal implements Sealer.
func (s *SecretboxSealer) Seal(plaintext []byte) ([]byte, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		NewLogger("SecretboxSealer.Seal").WithError(err, "rand", "nonce").Error("Nonce generation failed")
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, (*[24]byte)(&nonce), &s.key), nil
}

// Open implements Sealer.
func (s *SecretboxSealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < len(Nonce{})+secretbox.Overhead {
		return nil, fmt.Errorf("%w: %d bytes is shorter than nonce and tag", ErrOpenFailed, len(sealed))
	}
	var nonce Nonce
	copy(nonce[:], sealed[:len(nonce)])

	out, ok := secretbox.Open(nil, sealed[len(nonce):], (*[24]byte)(&nonce), &s.key)
	if !ok {
		return nil, ErrOpenFailed
	}
	return out, nil
}

// Wipe erases the key.
func (s *SecretboxSealer) Wipe() {
	ZeroBytes(s.key[:])
}

// AESGCMIVSize is the IV size used by AESGCMSealer.
const AESGCMIVSize = 16

// AESGCMSealer seals with AES-GCM using a 16-byte IV, the layout OTRDATA
// clients use for encrypted media.
type AESGCMSealer struct {
	mu   sync.RWMutex
	aead cipher.AEAD
}

// NewAESGCMSealer creates a sealer from a 16, 24 or 32 byte key.
func NewAESGCMSealer(key []byte) (*AESGCMSealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, AESGCMIVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AESGCMSealer{aead: aead}, nil
}

// Seal implements Sealer.
func (s *AESGCMSealer) Seal(plaintext []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.aead == nil {
		return nil, ErrSealerWiped
	}

	iv := make([]byte, AESGCMIVSize, AESGCMIVSize+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}
	return s.aead.Seal(iv, iv, plaintext, nil), nil
}

// Open implements Sealer.
func (s *AESGCMSealer) Open(sealed []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.aead == nil {
		return nil, ErrSealerWiped
	}

	if len(sealed) < AESGCMIVSize+s.aead.Overhead() {
		return nil, fmt.Errorf("%w: %d bytes is shorter than iv and tag", ErrOpenFailed, len(sealed))
	}
	out, err := s.aead.Open(nil, sealed[:AESGCMIVSize], sealed[AESGCMIVSize:], nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return out, nil
}

// Wipe drops the cipher and its expanded key. Later Seal and Open calls fail
// with ErrSealerWiped.
func (s *AESGCMSealer) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aead = nil
}
