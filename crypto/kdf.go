package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Info strings separating keys derived from the same secret.
const (
	InfoAtRest    = "otrdata at-rest v1"
	InfoAtRestGCM = "otrdata at-rest aes-gcm v1"
)

// DeriveKey expands secret into a key of size bytes with HKDF-SHA256.
func DeriveKey(secret, salt []byte, info string, size int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidKey)
	}
	if size <= 0 || size > 255*sha256.Size {
		return nil, fmt.Errorf("%w: cannot derive %d bytes", ErrInvalidKey, size)
	}

	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("hkdf expansion failed: %w", err)
	}
	return key, nil
}

// NewAtRestSealer derives a secretbox key from secret and returns a sealer for
// content kept in memory after a transfer completes. The derived key material
// is wiped once copied into the sealer.
func NewAtRestSealer(secret []byte) (*SecretboxSealer, error) {
	key, err := DeriveKey(secret, nil, InfoAtRest, 32)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)

	NewLogger("NewAtRestSealer").WithField("key_size", len(key)).Debug("Derived at-rest key")
	return NewSecretboxSealer(key)
}

// NewAtRestGCMSealer derives an AES-256 key from secret and returns an
// AES-GCM sealer for content kept in memory after a transfer completes.
func NewAtRestGCMSealer(secret []byte) (*AESGCMSealer, error) {
	key, err := DeriveKey(secret, nil, InfoAtRestGCM, 32)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)

	NewLogger("NewAtRestGCMSealer").WithField("key_size", len(key)).Debug("Derived at-rest key")
	return NewAESGCMSealer(key)
}
