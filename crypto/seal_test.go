package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSealers(t *testing.T) map[string]Sealer {
	t.Helper()

	box, err := NewSecretboxSealer(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	gcm, err := NewAESGCMSealer(bytes.Repeat([]byte{9}, 16))
	require.NoError(t, err)

	return map[string]Sealer{"secretbox": box, "aes-gcm": gcm}
}

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("file content kept at rest")

	for name, s := range testSealers(t) {
		t.Run(name, func(t *testing.T) {
			sealed, err := s.Seal(plaintext)
			require.NoError(t, err)
			assert.NotContains(t, string(sealed), string(plaintext))

			opened, err := s.Open(sealed)
			require.NoError(t, err)
			assert.Equal(t, plaintext, opened)
		})
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	for name, s := range testSealers(t) {
		t.Run(name, func(t *testing.T) {
			a, err := s.Seal([]byte("same"))
			require.NoError(t, err)
			b, err := s.Seal([]byte("same"))
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	for name, s := range testSealers(t) {
		t.Run(name, func(t *testing.T) {
			sealed, err := s.Seal([]byte("payload"))
			require.NoError(t, err)

			sealed[len(sealed)-1] ^= 0x01
			_, err = s.Open(sealed)
			assert.ErrorIs(t, err, ErrOpenFailed)

			_, err = s.Open([]byte{1, 2, 3})
			assert.ErrorIs(t, err, ErrOpenFailed)
		})
	}
}

func TestSealerKeySizes(t *testing.T) {
	_, err := NewSecretboxSealer(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewAESGCMSealer(make([]byte, 15))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewAESGCMSealer(make([]byte, 32))
	assert.NoError(t, err)
}

func TestSecretboxWipe(t *testing.T) {
	s, err := NewSecretboxSealer(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	s.Wipe()
	assert.Equal(t, [32]byte{}, s.key)
}

func TestAESGCMWipe(t *testing.T) {
	s, err := NewAESGCMSealer(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	sealed, err := s.Seal([]byte("x"))
	require.NoError(t, err)

	s.Wipe()
	_, err = s.Seal([]byte("x"))
	assert.ErrorIs(t, err, ErrSealerWiped)
	_, err = s.Open(sealed)
	assert.ErrorIs(t, err, ErrSealerWiped)
}
