package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	a, err := DeriveKey([]byte("shared secret"), []byte("salt"), InfoAtRest, 32)
	require.NoError(t, err)
	b, err := DeriveKey([]byte("shared secret"), []byte("salt"), InfoAtRest, 32)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	c, err := DeriveKey([]byte("shared secret"), []byte("salt"), "other purpose", 32)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDeriveKeyRejectsBadInput(t *testing.T) {
	_, err := DeriveKey(nil, nil, InfoAtRest, 32)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DeriveKey([]byte("s"), nil, InfoAtRest, 0)
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = DeriveKey([]byte("s"), nil, InfoAtRest, 255*32+1)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNewAtRestSealer(t *testing.T) {
	s1, err := NewAtRestSealer([]byte("secret"))
	require.NoError(t, err)
	s2, err := NewAtRestSealer([]byte("secret"))
	require.NoError(t, err)

	sealed, err := s1.Seal([]byte("data"))
	require.NoError(t, err)
	opened, err := s2.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), opened)

	_, err = NewAtRestSealer(nil)
	assert.Error(t, err)
}

func TestNewAtRestGCMSealer(t *testing.T) {
	gcm, err := NewAtRestGCMSealer([]byte("secret"))
	require.NoError(t, err)
	box, err := NewAtRestSealer([]byte("secret"))
	require.NoError(t, err)

	sealed, err := gcm.Seal([]byte("data"))
	require.NoError(t, err)
	opened, err := gcm.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), opened)

	_, err = box.Open(sealed)
	assert.ErrorIs(t, err, ErrOpenFailed, "ciphers do not open each other's output")

	_, err = NewAtRestGCMSealer(nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
