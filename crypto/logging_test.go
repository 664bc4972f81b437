package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	out, formatter, level := logrus.StandardLogger().Out, logrus.StandardLogger().Formatter, logrus.GetLevel()
	logrus.SetOutput(&buf)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logrus.SetOutput(out)
		logrus.SetFormatter(formatter)
		logrus.SetLevel(level)
	})
	return &buf
}

func TestLoggerHelperFields(t *testing.T) {
	buf := captureLogs(t)

	NewLogger("Seal").
		WithField("size", 12).
		WithFields(logrus.Fields{"mode": "secretbox"}).
		WithError(errors.New("boom"), "rand", "nonce").
		Warn("something failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Seal", entry["function"])
	assert.Equal(t, "crypto", entry["package"])
	assert.Equal(t, float64(12), entry["size"])
	assert.Equal(t, "secretbox", entry["mode"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "rand", entry["error_type"])
	assert.Equal(t, "nonce", entry["operation"])
	assert.Equal(t, "warning", entry["level"])
}

func TestSecureFieldHash(t *testing.T) {
	fields := SecureFieldHash([]byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5}, "key")
	assert.Equal(t, "deadbeef01020304...", fields["key_preview"])
	assert.Equal(t, 9, fields["key_size"])

	fields = SecureFieldHash(nil, "key")
	assert.Equal(t, "nil", fields["key_preview"])
}
