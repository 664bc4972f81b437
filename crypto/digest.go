package crypto

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// DigestAlgorithm names the content digest carried in File-Hash-SHA1 headers.
const DigestAlgorithm = "SHA1"

// DigestSize is the length of a hex-encoded digest.
const DigestSize = sha1.Size * 2

// Digest returns the lowercase hex SHA-1 digest of content. OTRDATA peers
// announce and verify file integrity with this value.
func Digest(content []byte) string {
	sum := sha1.Sum(content)
	return hex.EncodeToString(sum[:])
}

// VerifyDigest reports whether content hashes to want. The comparison is
// case-insensitive on the hex encoding and constant time on the digest bytes.
func VerifyDigest(content []byte, want string) bool {
	wantBytes, err := hex.DecodeString(strings.TrimSpace(want))
	if err != nil || len(wantBytes) != sha1.Size {
		return false
	}
	sum := sha1.Sum(content)
	return subtle.ConstantTimeCompare(sum[:], wantBytes) == 1
}

// ValidDigest reports whether s looks like a hex digest of the right size.
func ValidDigest(s string) bool {
	if len(s) != DigestSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
