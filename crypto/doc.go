// Package crypto implements the cryptographic helpers used by otrdata.
//
// File transfers carry a content digest in every offer so the receiver can
// verify what it reassembled. Completed content may also be kept sealed in
// memory until the application collects it.
//
// # Content Digests
//
// Offers announce the SHA-1 digest of the file in hex, which is the value
// OTRDATA peers expect in the File-Hash-SHA1 header:
//
//	sum := crypto.Digest(content)
//	if !crypto.VerifyDigest(received, sum) {
//	    // reject the transfer
//	}
//
// # Sealing Content at Rest
//
// A [Sealer] provides authenticated encryption for data held after a transfer
// completes. Two implementations are available:
//
//   - [SecretboxSealer]: NaCl secretbox with a random 24-byte nonce prefix
//   - [AESGCMSealer]: AES-GCM with a 16-byte IV prefix
//
// Keys for at-rest sealing are derived with HKDF-SHA256:
//
//	sealer, err := crypto.NewAtRestSealer(secret)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sealer.Wipe()
//
// [NewAtRestGCMSealer] does the same for AES-GCM. Both return a
// [WipingSealer].
//
// # Key Pairs
//
// [KeyPair] holds the Curve25519 static identity used by the noise channel:
//
//	keyPair, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer crypto.WipeKeyPair(keyPair)
//
// # Secure Memory Handling
//
// Sensitive buffers should be wiped after use with [SecureWipe] or [ZeroBytes].
//
// # Thread Safety
//
// All functions are safe for concurrent use. Sealers may be shared between
// goroutines; wipe them only once nothing seals or opens with them.
package crypto
