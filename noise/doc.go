// Package noise establishes the Noise-secured session used by the loopback
// record channel.
//
// It wraps the flynn/noise library with the XX pattern, ChaCha20-Poly1305,
// SHA256 and Curve25519. Neither side needs to know the other's static key
// before the exchange:
//
//	-> e
//	<- e, ee, s, es
//	-> s, se
//
// After the third message both sides hold a [Session] with one cipher state
// per direction:
//
//	alice, bob, err := noise.Establish(aliceKeys, bobKeys)
//	ct, _ := alice.Encrypt(frame)
//	pt, _ := bob.Decrypt(ct)
//
// Transport messages must be decrypted in the order they were encrypted.
package noise
