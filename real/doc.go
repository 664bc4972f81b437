// Package real provides the production record channel of otrdata.
//
// [NoiseChannel] implements interfaces.IRecordChannel by encoding each
// record batch with the TLV codec, encrypting it with a noise.Session and
// sending it as one frame over an interfaces.IMessageLink. Failed sends are
// retried with linear backoff; the same ciphertext is resent so the
// receiver's nonce sequence stays intact.
//
//	ini, resp, _ := noise.Establish(aliceKeys, bobKeys)
//	la, lb := real.NewLoopbackLinkPair()
//	alice := real.NewNoiseChannel(la, ini, cfg)
//	bob := real.NewNoiseChannel(lb, resp, cfg)
//	bob.SetHandler(handler.ReceiveMessage)
//
// Inbound frames that fail authentication are dropped and counted.
//
// [LoopbackLink] is an in-process link for running both ends of a
// conversation in one program.
//
// # Deterministic Testing
//
// Retry delays go through a [Sleeper] that tests can replace with
// [NoiseChannel.SetSleeper].
package real
