// Package factory creates record channel implementations for otrdata.
//
// The factory switches between the in-memory simulated channel (package
// testing) and the Noise-secured channel (package real) without changing
// consuming code.
//
// # Configuration
//
// Defaults can be overridden through environment variables:
//   - OTRDATA_USE_SIMULATION: "true" or "false"
//   - OTRDATA_RETRY_ATTEMPTS: send attempts per record batch, 1 to 100
//   - OTRDATA_RETRY_BACKOFF_MS: base backoff in milliseconds, 0 to 60000
//
// Unparsable or out-of-range values are logged and ignored.
//
// # Usage
//
//	f := factory.NewChannelFactory()
//	alice, bob, err := f.CreateLoopbackPair(aliceKeys, bobKeys)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer alice.Close()
//	defer bob.Close()
//
// Tests can request a simulated channel directly:
//
//	ch := f.CreateSimulationForTesting(factory.WithRetryAttempts(1))
package factory
