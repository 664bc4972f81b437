// Package testing provides an in-memory record channel for deterministic
// testing of otrdata.
//
// # Overview
//
// [SimulatedChannel] implements interfaces.IRecordChannel without any
// network or encryption. Every send lands in a delivery log that tests can
// inspect:
//
//	ch := testing.NewSimulatedChannel(nil)
//	defer ch.Close()
//	_ = ch.SendRecords(records, peer, nil)
//	log := ch.GetDeliveryLog()
//
// # Linked Channels
//
// Two simulated channels can be linked so that records sent on one are
// delivered to the handler of the other, with the peer flipped to the
// receiver's perspective:
//
//	a, b := testing.NewSimulatedChannel(nil), testing.NewSimulatedChannel(nil)
//	testing.Link(a, b)
//	b.SetHandler(func(data []byte, peer interfaces.Peer, tag any) { ... })
//
// Delivery runs on a per-channel goroutine in send order.
//
// # Failure Injection
//
// [SimulatedChannel.SetFailing] makes every send fail with
// [ErrSimulatedFailure] until switched off.
//
// This package is not intended for production use. Functions log a
// "SIMULATION FUNCTION" warning when constructed.
package testing
