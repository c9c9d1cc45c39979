// Package testing provides test utilities for the slotpool library.
//
// It follows Go's convention of offering testing helpers in a dedicated
// package (similar to net/http/httptest). Import it under a distinct name
// to avoid clashing with the standard testing package:
//
//	import slotpooltest "github.com/arloliu/slotpool/testing"
//
// Key utilities:
//   - NewTestLogger: Logger that writes through t.Logf
//   - FakeRoster: Scripted in-memory roster with manual join/leave/role control
//   - NewLoopbackBus: In-memory snapshot transport with congestion and drop
//     controls, shared by any number of replicas
//   - StartEmbeddedNATS: In-process NATS server with JetStream for testing
//     the NATS-backed roster and transport
//   - CreateJetStreamKV: Convenience wrapper for KV bucket creation
package testing
