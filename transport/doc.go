// Package transport provides the NATS JetStream KV snapshot transport.
//
// The whole assignment table is the only replicated state. The coordinator
// writes each snapshot to a single KV key; every replica (the coordinator
// included) watches that key and reconciles against whatever it last read.
// KV semantics give last-write-wins with coalescing under load, which is
// exactly what the reconciliation model tolerates: intermediate snapshots
// may be skipped, the latest one always wins.
//
// Congestion is derived locally from the NATS connection: a disconnected
// or reconnecting client, or an outbound buffer above the configured
// threshold, reports congested so the publish scheduler defers
// non-essential writes.
package transport
