// Package election implements the coordinator lease over NATS JetStream KV.
//
// Exactly one replica of a session holds the coordinator lease at a time.
// The lease is a single KV key in a TTL bucket, manipulated only through
// atomic operations:
//
//   - Create acquires the lease if the key does not exist
//   - Update with the held revision renews it
//   - Delete releases it for immediate failover
//
// If the holder crashes, the bucket TTL expires the key and another
// replica acquires it on its next attempt. The lease can therefore change
// hands without notice, which is exactly the handoff case the session's
// verification sweep exists for: a new coordinator must assume the
// previous one had in-flight mutations and cross-check the table against
// the live roster.
//
// The package deals only in lease mechanics. Mapping lease ownership to
// the session's coordinator role, and reacting to rising edges, is the
// roster's job.
package election
