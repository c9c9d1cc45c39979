// Package roster provides the NATS-backed member roster and coordinator
// election.
//
// Each replica publishes a presence heartbeat into a TTL KV bucket keyed
// by its member id. Every replica watches that bucket (with a polling
// fallback) and synthesizes join/leave notifications from the keys that
// appear and expire. A member whose process crashes simply stops
// heartbeating; its key expires after the TTL and the leave is observed
// by everyone without any explicit departure message.
//
// The coordinator role is a lease on a second KV bucket: replicas attempt
// an atomic Create on a well-known key, the winner renews periodically,
// and a crashed coordinator fails over when the bucket TTL expires the
// key. Role changes surface through RosterListener.OnRoleChanged, which
// the session core turns into its handoff verification sweep.
//
// Presence and role detection are deliberately lossy: duplicates, missed
// leaves and reordering are all possible, and all tolerated by the
// session core's reconciliation and sweep logic.
package roster
