package types

import "context"

// Transport is the replication collaborator consumed by the session core.
//
// The only wire state is the whole assignment table snapshot; delivery may
// be coalesced, duplicated, or reordered. Implementations can be backed by:
//   - NATS JetStream KV (built-in)
//   - Any last-write-wins replicated store
//   - An in-memory loopback bus for tests
type Transport interface {
	// PublishSnapshot replicates the snapshot to all replicas, including
	// the local one. An error means the publish did not take effect and
	// will be retried by the scheduler.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - snap: Full assignment table snapshot
	//
	// Returns:
	//   - error: Publish error (nil once durable from the publisher's view)
	PublishSnapshot(ctx context.Context, snap Snapshot) error

	// SubscribeSnapshots registers a callback for received snapshots.
	//
	// The callback may be invoked from transport-internal goroutines and
	// receives a snapshot the subscriber may retain.
	//
	// Returns:
	//   - func(): Unsubscribe function; safe to call more than once
	SubscribeSnapshots(fn func(Snapshot)) (unsubscribe func())

	// IsCongested reports whether the transport is currently congested.
	// The scheduler defers publishes while congested, up to a bounded
	// number of attempts.
	IsCongested() bool
}
