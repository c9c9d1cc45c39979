package types

import "context"

// Hooks defines callbacks for session lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// to avoid blocking the run loop. Hooks receive the session's lifecycle
// context, which is cancelled during shutdown.
//
// Hook execution behavior:
//   - Hooks run concurrently and may not complete before Stop() returns
//   - Hook errors are logged but never fail session operations
//
// Best practices:
//   - Complete quickly (< 1 second recommended)
//   - Respect context cancellation
//   - Make hooks idempotent (may be called multiple times)
type Hooks struct {
	// OnRoleChanged is called when the local replica's role changes.
	OnRoleChanged func(ctx context.Context, from, to Role) error

	// OnCapacityExhausted is called when a joining member could not be
	// assigned because no free slot exists. This indicates the pool is
	// undersized; it is never retried automatically.
	OnCapacityExhausted func(ctx context.Context, member MemberID) error

	// OnError is called when a recoverable error occurs.
	OnError func(ctx context.Context, err error) error
}
