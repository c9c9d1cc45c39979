package election

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Common errors for lease operations.
var (
	ErrNotHolder = errors.New("not the lease holder")
	ErrLeaseLost = errors.New("coordinator lease was lost")
)

// Lease is the coordinator lease for one session, backed by a NATS KV key.
//
// Acquisition uses the atomic Create operation, renewal uses Update with
// the revision obtained at acquisition, and release deletes the key. The
// bucket's TTL bounds how long a crashed holder blocks failover.
//
// All fields are protected by mu for concurrent access.
type Lease struct {
	kv  jetstream.KeyValue
	key string

	mu       sync.RWMutex
	holderID string
	revision uint64
	held     bool
}

// NewLease creates a lease agent over the given KV bucket and key.
//
// The bucket should carry a short TTL (10-30s) so a crashed coordinator
// fails over automatically.
//
// Parameters:
//   - kv: JetStream KV bucket for coordination
//   - key: Key name for the lease claim (e.g., "coordinator")
//
// Returns:
//   - *Lease: New lease agent, not holding the lease
//
// Example:
//
//	kv, _ := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
//	    Bucket: "slotpool-election",
//	    TTL:    15 * time.Second,
//	})
//	lease := election.NewLease(kv, "coordinator")
func NewLease(kv jetstream.KeyValue, key string) *Lease {
	return &Lease{
		kv:  kv,
		key: key,
	}
}

// Acquire attempts to take or keep the lease for the given replica.
//
// If this agent already holds the lease it renews instead; a failed
// renewal falls back to a fresh acquisition attempt. Returning false
// with a nil error means another replica holds the lease, which is the
// steady state for followers.
//
// Parameters:
//   - ctx: Context for timeout
//   - replicaID: Identity written into the lease key
//
// Returns:
//   - bool: true if the lease is held after the call
//   - error: KV error or context cancellation
func (l *Lease) Acquire(ctx context.Context, replicaID string) (bool, error) {
	held, holderID, _ := l.state()

	if held && holderID == replicaID {
		if err := l.Renew(ctx); err == nil {
			return true, nil
		}
		// Lease lost between renewals; try to take it again.
		l.clear()
	}

	value := fmt.Appendf(nil, "%s:%d", replicaID, time.Now().Unix())

	revision, err := l.kv.Create(ctx, l.key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			// Another replica is coordinator.
			return false, nil
		}

		return false, fmt.Errorf("failed to create lease key: %w", err)
	}

	l.set(true, replicaID, revision)

	return true, nil
}

// Renew extends the held lease.
//
// Uses Update with the held revision, so a lease that changed hands in
// the meantime fails the renewal instead of being silently stolen back.
//
// Returns:
//   - error: ErrNotHolder if not holding, ErrLeaseLost (wrapped) on a
//     failed update, nil on success
func (l *Lease) Renew(ctx context.Context) error {
	held, holderID, revision := l.state()
	if !held {
		return ErrNotHolder
	}

	value := fmt.Appendf(nil, "%s:%d", holderID, time.Now().Unix())

	newRevision, err := l.kv.Update(ctx, l.key, value, revision)
	if err != nil {
		l.clear()

		return fmt.Errorf("%w: %w", ErrLeaseLost, err)
	}

	l.mu.Lock()
	l.revision = newRevision
	l.mu.Unlock()

	return nil
}

// Release voluntarily gives up the lease, deleting the key so another
// replica can acquire it immediately instead of waiting out the TTL.
//
// Returns:
//   - error: ErrNotHolder if not holding, or the KV delete error
func (l *Lease) Release(ctx context.Context) error {
	held, _, _ := l.state()
	if !held {
		return ErrNotHolder
	}

	err := l.kv.Delete(ctx, l.key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete lease key: %w", err)
	}

	l.set(false, "", 0)

	return nil
}

// IsHeld verifies against the KV store that this agent still holds the
// lease. A key that disappeared or changed revision clears the local
// held flag.
//
// Returns:
//   - bool: true if the lease is verifiably held
//   - error: KV error other than a missing key
func (l *Lease) IsHeld(ctx context.Context) (bool, error) {
	held, _, revision := l.state()
	if !held {
		return false, nil
	}

	entry, err := l.kv.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			l.clear()

			return false, nil
		}

		return false, fmt.Errorf("failed to get lease key: %w", err)
	}

	if entry.Revision() != revision {
		l.clear()

		return false, nil
	}

	return true, nil
}

// HolderID returns the replica ID this agent holds the lease under, or
// empty when not holding.
func (l *Lease) HolderID() string {
	held, holderID, _ := l.state()
	if !held {
		return ""
	}

	return holderID
}

func (l *Lease) state() (held bool, holderID string, revision uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.held, l.holderID, l.revision
}

func (l *Lease) set(held bool, holderID string, revision uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = held
	l.holderID = holderID
	l.revision = revision
}

func (l *Lease) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}
