package testing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/slotpool/types"
)

// LoopbackBus is an in-memory snapshot transport for tests.
//
// Any number of replicas can share one bus as their Transport; every
// successful publish is delivered synchronously to all subscribers,
// including the publisher's own, mirroring a KV watcher that observes
// the local put. Congestion and publish failures can be injected.
//
// LoopbackBus is safe for concurrent use.
type LoopbackBus struct {
	mu     sync.Mutex
	subs   map[uint64]func(types.Snapshot)
	nextID uint64

	published []types.Snapshot

	congested atomic.Bool
	failNext  atomic.Int32
}

var _ types.Transport = (*LoopbackBus)(nil)

// NewLoopbackBus creates an empty bus.
func NewLoopbackBus() *LoopbackBus {
	return &LoopbackBus{
		subs: make(map[uint64]func(types.Snapshot)),
	}
}

// SetCongested controls what IsCongested reports.
func (b *LoopbackBus) SetCongested(congested bool) {
	b.congested.Store(congested)
}

// FailNext makes the next n publishes fail with types.ErrPublishFailed.
func (b *LoopbackBus) FailNext(n int) {
	b.failNext.Store(int32(n)) //nolint:gosec // test helper, small counts
}

// PublishCount returns the number of successful publishes so far.
func (b *LoopbackBus) PublishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.published)
}

// LastPublished returns the most recently published snapshot, or nil.
func (b *LoopbackBus) LastPublished() types.Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.published) == 0 {
		return nil
	}

	return b.published[len(b.published)-1].Clone()
}

// PublishSnapshot implements types.Transport.
func (b *LoopbackBus) PublishSnapshot(_ context.Context, snap types.Snapshot) error {
	if b.failNext.Load() > 0 {
		b.failNext.Add(-1)
		return types.ErrPublishFailed
	}

	stored := snap.Clone()

	b.mu.Lock()
	b.published = append(b.published, stored)
	subs := make([]func(types.Snapshot), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(stored.Clone())
	}

	return nil
}

// SubscribeSnapshots implements types.Transport.
func (b *LoopbackBus) SubscribeSnapshots(fn func(types.Snapshot)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// IsCongested implements types.Transport.
func (b *LoopbackBus) IsCongested() bool {
	return b.congested.Load()
}
