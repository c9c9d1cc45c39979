package testing

import (
	"context"
	"sync"

	"github.com/arloliu/slotpool/types"
)

// FakeRoster is a scripted in-memory roster for tests.
//
// Tests drive membership with Join, Leave and SetCoordinator; the fake
// notifies subscribed listeners synchronously from the calling goroutine.
// Populate adds members without notification, for seeding state that
// "already happened" before the component under test subscribed.
//
// FakeRoster is safe for concurrent use.
type FakeRoster struct {
	mu          sync.Mutex
	members     map[types.MemberID]struct{}
	coordinator bool
	listeners   map[uint64]types.RosterListener
	nextID      uint64
	liveErr     error
}

var _ types.Roster = (*FakeRoster)(nil)

// NewFakeRoster creates an empty follower roster.
func NewFakeRoster() *FakeRoster {
	return &FakeRoster{
		members:   make(map[types.MemberID]struct{}),
		listeners: make(map[uint64]types.RosterListener),
	}
}

// Join adds a member and notifies listeners. Idempotent; a duplicate
// join still notifies, matching real rosters that may re-deliver.
func (r *FakeRoster) Join(id types.MemberID) {
	r.mu.Lock()
	r.members[id] = struct{}{}
	ls := r.snapshotListeners()
	r.mu.Unlock()

	for _, l := range ls {
		l.OnMemberJoined(id)
	}
}

// Leave removes a member and notifies listeners.
func (r *FakeRoster) Leave(id types.MemberID) {
	r.mu.Lock()
	delete(r.members, id)
	ls := r.snapshotListeners()
	r.mu.Unlock()

	for _, l := range ls {
		l.OnMemberLeft(id)
	}
}

// Populate adds members without notifying listeners.
func (r *FakeRoster) Populate(ids ...types.MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.members[id] = struct{}{}
	}
}

// Remove deletes a member without notifying listeners, simulating a
// silently lost leave event.
func (r *FakeRoster) Remove(id types.MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

// SetCoordinator flips the local coordinator role and notifies listeners
// when it changes.
func (r *FakeRoster) SetCoordinator(coordinator bool) {
	r.mu.Lock()
	changed := r.coordinator != coordinator
	r.coordinator = coordinator
	ls := r.snapshotListeners()
	r.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range ls {
		l.OnRoleChanged(coordinator)
	}
}

// SetLiveMembersError makes LiveMembers fail with err until reset to nil.
func (r *FakeRoster) SetLiveMembersError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveErr = err
}

// IsLocalCoordinator implements types.Roster.
func (r *FakeRoster) IsLocalCoordinator() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.coordinator
}

// LiveMembers implements types.Roster.
func (r *FakeRoster) LiveMembers(_ context.Context) ([]types.MemberID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.liveErr != nil {
		return nil, r.liveErr
	}

	out := make([]types.MemberID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}

	return out, nil
}

// Resolve implements types.Roster.
func (r *FakeRoster) Resolve(id types.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.members[id]

	return ok
}

// Subscribe implements types.Roster.
func (r *FakeRoster) Subscribe(listener types.RosterListener) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.listeners[id] = listener

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// snapshotListeners must be called with the mutex held.
func (r *FakeRoster) snapshotListeners() []types.RosterListener {
	ls := make([]types.RosterListener, 0, len(r.listeners))
	for _, l := range r.listeners {
		ls = append(ls, l)
	}

	return ls
}
