// Package alloc implements the authoritative slot assignment engine.
//
// It holds the assignment table (slot index to member ID), the free-slot
// queue, and the reverse-index cache, and exposes the coordinator
// mutation operations plus the per-replica reconciliation and
// verification passes. All methods are intended to run on a single run
// loop goroutine; the package does no locking of its own.
package alloc

import (
	"github.com/arloliu/slotpool/types"
)

// Table is the replicated slot assignment array.
//
// current is the raw assignment state, replicated as a whole between
// replicas. previous tracks, per slot, the last owner for which a
// transition event was emitted locally; the reconciler diffs current
// snapshots against previous to derive assign and unassign events.
// Both arrays are fixed at creation and never reallocated.
type Table struct {
	current  []types.MemberID
	previous []types.MemberID
}

// NewTable creates a table with n slots, all empty.
func NewTable(n int) *Table {
	return &Table{
		current:  make([]types.MemberID, n),
		previous: make([]types.MemberID, n),
	}
}

// Size returns the number of slots.
func (t *Table) Size() int {
	return len(t.current)
}

// Owner returns the current owner of slot i, or NoMember.
func (t *Table) Owner(i int) types.MemberID {
	return t.current[i]
}

// SetOwner records m as the current owner of slot i.
func (t *Table) SetOwner(i int, m types.MemberID) {
	t.current[i] = m
}

// Prev returns the last owner of slot i for which events were emitted.
func (t *Table) Prev(i int) types.MemberID {
	return t.previous[i]
}

// SetPrev advances the emitted-event marker for slot i.
func (t *Table) SetPrev(i int, m types.MemberID) {
	t.previous[i] = m
}

// Apply overwrites the current assignment state from a received snapshot.
//
// Returns:
//   - error: ErrSnapshotSizeMismatch if the snapshot length differs from
//     the table size
func (t *Table) Apply(snapshot types.Snapshot) error {
	if len(snapshot) != len(t.current) {
		return types.ErrSnapshotSizeMismatch
	}
	copy(t.current, snapshot)

	return nil
}

// Snapshot returns a copy of the current assignment state, suitable for
// publishing.
func (t *Table) Snapshot() types.Snapshot {
	return types.Snapshot(t.current).Clone()
}

// OrderedMembers returns all current owners in slot order.
//
// The order depends only on the assignment state, so every replica that
// applied the same snapshot observes the same sequence.
func (t *Table) OrderedMembers() []types.MemberID {
	return types.Snapshot(t.current).OrderedMembers()
}

// Occupied returns the number of slots with a non-empty owner.
func (t *Table) Occupied() int {
	n := 0
	for _, m := range t.current {
		if m != types.NoMember {
			n++
		}
	}

	return n
}
