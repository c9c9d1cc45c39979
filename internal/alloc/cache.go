package alloc

import (
	"github.com/arloliu/slotpool/types"
)

// ReverseIndex maps member IDs to their slot index for O(1) lookups.
//
// The index carries a valid flag. External actors may invalidate it at
// any time; the first lookup afterwards rebuilds the whole index from
// the table in O(n) before answering. Callers serialize access.
type ReverseIndex struct {
	table *Table
	index map[types.MemberID]int
	valid bool

	// onRebuild is invoked each time a full rebuild runs, for metrics.
	onRebuild func()
}

// NewReverseIndex creates an empty, valid index over the given table.
func NewReverseIndex(table *Table) *ReverseIndex {
	return &ReverseIndex{
		table: table,
		index: make(map[types.MemberID]int, table.Size()),
		valid: true,
	}
}

// Lookup returns the slot owned by m, or types.NoSlot.
//
// Rebuilds the index first when it has been invalidated.
func (r *ReverseIndex) Lookup(m types.MemberID) int {
	if !r.valid {
		r.rebuild()
	}

	slot, ok := r.index[m]
	if !ok {
		return types.NoSlot
	}

	return slot
}

// Put records m as owning slot.
func (r *ReverseIndex) Put(m types.MemberID, slot int) {
	if m == types.NoMember {
		return
	}
	r.index[m] = slot
}

// ClearIfSlot removes the entry for m only if it still points at slot.
//
// A release can race a newer assignment of the same member to a
// different slot; the check keeps the newer binding intact.
func (r *ReverseIndex) ClearIfSlot(m types.MemberID, slot int) {
	if cur, ok := r.index[m]; ok && cur == slot {
		delete(r.index, m)
	}
}

// Invalidate marks the index stale. The next Lookup rebuilds it.
func (r *ReverseIndex) Invalidate() {
	r.valid = false
}

// Valid reports whether the index is currently trusted.
func (r *ReverseIndex) Valid() bool {
	return r.valid
}

// Rebuild forces an immediate full rebuild from the table.
func (r *ReverseIndex) Rebuild() {
	r.rebuild()
}

func (r *ReverseIndex) rebuild() {
	clear(r.index)
	for i := range r.table.Size() {
		if owner := r.table.Owner(i); owner != types.NoMember {
			r.index[owner] = i
		}
	}
	r.valid = true

	if r.onRebuild != nil {
		r.onRebuild()
	}
}
