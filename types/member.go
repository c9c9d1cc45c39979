package types

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// MemberID identifies a member of a shared session.
//
// IDs are assigned by the application (or the roster implementation) and
// must be positive; zero is reserved as the NoMember sentinel in the
// replicated assignment array.
type MemberID int64

// NoMember is the sentinel owner value for an unowned slot.
const NoMember MemberID = 0

// NoSlot is the sentinel slot index returned by lookups when a member does
// not currently hold a slot.
const NoSlot = -1

// Snapshot is one full replicated copy of the assignment table: a
// fixed-length sequence of slot owners, indexed by slot. The value at index
// i is the member owning slot i, or NoMember.
//
// Snapshots are replicated as a whole; there is no versioning metadata
// beyond implicit delivery order.
type Snapshot []MemberID

// Clone returns an independent copy of the snapshot.
//
// Returns:
//   - Snapshot: Deep copy (nil if the receiver is nil)
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}

	out := make(Snapshot, len(s))
	copy(out, s)

	return out
}

// Equal reports whether two snapshots have identical length and contents.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}

	return true
}

// OrderedMembers returns the members currently holding a slot, in slot
// order. The result is stable across replicas for a given snapshot, which
// makes it usable as input for deterministic, same-for-everyone decisions.
//
// Returns:
//   - []MemberID: Owners of occupied slots, ascending by slot index
func (s Snapshot) OrderedMembers() []MemberID {
	members := make([]MemberID, 0, len(s))
	for _, m := range s {
		if m != NoMember {
			members = append(members, m)
		}
	}

	return members
}

// Seed derives a deterministic 64-bit seed from the ordered member
// sequence. Every replica holding the same snapshot computes the same
// value, so it can seed randomization that must agree across replicas.
//
// Returns:
//   - uint64: xxh3 hash of the ordered member sequence
func (s Snapshot) Seed() uint64 {
	buf := make([]byte, 0, len(s)*8)
	var scratch [8]byte
	for _, m := range s.OrderedMembers() {
		binary.LittleEndian.PutUint64(scratch[:], uint64(m)) //nolint:gosec // stable byte encoding, sign is preserved
		buf = append(buf, scratch[:]...)
	}

	return xxh3.Hash(buf)
}
