package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshot_Clone(t *testing.T) {
	snap := Snapshot{1, NoMember, 3}
	clone := snap.Clone()

	require.True(t, snap.Equal(clone))

	// Mutating the clone must not affect the original
	clone[0] = 9
	require.Equal(t, MemberID(1), snap[0])

	var nilSnap Snapshot
	require.Nil(t, nilSnap.Clone())
}

func TestSnapshot_Equal(t *testing.T) {
	require.True(t, Snapshot{1, 2}.Equal(Snapshot{1, 2}))
	require.False(t, Snapshot{1, 2}.Equal(Snapshot{1, 3}))
	require.False(t, Snapshot{1, 2}.Equal(Snapshot{1, 2, 3}))
	require.True(t, Snapshot{}.Equal(Snapshot{}))
}

func TestSnapshot_OrderedMembers(t *testing.T) {
	snap := Snapshot{NoMember, 7, NoMember, 3, 5}
	require.Equal(t, []MemberID{7, 3, 5}, snap.OrderedMembers())

	empty := Snapshot{NoMember, NoMember}
	require.Empty(t, empty.OrderedMembers())
}

func TestSnapshot_Seed_Deterministic(t *testing.T) {
	a := Snapshot{NoMember, 7, 3, NoMember}
	b := Snapshot{NoMember, 7, 3, NoMember}

	require.Equal(t, a.Seed(), b.Seed())

	// Changing membership changes the seed
	c := Snapshot{NoMember, 7, 4, NoMember}
	require.NotEqual(t, a.Seed(), c.Seed())

	// The seed depends on slot order, not just the member set
	d := Snapshot{NoMember, 3, 7, NoMember}
	require.NotEqual(t, a.Seed(), d.Seed())
}

func TestRole_String(t *testing.T) {
	require.Equal(t, "Follower", RoleFollower.String())
	require.Equal(t, "Coordinator", RoleCoordinator.String())
	require.Equal(t, "Unknown", Role(42).String())
}
