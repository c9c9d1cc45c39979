package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/slotpool/types"
)

func TestReverseIndex_ClearIfSlotProtectsNewerBinding(t *testing.T) {
	table := NewTable(4)
	ri := NewReverseIndex(table)

	// Member 7 moved from slot 1 to slot 3; a late release of slot 1
	// must not evict the newer binding.
	ri.Put(7, 1)
	ri.Put(7, 3)
	ri.ClearIfSlot(7, 1)
	require.Equal(t, 3, ri.Lookup(7))

	ri.ClearIfSlot(7, 3)
	require.Equal(t, types.NoSlot, ri.Lookup(7))
}

func TestReverseIndex_RebuildFromTable(t *testing.T) {
	table := NewTable(4)
	table.SetOwner(1, 10)
	table.SetOwner(3, 20)

	ri := NewReverseIndex(table)
	rebuilds := 0
	ri.onRebuild = func() { rebuilds++ }

	// Fresh index is valid but empty; entries normally arrive via Put.
	require.Equal(t, types.NoSlot, ri.Lookup(10))

	ri.Invalidate()
	require.Equal(t, 1, ri.Lookup(10))
	require.Equal(t, 3, ri.Lookup(20))
	require.Equal(t, 1, rebuilds, "one invalidation triggers one rebuild")

	ri.Put(99, 0)
	require.Equal(t, 0, ri.Lookup(99))
	require.Equal(t, 1, rebuilds)
}

func TestReverseIndex_PutIgnoresNoMember(t *testing.T) {
	ri := NewReverseIndex(NewTable(2))
	ri.Put(types.NoMember, 0)
	require.Equal(t, types.NoSlot, ri.Lookup(types.NoMember))
}
