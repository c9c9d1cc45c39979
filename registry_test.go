package slotpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/slotpool/types"
)

type captureListener struct {
	assigned   []int
	unassigned []int
}

func (c *captureListener) OnSlotAssigned(slot int, _ types.MemberID) {
	c.assigned = append(c.assigned, slot)
}

func (c *captureListener) OnSlotUnassigned(slot int, _ types.MemberID) {
	c.unassigned = append(c.unassigned, slot)
}

func TestRegistry_FanOut(t *testing.T) {
	reg := NewRegistry()
	a := &captureListener{}
	b := &captureListener{}

	unregA := reg.Register(a)
	reg.Register(b)
	require.Equal(t, 2, reg.Len())

	reg.OnSlotAssigned(3, 7)
	reg.OnSlotUnassigned(3, 7)

	require.Equal(t, []int{3}, a.assigned)
	require.Equal(t, []int{3}, a.unassigned)
	require.Equal(t, []int{3}, b.assigned)

	unregA()
	unregA() // idempotent
	require.Equal(t, 1, reg.Len())

	reg.OnSlotAssigned(1, 9)
	require.Equal(t, []int{3}, a.assigned, "unregistered listener receives nothing")
	require.Equal(t, []int{3, 1}, b.assigned)
}

func TestRegistry_EmptyFanOutIsNoop(t *testing.T) {
	reg := NewRegistry()
	reg.OnSlotAssigned(0, 1)
	reg.OnSlotUnassigned(0, 1)
	require.Equal(t, 0, reg.Len())
}
