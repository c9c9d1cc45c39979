package slotpool

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/slotpool/types"
)

// Registry fans assignment transitions out to any number of independent
// slot-to-resource mappers.
//
// Delivery is synchronous. The order listeners are invoked in is not
// specified, but per-listener event order matches emission order: the reconciler
// emits all transitions on the session run loop, and Registry invokes
// listeners inline, so every listener observes the unassign of a slot
// before its reassign. Listeners must not block.
type Registry struct {
	listeners *xsync.Map[uint64, types.AssignmentListener]
	nextID    atomic.Uint64
}

// NewRegistry creates an empty listener registry.
func NewRegistry() *Registry {
	return &Registry{
		listeners: xsync.NewMap[uint64, types.AssignmentListener](),
	}
}

// Register adds a listener to the fan-out.
//
// Parameters:
//   - listener: Receiver for assignment transitions
//
// Returns:
//   - func(): Unregister function to remove the listener
//
// Example:
//
//	unregister := registry.Register(myAssigner)
//	defer unregister()
func (r *Registry) Register(listener types.AssignmentListener) func() {
	id := r.nextID.Add(1)
	r.listeners.Store(id, listener)

	return func() {
		r.listeners.Delete(id)
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	return r.listeners.Size()
}

// OnSlotAssigned delivers an assign transition to every listener.
func (r *Registry) OnSlotAssigned(slot int, member types.MemberID) {
	r.listeners.Range(func(_ uint64, l types.AssignmentListener) bool {
		l.OnSlotAssigned(slot, member)
		return true
	})
}

// OnSlotUnassigned delivers an unassign transition to every listener.
func (r *Registry) OnSlotUnassigned(slot int, member types.MemberID) {
	r.listeners.Range(func(_ uint64, l types.AssignmentListener) bool {
		l.OnSlotUnassigned(slot, member)
		return true
	})
}

var _ types.AssignmentListener = (*Registry)(nil)
