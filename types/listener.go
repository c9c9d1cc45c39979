package types

// AssignmentListener receives resolved slot transitions.
//
// Listeners are the resource-binding collaborators: they map a slot index
// to a concrete external resource once ownership is resolved. For a slot
// changing hands in a single reconciliation pass, OnSlotUnassigned for the
// old owner always fires before OnSlotAssigned for the new owner, so a
// resource is never observably doubly-owned.
//
// Callbacks run on the session's run loop; they must complete quickly and
// must not call back into mutating session operations synchronously.
type AssignmentListener interface {
	// OnSlotAssigned is called when a slot becomes owned by a member.
	// Fires exactly once per resolved assignment, even when resolution
	// was deferred and retried.
	OnSlotAssigned(slot int, member MemberID)

	// OnSlotUnassigned is called when a member stops owning a slot.
	OnSlotUnassigned(slot int, member MemberID)
}
