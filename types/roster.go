package types

import "context"

// Roster is the member-roster collaborator consumed by the session core.
//
// It answers three questions the core cannot answer on its own: who is
// present, whether a member id is locally resolvable yet, and whether the
// local replica currently holds the coordinator role. Implementations can
// be backed by:
//   - NATS KV presence heartbeats plus a coordinator lease (built-in)
//   - An external membership service
//   - A scripted fake for tests
//
// Join/leave notifications may be duplicated, missing, or arrive out of
// order relative to replicated snapshots; the core tolerates all of these.
type Roster interface {
	// IsLocalCoordinator reports whether the local replica is currently
	// the authoritative coordinator.
	IsLocalCoordinator() bool

	// LiveMembers enumerates the members currently considered present.
	//
	// Used by the coordinator's verification sweep; the result is treated
	// as authoritative at the moment of the call.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//
	// Returns:
	//   - []MemberID: Present members, order unspecified
	//   - error: Enumeration error (nil on success)
	LiveMembers(ctx context.Context) ([]MemberID, error)

	// Resolve reports whether the member id is known locally.
	//
	// A replicated assignment may reference a member whose join event has
	// not arrived locally yet; Resolve returning false defers that slot's
	// transition until the member becomes resolvable.
	Resolve(id MemberID) bool

	// Subscribe registers a listener for roster events.
	//
	// Returns:
	//   - func(): Unsubscribe function; safe to call more than once
	Subscribe(listener RosterListener) (unsubscribe func())
}

// RosterListener receives roster change notifications.
//
// Callbacks may be invoked from roster-internal goroutines; subscribers
// are responsible for marshaling onto their own scheduling domain.
type RosterListener interface {
	// OnMemberJoined is called when a member becomes present.
	// May be called more than once for the same member.
	OnMemberJoined(id MemberID)

	// OnMemberLeft is called when a member is no longer present.
	// May be missing entirely if the roster lost track of the member;
	// the verification sweep repairs the resulting drift.
	OnMemberLeft(id MemberID)

	// OnRoleChanged is called when the local replica's coordinator role
	// changes. A rising edge (false to true) triggers the handoff
	// verification sweep after a settle delay.
	OnRoleChanged(coordinator bool)
}
