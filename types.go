package slotpool

import "github.com/arloliu/slotpool/types"

// Re-export types from the internal types package.
//
// This file provides a stable public API for the library's core types and
// interfaces. It uses type aliases to re-export definitions from the
// `types` subpackage, which contains the actual implementations.
//
// This pattern solves the "import cycle" problem by allowing internal
// packages to depend on `types` without depending on the root `slotpool`
// package, while still providing a convenient `slotpool.MemberID`,
// `slotpool.Logger`, etc. for users.
type (
	MemberID = types.MemberID
	Snapshot = types.Snapshot
	Role     = types.Role
)

// Re-export interfaces from the internal types package for convenience.
type (
	Roster             = types.Roster
	RosterListener     = types.RosterListener
	Transport          = types.Transport
	AssignmentListener = types.AssignmentListener
	MetricsCollector   = types.MetricsCollector
	Logger             = types.Logger
	Hooks              = types.Hooks
)

// Re-export sentinel values from the internal types package.
const (
	// NoMember marks an empty slot in the assignment table.
	NoMember = types.NoMember

	// NoSlot is returned by lookups for members that hold no slot.
	NoSlot = types.NoSlot
)

// Re-export Role constants from the internal types package.
const (
	RoleFollower    = types.RoleFollower
	RoleCoordinator = types.RoleCoordinator
)
