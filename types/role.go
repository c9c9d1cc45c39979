package types

// Role indicates whether the local replica is currently the coordinator.
//
// Exactly one replica is the coordinator at a time; only the coordinator
// mutates the assignment table. Role is derived from an external
// authoritative signal and can change at runtime without notice.
type Role int

const (
	// RoleFollower indicates the local replica reads replicated snapshots
	// but never mutates the assignment table.
	RoleFollower Role = iota

	// RoleCoordinator indicates the local replica is authoritative for
	// assignment table mutations.
	RoleCoordinator
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "Follower"
	case RoleCoordinator:
		return "Coordinator"
	default:
		return "Unknown"
	}
}
