package slotpool

import "github.com/arloliu/slotpool/types"

// Sentinel errors returned by the Session, re-exported from the types
// package so callers can use errors.Is against slotpool.Err* directly.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrRosterRequired is returned when the roster collaborator is nil.
	ErrRosterRequired = types.ErrRosterRequired

	// ErrTransportRequired is returned when the transport collaborator is nil.
	ErrTransportRequired = types.ErrTransportRequired

	// ErrAlreadyStarted is returned when Start is called on a running session.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when operations require a started session.
	ErrNotStarted = types.ErrNotStarted

	// ErrNotCoordinator is returned when a mutating operation is attempted
	// on a replica that does not hold the coordinator role.
	ErrNotCoordinator = types.ErrNotCoordinator

	// ErrInvalidMember is returned when an operation receives the NoMember
	// sentinel where a real member ID is required.
	ErrInvalidMember = types.ErrInvalidMember

	// ErrPoolExhausted is returned when no free slot exists for a joining
	// member.
	ErrPoolExhausted = types.ErrPoolExhausted

	// ErrAlreadyAssigned is returned by the idempotency guard when the
	// member already owns a slot.
	ErrAlreadyAssigned = types.ErrAlreadyAssigned

	// ErrSnapshotSizeMismatch is returned when a received snapshot does
	// not match the fixed pool size.
	ErrSnapshotSizeMismatch = types.ErrSnapshotSizeMismatch

	// ErrPublishFailed is returned when the transport reports that a
	// snapshot publish did not take effect.
	ErrPublishFailed = types.ErrPublishFailed
)
