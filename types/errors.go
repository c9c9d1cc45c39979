package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the slotpool library.
//
// These errors provide type-safe error checking using errors.Is() and
// errors.As(). Components use sentinel errors for known conditions and wrap
// external errors with context using fmt.Errorf("...: %w", err).

// Session errors - Public API errors returned by the Session.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRosterRequired is returned when the roster collaborator is nil.
	ErrRosterRequired = errors.New("roster is required")

	// ErrTransportRequired is returned when the transport collaborator is nil.
	ErrTransportRequired = errors.New("transport is required")

	// ErrAlreadyStarted is returned when Start is called on a running session.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrNotStarted is returned when operations require a started session.
	ErrNotStarted = errors.New("session not started")
)

// Allocation errors - returned by coordinator assignment operations.
var (
	// ErrNotCoordinator is returned when a mutating operation is attempted
	// on a replica that does not hold the coordinator role.
	ErrNotCoordinator = errors.New("local replica is not the coordinator")

	// ErrInvalidMember is returned when an operation receives the NoMember
	// sentinel where a real member ID is required.
	ErrInvalidMember = errors.New("invalid member id")

	// ErrPoolExhausted is returned when no free slot exists for a joining
	// member. This is a sizing problem, not a transient fault, and is
	// never retried automatically.
	ErrPoolExhausted = errors.New("slot pool exhausted")

	// ErrAlreadyAssigned is returned by the idempotency guard when the
	// member already owns a slot. The existing slot is kept; callers treat
	// this as a warning, not a failure.
	ErrAlreadyAssigned = errors.New("member already owns a slot")

	// ErrSnapshotSizeMismatch is returned when a received snapshot does
	// not match the fixed pool size. The snapshot is discarded.
	ErrSnapshotSizeMismatch = errors.New("snapshot size mismatch")
)

// Replication errors - returned by the publish scheduler and transports.
var (
	// ErrPublishFailed is returned when the transport reports that a
	// snapshot publish did not take effect.
	ErrPublishFailed = errors.New("failed to publish snapshot")

	// ErrConnectivity indicates a transport connectivity issue, used to
	// distinguish network failures from application errors.
	ErrConnectivity = errors.New("connectivity issue")
)

// Common errors - shared across components.
var (
	// ErrNoKeysFound is returned when NATS KV returns no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// IsNoKeysFoundError checks if an error indicates that no keys were found
// in NATS KV.
//
// Handles both the direct "nats: no keys found" error and wrapped variants.
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
