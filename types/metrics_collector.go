package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from the session run loop or internal goroutines
// and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better
// modularity.
type MetricsCollector interface {
	AllocatorMetrics
	ReplicationMetrics
	ReconcileMetrics
}

// AllocatorMetrics defines metrics for coordinator assignment operations.
type AllocatorMetrics interface {
	// RecordAssignment records a successful slot assignment.
	RecordAssignment(occupied int)

	// RecordRelease records a successful slot release.
	RecordRelease(occupied int)

	// IncrementCapacityExhausted records a join that found no free slot.
	IncrementCapacityExhausted()

	// IncrementConsistencyWarning records a tolerated consistency
	// violation (duplicate assign, owner mismatch on release, unknown slot).
	//
	// Parameters:
	//   - kind: Violation kind ("duplicate_assign", "release_mismatch", "unknown_slot")
	IncrementConsistencyWarning(kind string)
}

// ReplicationMetrics defines metrics for the publish scheduler.
type ReplicationMetrics interface {
	// RecordPublish records a publish attempt outcome and its latency.
	//
	// Parameters:
	//   - success: true if the transport accepted the snapshot
	//   - seconds: Publish latency in seconds
	RecordPublish(success bool, seconds float64)

	// IncrementCongestionDeferral records a publish deferred by congestion.
	IncrementCongestionDeferral()

	// IncrementForcedPublish records a publish forced through congestion
	// after the deferral ceiling was reached.
	IncrementForcedPublish()

	// IncrementDebounceSkip records a publish attempt that returned early
	// because a newer mutation superseded it.
	IncrementDebounceSkip()
}

// ReconcileMetrics defines metrics for reconciliation and verification.
type ReconcileMetrics interface {
	// RecordReconcile records a completed reconciliation pass.
	//
	// Parameters:
	//   - assigned: Assign transitions emitted
	//   - unassigned: Unassign transitions emitted
	//   - pending: Slots deferred for retry after the pass
	RecordReconcile(assigned, unassigned, pending int)

	// IncrementCacheRebuild records a reverse-index rebuild after
	// external invalidation or coordinator handoff.
	IncrementCacheRebuild()

	// RecordVerificationSweep records a completed verification sweep.
	//
	// Parameters:
	//   - repairs: Assignments plus releases performed by the sweep
	//   - seconds: Sweep duration in seconds
	RecordVerificationSweep(repairs int, seconds float64)
}
