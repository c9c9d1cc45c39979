// Package metrics provides MetricsCollector implementations: a no-op
// default and a Prometheus-backed collector.
package metrics

import "github.com/arloliu/slotpool/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external metrics
// collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// AllocatorMetrics implementation

// RecordAssignment discards the assignment metric.
func (n *NopMetrics) RecordAssignment(_ /* occupied */ int) {}

// RecordRelease discards the release metric.
func (n *NopMetrics) RecordRelease(_ /* occupied */ int) {}

// IncrementCapacityExhausted discards the capacity exhaustion counter.
func (n *NopMetrics) IncrementCapacityExhausted() {}

// IncrementConsistencyWarning discards the consistency warning counter.
func (n *NopMetrics) IncrementConsistencyWarning(_ /* kind */ string) {}

// ReplicationMetrics implementation

// RecordPublish discards the publish metric.
func (n *NopMetrics) RecordPublish(_ /* success */ bool, _ /* seconds */ float64) {}

// IncrementCongestionDeferral discards the congestion deferral counter.
func (n *NopMetrics) IncrementCongestionDeferral() {}

// IncrementForcedPublish discards the forced publish counter.
func (n *NopMetrics) IncrementForcedPublish() {}

// IncrementDebounceSkip discards the debounce skip counter.
func (n *NopMetrics) IncrementDebounceSkip() {}

// ReconcileMetrics implementation

// RecordReconcile discards the reconciliation metric.
func (n *NopMetrics) RecordReconcile(_ /* assigned */, _ /* unassigned */, _ /* pending */ int) {}

// IncrementCacheRebuild discards the cache rebuild counter.
func (n *NopMetrics) IncrementCacheRebuild() {}

// RecordVerificationSweep discards the verification sweep metric.
func (n *NopMetrics) RecordVerificationSweep(_ /* repairs */ int, _ /* seconds */ float64) {}
