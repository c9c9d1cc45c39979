package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNopMetrics_DoesNotPanic(t *testing.T) {
	m := NewNop()

	require.NotPanics(t, func() {
		m.RecordAssignment(3)
		m.RecordRelease(2)
		m.IncrementCapacityExhausted()
		m.IncrementConsistencyWarning("release_mismatch")
		m.RecordPublish(true, 0.01)
		m.IncrementCongestionDeferral()
		m.IncrementForcedPublish()
		m.IncrementDebounceSkip()
		m.RecordReconcile(1, 1, 0)
		m.IncrementCacheRebuild()
		m.RecordVerificationSweep(2, 0.001)
	})
}

func TestPrometheusCollector_RecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, "slotpool_test")

	m.RecordAssignment(1)
	m.RecordAssignment(2)
	m.RecordRelease(1)
	m.IncrementCapacityExhausted()
	m.IncrementConsistencyWarning("duplicate_assign")
	m.RecordPublish(true, 0.002)
	m.RecordPublish(false, 0)
	m.RecordReconcile(3, 1, 2)
	m.RecordVerificationSweep(2, 0.0005)

	require.Equal(t, 2.0, testutil.ToFloat64(m.assignmentsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.occupiedGauge))
	require.Equal(t, 1.0, testutil.ToFloat64(m.releasesTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.capacityTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.consistencyTotal.WithLabelValues("duplicate_assign")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.publishTotal.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.publishTotal.WithLabelValues("failure")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("assign")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.pendingGauge))
	require.Equal(t, 2.0, testutil.ToFloat64(m.verifyRepairsTotal))
}

func TestPrometheusCollector_SharedRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := NewPrometheus(reg, "slotpool_shared")
	b := NewPrometheus(reg, "slotpool_shared")

	// Second collector registering the same metric names must not panic.
	require.NotPanics(t, func() {
		a.IncrementCapacityExhausted()
		b.IncrementCapacityExhausted()
	})
}
