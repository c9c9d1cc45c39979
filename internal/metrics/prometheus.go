package metrics

import (
	"sync"

	"github.com/arloliu/slotpool/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Metric registration is lazy: collectors are created and registered on
// first use so that constructing the collector never fails and unused
// sessions register nothing.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	occupiedGauge       prometheus.Gauge
	assignmentsTotal    prometheus.Counter
	releasesTotal       prometheus.Counter
	capacityTotal       prometheus.Counter
	consistencyTotal    *prometheus.CounterVec
	publishTotal        *prometheus.CounterVec
	publishLatency      prometheus.Histogram
	congestionTotal     prometheus.Counter
	forcedPublishTotal  prometheus.Counter
	debounceSkipTotal   prometheus.Counter
	reconcileTotal      prometheus.Counter
	transitionsTotal    *prometheus.CounterVec
	pendingGauge        prometheus.Gauge
	cacheRebuildTotal   prometheus.Counter
	verifySweepTotal    prometheus.Counter
	verifyRepairsTotal  prometheus.Counter
	verifySweepDuration prometheus.Histogram
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Metrics namespace (defaults to "slotpool" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "slotpool"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.occupiedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "occupied_slots",
			Help:      "Number of slots currently owned by a member.",
		})

		p.assignmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "assignments_total",
			Help:      "Total successful slot assignments performed by the coordinator.",
		})

		p.releasesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "releases_total",
			Help:      "Total slot releases performed by the coordinator.",
		})

		p.capacityTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "capacity_exhausted_total",
			Help:      "Total joins rejected because no free slot existed.",
		})

		p.consistencyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "allocator",
			Name:      "consistency_warnings_total",
			Help:      "Total tolerated consistency violations by kind.",
		}, []string{"kind"})

		p.publishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "replication",
			Name:      "publishes_total",
			Help:      "Total snapshot publish attempts by result.",
		}, []string{"result"})

		p.publishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "replication",
			Name:      "publish_latency_seconds",
			Help:      "Snapshot publish latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		})

		p.congestionTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "replication",
			Name:      "congestion_deferrals_total",
			Help:      "Total publishes deferred due to transport congestion.",
		})

		p.forcedPublishTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "replication",
			Name:      "forced_publishes_total",
			Help:      "Total publishes forced through congestion after the deferral ceiling.",
		})

		p.debounceSkipTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "replication",
			Name:      "debounce_skips_total",
			Help:      "Total publish attempts superseded by a newer mutation.",
		})

		p.reconcileTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Total reconciliation passes.",
		})

		p.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reconcile",
			Name:      "transitions_total",
			Help:      "Total slot transitions emitted by direction.",
		}, []string{"direction"})

		p.pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "reconcile",
			Name:      "pending_retries",
			Help:      "Slots deferred because their member could not be resolved.",
		})

		p.cacheRebuildTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reconcile",
			Name:      "cache_rebuilds_total",
			Help:      "Total reverse-index cache rebuilds.",
		})

		p.verifySweepTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "verify",
			Name:      "sweeps_total",
			Help:      "Total verification sweeps.",
		})

		p.verifyRepairsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "verify",
			Name:      "repairs_total",
			Help:      "Total repairs (assignments plus releases) performed by sweeps.",
		})

		p.verifySweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "verify",
			Name:      "sweep_duration_seconds",
			Help:      "Verification sweep duration in seconds.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		})

		collectors := []prometheus.Collector{
			p.occupiedGauge, p.assignmentsTotal, p.releasesTotal, p.capacityTotal,
			p.consistencyTotal, p.publishTotal, p.publishLatency, p.congestionTotal,
			p.forcedPublishTotal, p.debounceSkipTotal, p.reconcileTotal,
			p.transitionsTotal, p.pendingGauge, p.cacheRebuildTotal,
			p.verifySweepTotal, p.verifyRepairsTotal, p.verifySweepDuration,
		}
		for _, c := range collectors {
			// AlreadyRegisteredError is tolerated so multiple sessions can
			// share a registerer.
			if err := p.reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}

// RecordAssignment records a successful slot assignment.
func (p *PrometheusCollector) RecordAssignment(occupied int) {
	p.ensureRegistered()
	p.assignmentsTotal.Inc()
	p.occupiedGauge.Set(float64(occupied))
}

// RecordRelease records a successful slot release.
func (p *PrometheusCollector) RecordRelease(occupied int) {
	p.ensureRegistered()
	p.releasesTotal.Inc()
	p.occupiedGauge.Set(float64(occupied))
}

// IncrementCapacityExhausted records a join that found no free slot.
func (p *PrometheusCollector) IncrementCapacityExhausted() {
	p.ensureRegistered()
	p.capacityTotal.Inc()
}

// IncrementConsistencyWarning records a tolerated consistency violation.
func (p *PrometheusCollector) IncrementConsistencyWarning(kind string) {
	p.ensureRegistered()
	p.consistencyTotal.WithLabelValues(kind).Inc()
}

// RecordPublish records a publish attempt outcome and latency.
func (p *PrometheusCollector) RecordPublish(success bool, seconds float64) {
	p.ensureRegistered()
	result := "success"
	if !success {
		result = "failure"
	}
	p.publishTotal.WithLabelValues(result).Inc()
	if success {
		p.publishLatency.Observe(seconds)
	}
}

// IncrementCongestionDeferral records a congestion deferral.
func (p *PrometheusCollector) IncrementCongestionDeferral() {
	p.ensureRegistered()
	p.congestionTotal.Inc()
}

// IncrementForcedPublish records a forced publish.
func (p *PrometheusCollector) IncrementForcedPublish() {
	p.ensureRegistered()
	p.forcedPublishTotal.Inc()
}

// IncrementDebounceSkip records a superseded publish attempt.
func (p *PrometheusCollector) IncrementDebounceSkip() {
	p.ensureRegistered()
	p.debounceSkipTotal.Inc()
}

// RecordReconcile records a completed reconciliation pass.
func (p *PrometheusCollector) RecordReconcile(assigned, unassigned, pending int) {
	p.ensureRegistered()
	p.reconcileTotal.Inc()
	p.transitionsTotal.WithLabelValues("assign").Add(float64(assigned))
	p.transitionsTotal.WithLabelValues("unassign").Add(float64(unassigned))
	p.pendingGauge.Set(float64(pending))
}

// IncrementCacheRebuild records a reverse-index rebuild.
func (p *PrometheusCollector) IncrementCacheRebuild() {
	p.ensureRegistered()
	p.cacheRebuildTotal.Inc()
}

// RecordVerificationSweep records a completed verification sweep.
func (p *PrometheusCollector) RecordVerificationSweep(repairs int, seconds float64) {
	p.ensureRegistered()
	p.verifySweepTotal.Inc()
	p.verifyRepairsTotal.Add(float64(repairs))
	p.verifySweepDuration.Observe(seconds)
}
