package slotpool

import (
	"context"
	"time"

	"github.com/arloliu/slotpool/internal/runloop"
	"github.com/arloliu/slotpool/types"
)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Loop is the session run loop all scheduler state is confined to.
	Loop *runloop.Loop

	// Transport publishes snapshots and reports congestion.
	Transport types.Transport

	// Snapshot returns the current table to publish. Called at publish
	// time so the published snapshot always carries the fully converged
	// state, not the state at mutation time.
	Snapshot func() types.Snapshot

	// OnPublished is invoked on the loop after a successful publish with
	// the exact snapshot that was published. The session uses it as the
	// loopback reconciliation trigger.
	OnPublished func(types.Snapshot)

	// Debounce is the minimum interval between publishes.
	Debounce time.Duration

	// CongestionRetryLimit bounds congestion deferrals before a publish
	// is forced through.
	CongestionRetryLimit int

	// OperationTimeout bounds each transport publish call.
	OperationTimeout time.Duration

	Logger  types.Logger
	Metrics types.MetricsCollector
}

// Scheduler debounces and coalesces the coordinator's snapshot publishes.
//
// Every mutation marks the state dirty and arms a publish attempt one
// debounce interval later. Attempts arming earlier are not cancelled;
// instead a firing attempt checks whether a full interval has passed
// since the most recent mutation and silently yields otherwise. This
// bounds publish frequency to at most one per interval regardless of
// burst size, while guaranteeing the last mutation of a burst is always
// published.
//
// While the transport reports congestion the attempt is deferred, up to
// CongestionRetryLimit times; past the limit it publishes anyway so a
// congested transport can delay replication but never starve it. A
// failed publish is retried unconditionally after another interval.
//
// All methods must run on the session run loop.
type Scheduler struct {
	loop      *runloop.Loop
	transport types.Transport

	snapshot    func() types.Snapshot
	onPublished func(types.Snapshot)

	debounce   time.Duration
	retryLimit int
	opTimeout  time.Duration

	// Loop-confined state.
	dirty             bool
	lastMutation      time.Time
	congestionRetries int

	logger  types.Logger
	metrics types.MetricsCollector
}

// NewScheduler creates a scheduler. All config fields are required
// except Metrics and Logger, which the session fills in.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		loop:        cfg.Loop,
		transport:   cfg.Transport,
		snapshot:    cfg.Snapshot,
		onPublished: cfg.OnPublished,
		debounce:    cfg.Debounce,
		retryLimit:  cfg.CongestionRetryLimit,
		opTimeout:   cfg.OperationTimeout,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// MarkDirty records a table mutation and arms a publish attempt one
// debounce interval from now.
func (s *Scheduler) MarkDirty() {
	s.dirty = true
	s.lastMutation = time.Now()
	s.loop.AfterFunc(s.debounce, s.attempt)
}

// Dirty reports whether an unpublished mutation is outstanding.
func (s *Scheduler) Dirty() bool {
	return s.dirty
}

// Flush publishes immediately if dirty, bypassing the debounce. Used
// during shutdown so the final table state reaches the other replicas.
func (s *Scheduler) Flush() {
	if !s.dirty {
		return
	}
	s.publish()
}

// Reset discards any unpublished mutation. Called when the local replica
// loses the coordinator role: armed attempts then yield instead of
// publishing a table this replica is no longer authoritative for.
func (s *Scheduler) Reset() {
	s.dirty = false
	s.congestionRetries = 0
}

// attempt is the armed publish attempt. It yields to a newer attempt if
// a mutation arrived after the one that armed it.
func (s *Scheduler) attempt() {
	if !s.dirty {
		return
	}

	// A mutation newer than the one that armed this attempt has armed
	// its own attempt; let that one publish the converged table.
	if time.Since(s.lastMutation) < s.debounce {
		s.metrics.IncrementDebounceSkip()
		return
	}

	if s.transport.IsCongested() {
		if s.congestionRetries < s.retryLimit {
			s.congestionRetries++
			s.metrics.IncrementCongestionDeferral()
			s.logger.Debug("transport congested, deferring publish",
				"attempt", s.congestionRetries, "limit", s.retryLimit)
			s.loop.AfterFunc(s.debounce, s.attempt)

			return
		}

		s.metrics.IncrementForcedPublish()
		s.logger.Warn("congestion deferral limit reached, forcing publish",
			"deferrals", s.congestionRetries)
	}

	s.publish()
}

func (s *Scheduler) publish() {
	snap := s.snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	start := time.Now()
	err := s.transport.PublishSnapshot(ctx, snap)
	cancel()

	s.metrics.RecordPublish(err == nil, time.Since(start).Seconds())

	if err != nil {
		s.logger.Error("snapshot publish failed, retrying after debounce", "error", err)
		s.loop.AfterFunc(s.debounce, s.attempt)

		return
	}

	s.dirty = false
	s.congestionRetries = 0

	// Replication is durable from this replica's perspective; now react
	// to it locally, preserving write-then-read order.
	s.onPublished(snap)
}
