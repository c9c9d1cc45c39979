package slotpool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/arloliu/slotpool/internal/alloc"
	"github.com/arloliu/slotpool/internal/hooks"
	"github.com/arloliu/slotpool/internal/logging"
	"github.com/arloliu/slotpool/internal/metrics"
	"github.com/arloliu/slotpool/internal/runloop"
	"github.com/arloliu/slotpool/types"
)

// Session owns one replica's view of the slot pool.
//
// It wires the roster and transport collaborators to the allocation
// engine, runs the publish scheduler, detects coordinator role edges,
// and fans assignment transitions out to registered listeners. All
// internal state is confined to a single run loop; roster and transport
// callbacks are marshaled onto it, so the engine never needs locks.
//
// A Session is created with NewSession, started with Start, and must be
// stopped with Stop to release its subscriptions and loop goroutine.
type Session struct {
	cfg       Config
	roster    types.Roster
	transport types.Transport

	loop      *runloop.Loop
	engine    *alloc.Engine
	scheduler *Scheduler
	registry  *Registry

	started     atomic.Bool
	coordinator atomic.Bool

	// roleEpoch increments on every role change; a settle-delay timer
	// captures the epoch it was armed in and yields if the role flapped
	// in between. Loop-confined.
	roleEpoch uint64

	// verifyOnNextJoin is set on a follower when a reconciliation pass
	// left unresolved assignments; the next join event retries them.
	// Loop-confined.
	verifyOnNextJoin bool

	unsubRoster    func()
	unsubSnapshots func()

	logger  types.Logger
	metrics types.MetricsCollector
	hooks   types.Hooks
}

// NewSession creates a session over the given collaborators.
//
// The configuration is defaulted and validated; SlotCount is the only
// field without a default and must be set.
//
// Parameters:
//   - cfg: Session configuration (modified in place by SetDefaults)
//   - roster: Member-roster collaborator
//   - transport: Snapshot replication collaborator
//   - opts: Optional logger, metrics and hooks
//
// Returns:
//   - *Session: The new session, not yet started
//   - error: ErrInvalidConfig, ErrRosterRequired or ErrTransportRequired
//
// Example:
//
//	cfg := slotpool.Config{SlotCount: 64}
//	sess, err := slotpool.NewSession(&cfg, roster, transport)
//	if err != nil {
//	    return err
//	}
//	if err := sess.Start(ctx); err != nil {
//	    return err
//	}
//	defer sess.Stop(context.Background())
func NewSession(cfg *Config, roster types.Roster, transport types.Transport, opts ...Option) (*Session, error) {
	if roster == nil {
		return nil, ErrRosterRequired
	}
	if transport == nil {
		return nil, ErrTransportRequired
	}

	options := sessionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = logging.NewNop()
	}
	if options.metrics == nil {
		options.metrics = metrics.NewNop()
	}

	SetDefaults(cfg)
	if err := cfg.ValidateWithWarnings(options.logger); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:       *cfg,
		roster:    roster,
		transport: transport,
		loop:      runloop.New(options.logger),
		registry:  NewRegistry(),
		logger:    options.logger,
		metrics:   options.metrics,
		hooks:     hooks.NewNop(),
	}
	if options.hooks != nil {
		if options.hooks.OnRoleChanged != nil {
			s.hooks.OnRoleChanged = options.hooks.OnRoleChanged
		}
		if options.hooks.OnCapacityExhausted != nil {
			s.hooks.OnCapacityExhausted = options.hooks.OnCapacityExhausted
		}
		if options.hooks.OnError != nil {
			s.hooks.OnError = options.hooks.OnError
		}
	}

	engine, err := alloc.NewEngine(alloc.Config{
		SlotCount: cfg.SlotCount,
		Resolve:   roster.Resolve,
		Sink:      s.registry,
		OnDirty:   func() { s.scheduler.MarkDirty() },
		Logger:    options.logger,
		Metrics:   options.metrics,
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine

	s.scheduler = NewScheduler(SchedulerConfig{
		Loop:                 s.loop,
		Transport:            transport,
		Snapshot:             engine.Snapshot,
		OnPublished:          s.reconcile,
		Debounce:             cfg.DebounceInterval,
		CongestionRetryLimit: cfg.CongestionRetryLimit,
		OperationTimeout:     cfg.OperationTimeout,
		Logger:               options.logger,
		Metrics:              options.metrics,
	})

	return s, nil
}

// Start begins processing roster and transport events.
//
// The initial coordinator role is read from the roster; a replica that
// starts as coordinator runs the verification sweep after the configured
// settle delay, which performs the initial assignment of all live
// members.
//
// Parameters:
//   - ctx: Context bounding startup work
//
// Returns:
//   - error: ErrAlreadyStarted, or a roster error if the initial
//     enumeration fails within StartupTimeout
func (s *Session) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	// Probe the roster before wiring anything, so a dead collaborator
	// fails Start instead of a silent idle session.
	live, err := s.roster.LiveMembers(startCtx)
	if err != nil {
		s.started.Store(false)
		return fmt.Errorf("initial roster enumeration failed: %w", err)
	}

	if err := s.loop.Start(); err != nil {
		s.started.Store(false)
		return err
	}

	s.unsubSnapshots = s.transport.SubscribeSnapshots(func(snap types.Snapshot) {
		s.loop.Submit(func() { s.reconcile(snap) })
	})
	s.unsubRoster = s.roster.Subscribe(s)

	if s.roster.IsLocalCoordinator() {
		s.loop.Submit(func() { s.handleRoleChanged(true) })
	}

	s.logger.Info("session started",
		"slots", s.cfg.SlotCount,
		"liveMembers", len(live),
		"coordinator", s.roster.IsLocalCoordinator())

	return nil
}

// Stop shuts the session down.
//
// A coordinator with an unpublished mutation publishes it once more
// before stopping, so the final table state reaches the other replicas.
//
// Parameters:
//   - ctx: Context bounding shutdown work
//
// Returns:
//   - error: ErrNotStarted if the session is not running
func (s *Session) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return ErrNotStarted
	}

	if s.unsubRoster != nil {
		s.unsubRoster()
	}
	if s.unsubSnapshots != nil {
		s.unsubSnapshots()
	}

	s.loop.RunSync(func() {
		if s.coordinator.Load() {
			s.scheduler.Flush()
		}
	})
	s.loop.Stop()

	s.logger.Info("session stopped")

	return nil
}

// OnMemberJoined handles a member becoming present.
//
// Safe to call from any goroutine; duplicate joins are idempotent. On
// the coordinator this assigns a slot; on every replica it retries
// assignments that were deferred waiting for this member.
func (s *Session) OnMemberJoined(id types.MemberID) {
	s.loop.Submit(func() { s.handleMemberJoined(id) })
}

// OnMemberLeft handles a member leaving. Missing or duplicate leave
// events are tolerated; the verification sweep repairs any drift.
func (s *Session) OnMemberLeft(id types.MemberID) {
	s.loop.Submit(func() { s.handleMemberLeft(id) })
}

// OnRoleChanged handles a change of the local replica's coordinator
// role. A rising edge schedules the handoff verification sweep after the
// configured settle delay.
func (s *Session) OnRoleChanged(coordinator bool) {
	s.loop.Submit(func() { s.handleRoleChanged(coordinator) })
}

// GetSlotForMember returns the slot held by the member, or NoSlot.
//
// O(1) when the reverse index is valid; a lookup right after Invalidate
// rebuilds the index in O(n) first.
func (s *Session) GetSlotForMember(id types.MemberID) int {
	slot := types.NoSlot
	s.loop.RunSync(func() { slot = s.engine.SlotFor(id) })

	return slot
}

// OrderedMembers returns all members currently holding a slot, in slot
// order. The sequence is identical on every replica that applied the
// same snapshot.
func (s *Session) OrderedMembers() []types.MemberID {
	var members []types.MemberID
	s.loop.RunSync(func() { members = s.engine.OrderedMembers() })

	return members
}

// Seed returns a deterministic seed derived from the current ordered
// member sequence. All replicas holding the same snapshot compute the
// same value, so it can drive same-for-everyone randomization.
func (s *Session) Seed() uint64 {
	var seed uint64
	s.loop.RunSync(func() { seed = s.engine.Snapshot().Seed() })

	return seed
}

// RegisterListener adds an assignment listener to the fan-out registry.
//
// Returns:
//   - func(): Unregister function to remove the listener
func (s *Session) RegisterListener(listener types.AssignmentListener) func() {
	return s.registry.Register(listener)
}

// Invalidate signals that externally shared state backing the reverse
// index may have been wiped. The index is rebuilt from the table on the
// next lookup.
func (s *Session) Invalidate() {
	s.loop.Submit(func() { s.engine.Invalidate() })
}

// Role returns the local replica's current role.
func (s *Session) Role() types.Role {
	if s.coordinator.Load() {
		return types.RoleCoordinator
	}

	return types.RoleFollower
}

// IsCoordinator reports whether the local replica is the coordinator.
func (s *Session) IsCoordinator() bool {
	return s.coordinator.Load()
}

// handleMemberJoined runs on the loop.
func (s *Session) handleMemberJoined(id types.MemberID) {
	s.logger.Debug("member joined", "member", id)

	// A join is the usual cure for assignments deferred by replication
	// outrunning the roster.
	if s.verifyOnNextJoin {
		resolved := s.engine.RetryPending()
		if resolved > 0 {
			s.logger.Info("resolved deferred assignments after join", "member", id, "resolved", resolved)
		}
		if s.engine.PendingCount() == 0 {
			s.verifyOnNextJoin = false
		}
	}

	if !s.coordinator.Load() {
		return
	}

	_, err := s.engine.AssignMember(id)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyAssigned):
		// Duplicate join, already logged by the engine.
	case errors.Is(err, ErrPoolExhausted):
		s.callHook(func(ctx context.Context) error {
			return s.hooks.OnCapacityExhausted(ctx, id)
		})
	default:
		s.reportError(fmt.Errorf("assigning member %d: %w", id, err))
	}
}

// handleMemberLeft runs on the loop.
func (s *Session) handleMemberLeft(id types.MemberID) {
	s.logger.Debug("member left", "member", id)

	if !s.coordinator.Load() {
		// Followers learn about the release from the next snapshot.
		return
	}

	if err := s.engine.Release(id); err != nil {
		s.reportError(fmt.Errorf("releasing member %d: %w", id, err))
	}
}

// handleRoleChanged runs on the loop.
func (s *Session) handleRoleChanged(coordinator bool) {
	was := s.coordinator.Load()
	if was == coordinator {
		return
	}

	from := s.Role()
	s.coordinator.Store(coordinator)
	s.engine.SetCoordinator(coordinator)
	s.roleEpoch++
	to := s.Role()

	s.logger.Info("coordinator role changed", "from", from.String(), "to", to.String())
	s.callHook(func(ctx context.Context) error {
		return s.hooks.OnRoleChanged(ctx, from, to)
	})

	if !coordinator {
		// Falling edge: drop any unpublished mutation so an armed
		// publish attempt does not replicate a table the new
		// coordinator is about to supersede.
		s.scheduler.Reset()
		return
	}

	// Rising edge: verify after a settle delay so in-flight traffic from
	// the previous coordinator can land first. The captured epoch stands
	// in for cancellation if the role flaps during the delay.
	epoch := s.roleEpoch
	s.loop.AfterFunc(s.cfg.HandoffSettleDelay, func() {
		if s.roleEpoch != epoch || !s.coordinator.Load() {
			return
		}
		s.runVerify(true)
	})
}

// reconcile runs on the loop for both received and looped-back snapshots.
func (s *Session) reconcile(snap types.Snapshot) {
	pending, err := s.engine.Reconcile(snap)
	if err != nil {
		s.reportError(fmt.Errorf("reconciling snapshot: %w", err))
		return
	}

	if pending == 0 {
		return
	}

	if s.coordinator.Load() {
		// The coordinator can repair unresolved assignments right away.
		s.runVerify(false)
	}
	if s.engine.PendingCount() > 0 {
		s.verifyOnNextJoin = true
	}
}

// runVerify runs on the loop.
func (s *Session) runVerify(rebuild bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
	live, err := s.roster.LiveMembers(ctx)
	cancel()
	if err != nil {
		s.reportError(fmt.Errorf("enumerating live members for verification: %w", err))
		return
	}

	repairs, err := s.engine.Verify(live, rebuild)
	if err != nil {
		s.reportError(fmt.Errorf("verification sweep: %w", err))
		return
	}

	if repairs > 0 {
		s.logger.Info("verification sweep repaired drift", "repairs", repairs, "rebuild", rebuild)
	} else {
		s.logger.Debug("verification sweep found no drift", "rebuild", rebuild)
	}
}

// reportError logs a recoverable error and notifies the OnError hook.
func (s *Session) reportError(err error) {
	s.logger.Error("session error", "error", err)
	s.callHook(func(ctx context.Context) error {
		return s.hooks.OnError(ctx, err)
	})
}

// callHook invokes a hook in a background goroutine so it cannot block
// the run loop. Hook errors are logged, never propagated.
func (s *Session) callHook(fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OperationTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			s.logger.Warn("hook returned error", "error", err)
		}
	}()
}

// Compile-time interface assertion.
var _ types.RosterListener = (*Session)(nil)
