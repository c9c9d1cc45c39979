package alloc

import (
	"fmt"
	"slices"
	"time"

	"github.com/arloliu/slotpool/internal/freelist"
	"github.com/arloliu/slotpool/internal/logging"
	"github.com/arloliu/slotpool/internal/metrics"
	"github.com/arloliu/slotpool/types"
)

// Config configures an Engine.
type Config struct {
	// SlotCount is the fixed pool size N. Required, must be positive.
	SlotCount int

	// Resolve reports whether a member ID can be resolved locally. A
	// replicated assignment whose member cannot be resolved yet is
	// deferred and retried. Required.
	Resolve func(types.MemberID) bool

	// Sink receives assignment transition events. Required.
	Sink types.AssignmentListener

	// OnDirty is invoked after every coordinator mutation so the caller
	// can schedule replication. Optional.
	OnDirty func()

	// Logger for warnings and consistency diagnostics. Defaults to nop.
	Logger types.Logger

	// Metrics collector. Defaults to nop.
	Metrics types.MetricsCollector
}

// Engine owns the assignment state of one replica.
//
// It performs the coordinator mutations (AssignMember, ReleaseMember),
// the per-snapshot reconciliation pass, deferred retry of unresolvable
// assignments, and the full verification sweep. Coordinator-exclusivity
// is enforced by a guard at the top of every mutating operation; the
// caller flips the role with SetCoordinator.
//
// Engine is not safe for concurrent use. All calls must come from the
// session run loop.
type Engine struct {
	table *Table
	queue *freelist.Queue
	cache *ReverseIndex

	// pending holds slot indices whose replicated owner could not be
	// resolved locally yet.
	pending map[int]struct{}

	coordinator bool

	resolve func(types.MemberID) bool
	sink    types.AssignmentListener
	onDirty func()

	logger  types.Logger
	metrics types.MetricsCollector
}

// NewEngine creates an engine with an all-empty table and a full free
// queue.
//
// Parameters:
//   - cfg: Engine configuration; SlotCount, Resolve and Sink are required
//
// Returns:
//   - *Engine: The new engine
//   - error: ErrInvalidConfig if a required field is missing
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.SlotCount <= 0 {
		return nil, fmt.Errorf("%w: slot count must be positive, got %d", types.ErrInvalidConfig, cfg.SlotCount)
	}
	if cfg.Resolve == nil {
		return nil, fmt.Errorf("%w: resolve function is required", types.ErrInvalidConfig)
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("%w: event sink is required", types.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
	if cfg.OnDirty == nil {
		cfg.OnDirty = func() {}
	}

	table := NewTable(cfg.SlotCount)
	queue := freelist.New(cfg.SlotCount, cfg.Logger)
	queue.Fill()

	e := &Engine{
		table:   table,
		queue:   queue,
		cache:   NewReverseIndex(table),
		pending: make(map[int]struct{}),
		resolve: cfg.Resolve,
		sink:    cfg.Sink,
		onDirty: cfg.OnDirty,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	e.cache.onRebuild = func() { cfg.Metrics.IncrementCacheRebuild() }

	return e, nil
}

// SetCoordinator records whether the local replica holds the coordinator
// role. The caller is responsible for running the verification sweep on
// a rising edge.
func (e *Engine) SetCoordinator(coordinator bool) {
	e.coordinator = coordinator
}

// IsCoordinator reports whether the local replica may mutate the table.
func (e *Engine) IsCoordinator() bool {
	return e.coordinator
}

// AssignMember assigns a free slot to a joining member.
//
// Duplicate joins are idempotent: if the member already owns a slot, the
// existing slot is returned with ErrAlreadyAssigned and the table is
// unchanged. When no free slot exists the member is left unassigned and
// ErrPoolExhausted is returned; capacity exhaustion is never retried.
//
// Parameters:
//   - m: The joining member
//
// Returns:
//   - int: The assigned slot, the already-held slot, or types.NoSlot
//   - error: ErrNotCoordinator, ErrInvalidMember, ErrAlreadyAssigned or
//     ErrPoolExhausted
func (e *Engine) AssignMember(m types.MemberID) (int, error) {
	if !e.coordinator {
		return types.NoSlot, types.ErrNotCoordinator
	}
	if m == types.NoMember {
		return types.NoSlot, types.ErrInvalidMember
	}

	if existing := e.cache.Lookup(m); existing != types.NoSlot {
		e.logger.Warn("member already owns a slot, ignoring duplicate join", "member", m, "slot", existing)
		e.metrics.IncrementConsistencyWarning("duplicate_assign")

		return existing, types.ErrAlreadyAssigned
	}

	slot := e.queue.Dequeue()
	if slot == types.NoSlot {
		e.logger.Error("no free slot for joining member, pool capacity exhausted", "member", m, "slots", e.table.Size())
		e.metrics.IncrementCapacityExhausted()

		return types.NoSlot, types.ErrPoolExhausted
	}

	e.table.SetOwner(slot, m)
	// Cache is updated before the member is confirmed live, so a later
	// resolve failure cannot forget the tentative binding.
	e.cache.Put(m, slot)
	e.metrics.RecordAssignment(e.table.Occupied())
	e.onDirty()

	return slot, nil
}

// ReleaseMember returns a member's slot to the free queue.
//
// Unknown slots (types.NoSlot or out of range) are ignored with a log
// entry. An owner mismatch is logged as a consistency warning but the
// release proceeds; cleanup must stay idempotent.
//
// Parameters:
//   - slot: The slot to release, as recorded for the member
//   - m: The leaving member
//
// Returns:
//   - error: ErrNotCoordinator if the local replica is not authoritative
func (e *Engine) ReleaseMember(slot int, m types.MemberID) error {
	if !e.coordinator {
		return types.ErrNotCoordinator
	}
	if slot == types.NoSlot {
		e.logger.Debug("release requested for member without a slot", "member", m)
		return nil
	}
	if slot < 0 || slot >= e.table.Size() {
		e.logger.Warn("release requested for out-of-range slot", "member", m, "slot", slot)
		e.metrics.IncrementConsistencyWarning("unknown_slot")

		return nil
	}

	if owner := e.table.Owner(slot); owner != m {
		e.logger.Warn("slot owner mismatch on release, proceeding",
			"slot", slot, "expected", m, "actual", owner)
		e.metrics.IncrementConsistencyWarning("release_mismatch")
	}

	e.table.SetOwner(slot, types.NoMember)
	e.queue.Enqueue(slot)
	// Clear only if the entry still points at this slot; a newer
	// assignment of the same member to another slot must survive.
	e.cache.ClearIfSlot(m, slot)
	e.metrics.RecordRelease(e.table.Occupied())
	e.onDirty()

	return nil
}

// Release looks up the member's slot and releases it.
func (e *Engine) Release(m types.MemberID) error {
	return e.ReleaseMember(e.cache.Lookup(m), m)
}

// Reconcile diffs a received snapshot against the last emitted state and
// emits per-slot transitions.
//
// For every changed slot, an unassign for the old owner is emitted
// before any assign for the new owner, so a resource is never observed
// as doubly owned. Assignments whose member cannot be resolved yet are
// deferred to the pending set and retried by RetryPending or the next
// pass; the unassign half of such a transition is emitted exactly once.
//
// On non-coordinator replicas the snapshot also overwrites the local
// table; the coordinator's table is authoritative and is not touched.
//
// Parameters:
//   - snapshot: The received whole-table snapshot
//
// Returns:
//   - int: Number of slots left in the pending set after the pass
//   - error: ErrSnapshotSizeMismatch if the snapshot length is wrong
func (e *Engine) Reconcile(snapshot types.Snapshot) (int, error) {
	if len(snapshot) != e.table.Size() {
		e.logger.Warn("discarding snapshot with wrong size", "got", len(snapshot), "want", e.table.Size())
		return len(e.pending), types.ErrSnapshotSizeMismatch
	}

	assigned := 0
	unassigned := 0

	for i, next := range snapshot {
		if !e.coordinator {
			e.applyOwner(i, next)
		}

		// An emptied slot cancels any deferred assignment for it. This
		// must happen before the no-change short-circuit: a deferred
		// slot never advanced its resolved view, so emptying it makes
		// both sides NoMember with the stale pending entry still set.
		if next == types.NoMember {
			delete(e.pending, i)
		}

		prev := e.table.Prev(i)
		if next == prev {
			continue
		}

		if prev != types.NoMember {
			e.sink.OnSlotUnassigned(i, prev)
			e.table.SetPrev(i, types.NoMember)
			unassigned++
		}

		if next == types.NoMember {
			continue
		}

		if !e.resolve(next) {
			e.logger.Debug("deferring assignment for unresolved member", "slot", i, "member", next)
			e.pending[i] = struct{}{}
			continue
		}

		delete(e.pending, i)
		e.sink.OnSlotAssigned(i, next)
		e.table.SetPrev(i, next)
		assigned++
	}

	e.metrics.RecordReconcile(assigned, unassigned, len(e.pending))

	return len(e.pending), nil
}

// applyOwner mirrors one slot of a received snapshot into the local
// table and keeps the reverse index in step.
func (e *Engine) applyOwner(i int, next types.MemberID) {
	cur := e.table.Owner(i)
	if cur == next {
		return
	}
	if cur != types.NoMember {
		e.cache.ClearIfSlot(cur, i)
	}
	e.table.SetOwner(i, next)
	if next != types.NoMember {
		e.cache.Put(next, i)
	}
}

// RetryPending re-attempts resolution for deferred assignments.
//
// Called when a member join arrives locally, since the usual cause of a
// deferred assignment is replication outrunning the roster.
//
// Returns:
//   - int: Number of assignments resolved and emitted
func (e *Engine) RetryPending() int {
	if len(e.pending) == 0 {
		return 0
	}

	slots := make([]int, 0, len(e.pending))
	for i := range e.pending {
		slots = append(slots, i)
	}
	slices.Sort(slots)

	resolved := 0
	for _, i := range slots {
		owner := e.table.Owner(i)
		if owner == types.NoMember {
			delete(e.pending, i)
			continue
		}
		if !e.resolve(owner) {
			continue
		}

		delete(e.pending, i)
		e.sink.OnSlotAssigned(i, owner)
		e.table.SetPrev(i, owner)
		resolved++
	}

	return resolved
}

// PendingCount returns the number of deferred assignments.
func (e *Engine) PendingCount() int {
	return len(e.pending)
}

// Verify cross-checks the table against the live member roster and
// repairs drift.
//
// Live members without a slot are assigned one; owners no longer in the
// roster are released. With rebuild set (coordinator handoff just
// happened), the free queue and reverse index are rebuilt from the table
// first, since locally queued state cannot be trusted to reflect the
// previous coordinator's in-flight mutations. A correct table produces
// zero repairs.
//
// Parameters:
//   - live: The current live member roster
//   - rebuild: Rebuild queue and cache from the table before sweeping
//
// Returns:
//   - int: Number of repairs performed
//   - error: ErrNotCoordinator if the local replica is not authoritative
func (e *Engine) Verify(live []types.MemberID, rebuild bool) (int, error) {
	if !e.coordinator {
		return 0, types.ErrNotCoordinator
	}

	start := time.Now()

	if rebuild {
		e.queue.Rebuild(e.table.current)
		e.cache.Rebuild()
	}

	seen := make(map[types.MemberID]int, e.table.Size())
	for i := range e.table.Size() {
		if owner := e.table.Owner(i); owner != types.NoMember {
			seen[owner] = i
		}
	}

	liveSet := make(map[types.MemberID]struct{}, len(live))
	repairs := 0

	for _, m := range live {
		liveSet[m] = struct{}{}
		if _, ok := seen[m]; ok {
			continue
		}
		e.logger.Info("live member missing a slot, assigning", "member", m)
		if _, err := e.AssignMember(m); err != nil {
			e.logger.Error("failed to repair un-slotted member", "member", m, "error", err)
			continue
		}
		repairs++
	}

	// Sweep owners in slot order so repair events are deterministic.
	for i := range e.table.Size() {
		owner := e.table.Owner(i)
		if owner == types.NoMember {
			continue
		}
		if _, ok := liveSet[owner]; ok {
			continue
		}
		e.logger.Info("slot owner no longer live, releasing", "slot", i, "member", owner)
		if err := e.ReleaseMember(i, owner); err != nil {
			return repairs, err
		}
		repairs++
	}

	e.metrics.RecordVerificationSweep(repairs, time.Since(start).Seconds())
	e.RetryPending()

	return repairs, nil
}

// SlotFor returns the slot owned by m, or types.NoSlot.
func (e *Engine) SlotFor(m types.MemberID) int {
	return e.cache.Lookup(m)
}

// OrderedMembers returns all current owners in slot order. The sequence
// is identical on every replica that applied the same snapshot.
func (e *Engine) OrderedMembers() []types.MemberID {
	return e.table.OrderedMembers()
}

// Snapshot returns a copy of the current table for publishing.
func (e *Engine) Snapshot() types.Snapshot {
	return e.table.Snapshot()
}

// Invalidate marks the reverse index stale. The next lookup rebuilds it
// from the table in O(n). Used when an external actor may have corrupted
// cached state.
func (e *Engine) Invalidate() {
	e.cache.Invalidate()
}

// Occupied returns the number of assigned slots.
func (e *Engine) Occupied() int {
	return e.table.Occupied()
}
