package slotpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	slotpooltest "github.com/arloliu/slotpool/testing"
	"github.com/arloliu/slotpool/types"
)

type transition struct {
	kind   string
	slot   int
	member types.MemberID
}

type safeListener struct {
	mu     sync.Mutex
	events []transition
}

func (l *safeListener) OnSlotAssigned(slot int, member types.MemberID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, transition{"assign", slot, member})
}

func (l *safeListener) OnSlotUnassigned(slot int, member types.MemberID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, transition{"unassign", slot, member})
}

func (l *safeListener) snapshot() []transition {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]transition, len(l.events))
	copy(out, l.events)

	return out
}

func (l *safeListener) count(kind string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e.kind == kind {
			n++
		}
	}

	return n
}

func testConfig(slots int) Config {
	return Config{
		SlotCount:            slots,
		DebounceInterval:     15 * time.Millisecond,
		CongestionRetryLimit: 3,
		HandoffSettleDelay:   25 * time.Millisecond,
		OperationTimeout:     time.Second,
		StartupTimeout:       2 * time.Second,
		ShutdownTimeout:      time.Second,
	}
}

func startSession(t *testing.T, cfg Config, roster *slotpooltest.FakeRoster, bus *slotpooltest.LoopbackBus, opts ...Option) *Session {
	t.Helper()

	opts = append(opts, WithLogger(slotpooltest.NewTestLogger(t)))
	sess, err := NewSession(&cfg, roster, bus, opts...)
	require.NoError(t, err)
	require.NoError(t, sess.Start(t.Context()))
	t.Cleanup(func() { _ = sess.Stop(context.Background()) })

	return sess
}

func TestNewSession_Validation(t *testing.T) {
	cfg := testConfig(4)
	bus := slotpooltest.NewLoopbackBus()
	roster := slotpooltest.NewFakeRoster()

	_, err := NewSession(&cfg, nil, bus)
	require.ErrorIs(t, err, ErrRosterRequired)

	_, err = NewSession(&cfg, roster, nil)
	require.ErrorIs(t, err, ErrTransportRequired)

	bad := testConfig(0)
	_, err = NewSession(&bad, roster, bus)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSession_Lifecycle(t *testing.T) {
	cfg := testConfig(4)
	sess, err := NewSession(&cfg, slotpooltest.NewFakeRoster(), slotpooltest.NewLoopbackBus())
	require.NoError(t, err)

	require.ErrorIs(t, sess.Stop(context.Background()), ErrNotStarted)
	require.NoError(t, sess.Start(t.Context()))
	require.ErrorIs(t, sess.Start(t.Context()), ErrAlreadyStarted)
	require.NoError(t, sess.Stop(context.Background()))
	require.ErrorIs(t, sess.Stop(context.Background()), ErrNotStarted)
}

// A coordinator assigns joining members and replicates; its own listener
// hears the events via the loopback reconcile.
func TestSession_CoordinatorAssignsOnJoin(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	roster.SetCoordinator(true)
	bus := slotpooltest.NewLoopbackBus()
	listener := &safeListener{}

	sess := startSession(t, testConfig(4), roster, bus)
	defer sess.RegisterListener(listener)()

	roster.Join(1)
	roster.Join(2)

	require.Eventually(t, func() bool {
		return listener.count("assign") == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NotEqual(t, NoSlot, sess.GetSlotForMember(1))
	require.NotEqual(t, NoSlot, sess.GetSlotForMember(2))
	require.NotEqual(t, sess.GetSlotForMember(1), sess.GetSlotForMember(2))
	require.Equal(t, types.RoleCoordinator, sess.Role())
}

// Ten joins inside one debounce window converge into a single publish
// carrying the full table.
func TestSession_BurstCoalescesIntoOnePublish(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	roster.SetCoordinator(true)
	cfg := testConfig(16)
	cfg.DebounceInterval = 60 * time.Millisecond
	bus := slotpooltest.NewLoopbackBus()

	sess := startSession(t, cfg, roster, bus)

	for m := types.MemberID(1); m <= 10; m++ {
		roster.Join(m)
	}

	require.Eventually(t, func() bool {
		return bus.PublishCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(2 * cfg.DebounceInterval)
	require.Equal(t, 1, bus.PublishCount(), "join burst must coalesce into one publish")

	last := bus.LastPublished()
	require.Len(t, last.OrderedMembers(), 10)
	require.Len(t, sess.OrderedMembers(), 10)
}

// A follower replica converges on the coordinator's assignments and
// computes the same seed.
func TestSession_FollowerConverges(t *testing.T) {
	bus := slotpooltest.NewLoopbackBus()

	rosterA := slotpooltest.NewFakeRoster()
	rosterA.SetCoordinator(true)
	coordinator := startSession(t, testConfig(4), rosterA, bus)

	rosterB := slotpooltest.NewFakeRoster()
	rosterB.Populate(1, 2)
	followerListener := &safeListener{}
	follower := startSession(t, testConfig(4), rosterB, bus)
	defer follower.RegisterListener(followerListener)()

	rosterA.Join(1)
	rosterA.Join(2)

	require.Eventually(t, func() bool {
		return followerListener.count("assign") == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, coordinator.GetSlotForMember(1), follower.GetSlotForMember(1))
	require.Equal(t, coordinator.OrderedMembers(), follower.OrderedMembers())
	require.Equal(t, coordinator.Seed(), follower.Seed())
	require.Equal(t, types.RoleFollower, follower.Role())
}

// A snapshot that outruns the member's join event is deferred; the
// assign fires exactly once when the join arrives.
func TestSession_DeferredAssignmentResolvesOnJoin(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	bus := slotpooltest.NewLoopbackBus()
	listener := &safeListener{}

	sess := startSession(t, testConfig(4), roster, bus)
	defer sess.RegisterListener(listener)()

	// Replication arrives before the local join event for member 42.
	require.NoError(t, bus.PublishSnapshot(t.Context(), types.Snapshot{types.NoMember, 42, types.NoMember, types.NoMember}))

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, listener.snapshot(), "unresolved member must not produce events")

	roster.Join(42)

	require.Eventually(t, func() bool {
		return listener.count("assign") == 1
	}, 2*time.Second, 10*time.Millisecond)

	events := listener.snapshot()
	require.Equal(t, []transition{{"assign", 1, 42}}, events)
	require.Equal(t, 1, sess.GetSlotForMember(42))

	// Redelivery of the same snapshot stays silent.
	require.NoError(t, bus.PublishSnapshot(t.Context(), types.Snapshot{types.NoMember, 42, types.NoMember, types.NoMember}))
	time.Sleep(50 * time.Millisecond)
	require.Len(t, listener.snapshot(), 1, "assign must fire exactly once")
}

// Coordinator handoff: the new coordinator's table shows a slot owned by
// a member that already left; the verification sweep releases it.
func TestSession_HandoffSweepRepairsDrift(t *testing.T) {
	bus := slotpooltest.NewLoopbackBus()

	rosterA := slotpooltest.NewFakeRoster()
	rosterA.SetCoordinator(true)
	startSession(t, testConfig(4), rosterA, bus)

	rosterB := slotpooltest.NewFakeRoster()
	rosterB.Populate(1, 2)
	listenerB := &safeListener{}
	replicaB := startSession(t, testConfig(4), rosterB, bus)
	defer replicaB.RegisterListener(listenerB)()

	rosterA.Join(1)
	rosterA.Join(2)

	require.Eventually(t, func() bool {
		return listenerB.count("assign") == 2
	}, 2*time.Second, 10*time.Millisecond)

	slotOf2 := replicaB.GetSlotForMember(2)
	require.NotEqual(t, NoSlot, slotOf2)

	// Member 2 disappears without a leave event, then the coordinator
	// role transfers to replica B.
	rosterB.Remove(2)
	rosterA.SetCoordinator(false)
	rosterB.SetCoordinator(true)

	require.Eventually(t, func() bool {
		return replicaB.GetSlotForMember(2) == NoSlot
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return listenerB.count("unassign") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The repaired slot is reusable by the next join.
	rosterB.Join(3)
	require.Eventually(t, func() bool {
		return replicaB.GetSlotForMember(3) != NoSlot
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_CapacityExhaustedHook(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	roster.SetCoordinator(true)

	exhausted := make(chan types.MemberID, 1)
	hooks := &Hooks{
		OnCapacityExhausted: func(_ context.Context, member types.MemberID) error {
			select {
			case exhausted <- member:
			default:
			}
			return nil
		},
	}

	sess := startSession(t, testConfig(1), roster, slotpooltest.NewLoopbackBus(), WithHooks(hooks))

	roster.Join(1)
	roster.Join(2)

	select {
	case m := <-exhausted:
		require.Equal(t, types.MemberID(2), m)
	case <-time.After(2 * time.Second):
		t.Fatal("capacity exhausted hook not called")
	}

	require.NotEqual(t, NoSlot, sess.GetSlotForMember(1))
	require.Equal(t, NoSlot, sess.GetSlotForMember(2))
}

func TestSession_RoleChangeHook(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()

	changes := make(chan types.Role, 4)
	hooks := &Hooks{
		OnRoleChanged: func(_ context.Context, _, to types.Role) error {
			changes <- to
			return nil
		},
	}

	startSession(t, testConfig(4), roster, slotpooltest.NewLoopbackBus(), WithHooks(hooks))

	roster.SetCoordinator(true)
	select {
	case to := <-changes:
		require.Equal(t, types.RoleCoordinator, to)
	case <-time.After(2 * time.Second):
		t.Fatal("role change hook not called")
	}

	roster.SetCoordinator(false)
	select {
	case to := <-changes:
		require.Equal(t, types.RoleFollower, to)
	case <-time.After(2 * time.Second):
		t.Fatal("role change hook not called for demotion")
	}
}

// A departed member's slot goes back to the free queue and is reused.
func TestSession_LeaveFreesSlot(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	roster.SetCoordinator(true)

	sess := startSession(t, testConfig(2), roster, slotpooltest.NewLoopbackBus())

	roster.Join(1)
	roster.Join(2)
	require.Eventually(t, func() bool {
		return len(sess.OrderedMembers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	slotOf1 := sess.GetSlotForMember(1)
	roster.Leave(1)

	require.Eventually(t, func() bool {
		return sess.GetSlotForMember(1) == NoSlot
	}, 2*time.Second, 10*time.Millisecond)

	roster.Join(3)
	require.Eventually(t, func() bool {
		return sess.GetSlotForMember(3) == slotOf1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_InvalidateKeepsLookupsWorking(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	roster.SetCoordinator(true)

	sess := startSession(t, testConfig(4), roster, slotpooltest.NewLoopbackBus())

	roster.Join(1)
	require.Eventually(t, func() bool {
		return sess.GetSlotForMember(1) != NoSlot
	}, 2*time.Second, 10*time.Millisecond)

	slot := sess.GetSlotForMember(1)
	sess.Invalidate()
	require.Equal(t, slot, sess.GetSlotForMember(1), "lookup after invalidation rebuilds and answers")
}

// Stop on a dirty coordinator publishes the final state so survivors see it.
func TestSession_StopFlushesDirtyState(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	roster.SetCoordinator(true)
	bus := slotpooltest.NewLoopbackBus()

	cfg := testConfig(2)
	cfg.DebounceInterval = time.Hour // Never publishes on its own.
	sess, err := NewSession(&cfg, roster, bus, WithLogger(slotpooltest.NewTestLogger(t)))
	require.NoError(t, err)
	require.NoError(t, sess.Start(t.Context()))

	roster.Join(1)
	require.Eventually(t, func() bool {
		return sess.GetSlotForMember(1) != NoSlot
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, bus.PublishCount())

	require.NoError(t, sess.Stop(context.Background()))
	require.Equal(t, 1, bus.PublishCount())
	require.Equal(t, types.MemberID(1), bus.LastPublished()[sessSlot(bus.LastPublished(), 1)])
}

// A demoted coordinator drops its unpublished mutation instead of
// replicating a table it is no longer authoritative for.
func TestSession_DemotionDropsPendingPublish(t *testing.T) {
	roster := slotpooltest.NewFakeRoster()
	roster.SetCoordinator(true)
	bus := slotpooltest.NewLoopbackBus()

	cfg := testConfig(2)
	cfg.DebounceInterval = 200 * time.Millisecond
	sess := startSession(t, cfg, roster, bus)

	roster.Join(1)
	require.Eventually(t, func() bool {
		return sess.GetSlotForMember(1) != NoSlot
	}, 2*time.Second, 5*time.Millisecond)

	// Demote before the debounce elapses; the armed attempt must yield.
	roster.SetCoordinator(false)
	time.Sleep(2 * cfg.DebounceInterval)
	require.Equal(t, 0, bus.PublishCount())

	// Stop has nothing to flush either.
	require.NoError(t, sess.Stop(context.Background()))
	require.Equal(t, 0, bus.PublishCount())
}

// sessSlot finds the slot owned by m in a snapshot.
func sessSlot(snap types.Snapshot, m types.MemberID) int {
	for i, owner := range snap {
		if owner == m {
			return i
		}
	}

	return NoSlot
}
