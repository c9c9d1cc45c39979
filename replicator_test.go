package slotpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/slotpool/internal/logging"
	"github.com/arloliu/slotpool/internal/metrics"
	"github.com/arloliu/slotpool/internal/runloop"
	slotpooltest "github.com/arloliu/slotpool/testing"
	"github.com/arloliu/slotpool/types"
)

type schedulerHarness struct {
	loop *runloop.Loop
	bus  *slotpooltest.LoopbackBus
	sch  *Scheduler

	mu       sync.Mutex
	snapshot types.Snapshot
	loopback []types.Snapshot
}

func newSchedulerHarness(t *testing.T, debounce time.Duration, retryLimit int) *schedulerHarness {
	t.Helper()

	h := &schedulerHarness{
		loop:     runloop.New(logging.NewNop()),
		bus:      slotpooltest.NewLoopbackBus(),
		snapshot: types.Snapshot{types.NoMember, types.NoMember},
	}
	h.sch = NewScheduler(SchedulerConfig{
		Loop:      h.loop,
		Transport: h.bus,
		Snapshot: func() types.Snapshot {
			h.mu.Lock()
			defer h.mu.Unlock()
			return h.snapshot.Clone()
		},
		OnPublished: func(snap types.Snapshot) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.loopback = append(h.loopback, snap)
		},
		Debounce:             debounce,
		CongestionRetryLimit: retryLimit,
		OperationTimeout:     time.Second,
		Logger:               logging.NewNop(),
		Metrics:              metrics.NewNop(),
	})

	require.NoError(t, h.loop.Start())
	t.Cleanup(h.loop.Stop)

	return h
}

func (h *schedulerHarness) mutate(snap types.Snapshot) {
	h.loop.RunSync(func() {
		h.mu.Lock()
		h.snapshot = snap.Clone()
		h.mu.Unlock()
		h.sch.MarkDirty()
	})
}

func (h *schedulerHarness) loopbackCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.loopback)
}

func TestScheduler_PublishesAfterDebounce(t *testing.T) {
	h := newSchedulerHarness(t, 20*time.Millisecond, 3)

	h.mutate(types.Snapshot{1, types.NoMember})

	require.Eventually(t, func() bool {
		return h.bus.PublishCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, types.Snapshot{1, types.NoMember}, h.bus.LastPublished())

	// No further mutations, no further publishes.
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, h.bus.PublishCount())
}

// A burst of mutations within one debounce window produces exactly one
// publish, carrying the final converged state.
func TestScheduler_CoalescesBurst(t *testing.T) {
	h := newSchedulerHarness(t, 50*time.Millisecond, 3)

	for i := types.MemberID(1); i <= 10; i++ {
		h.mutate(types.Snapshot{i, types.NoMember})
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return h.bus.PublishCount() >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, h.bus.PublishCount(), "burst must coalesce into one publish")
	require.Equal(t, types.Snapshot{10, types.NoMember}, h.bus.LastPublished())
}

func TestScheduler_SuccessTriggersLoopback(t *testing.T) {
	h := newSchedulerHarness(t, 10*time.Millisecond, 3)

	h.mutate(types.Snapshot{5, types.NoMember})

	require.Eventually(t, func() bool {
		return h.loopbackCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_RetriesFailedPublish(t *testing.T) {
	h := newSchedulerHarness(t, 10*time.Millisecond, 3)
	h.bus.FailNext(2)

	h.mutate(types.Snapshot{7, types.NoMember})

	require.Eventually(t, func() bool {
		return h.bus.PublishCount() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, types.Snapshot{7, types.NoMember}, h.bus.LastPublished())
}

// Congestion defers publishing up to the retry limit, then the publish
// is forced through.
func TestScheduler_CongestionDeferralThenForce(t *testing.T) {
	h := newSchedulerHarness(t, 10*time.Millisecond, 3)
	h.bus.SetCongested(true)

	h.mutate(types.Snapshot{9, types.NoMember})

	// Deferred while under the limit.
	time.Sleep(25 * time.Millisecond)
	require.Equal(t, 0, h.bus.PublishCount())

	// Past the limit the publish goes through despite congestion.
	require.Eventually(t, func() bool {
		return h.bus.PublishCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_CongestionClearsEarly(t *testing.T) {
	h := newSchedulerHarness(t, 10*time.Millisecond, 100)
	h.bus.SetCongested(true)

	h.mutate(types.Snapshot{3, types.NoMember})
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, 0, h.bus.PublishCount())

	h.bus.SetCongested(false)
	require.Eventually(t, func() bool {
		return h.bus.PublishCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_FlushPublishesDirtyState(t *testing.T) {
	h := newSchedulerHarness(t, time.Hour, 3)

	h.mutate(types.Snapshot{4, types.NoMember})
	require.Equal(t, 0, h.bus.PublishCount())

	h.loop.RunSync(h.sch.Flush)
	require.Equal(t, 1, h.bus.PublishCount())

	// Clean state flushes nothing.
	h.loop.RunSync(h.sch.Flush)
	require.Equal(t, 1, h.bus.PublishCount())
}

func TestScheduler_ResetDropsPendingPublish(t *testing.T) {
	h := newSchedulerHarness(t, 20*time.Millisecond, 3)

	h.mutate(types.Snapshot{5, types.NoMember})
	h.loop.RunSync(h.sch.Reset)

	// The armed attempt fires but yields on the clean state.
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 0, h.bus.PublishCount())

	// Reset also clears the dirty flag Flush checks.
	h.loop.RunSync(h.sch.Flush)
	require.Equal(t, 0, h.bus.PublishCount())
}
