package runloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/slotpool/internal/logging"
)

func TestLoop_StartStop(t *testing.T) {
	loop := New(logging.NewNop())
	require.NoError(t, loop.Start())
	require.Error(t, loop.Start())

	loop.Stop()
	loop.Stop() // idempotent
}

func TestLoop_SubmitOrdering(t *testing.T) {
	loop := New(logging.NewNop())
	require.NoError(t, loop.Start())
	defer loop.Stop()

	results := make([]int, 0, 100)
	done := make(chan struct{})

	for i := range 100 {
		loop.Submit(func() {
			results = append(results, i)
		})
	}
	loop.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not complete")
	}

	require.Len(t, results, 100)
	for i, v := range results {
		require.Equal(t, i, v, "tasks must run in submission order")
	}
}

func TestLoop_SubmitAfterStop(t *testing.T) {
	loop := New(logging.NewNop())
	require.NoError(t, loop.Start())
	loop.Stop()

	require.False(t, loop.Submit(func() {
		t.Error("task ran after stop")
	}))
}

func TestLoop_RunSync(t *testing.T) {
	loop := New(logging.NewNop())
	require.NoError(t, loop.Start())
	defer loop.Stop()

	value := 0
	loop.Submit(func() { value = 42 })

	var observed int
	loop.RunSync(func() { observed = value })

	require.Equal(t, 42, observed, "RunSync must observe prior submitted mutations")
}

func TestLoop_RunSyncStoppedLoop(t *testing.T) {
	loop := New(logging.NewNop())
	require.NoError(t, loop.Start())
	loop.Stop()

	ran := false
	loop.RunSync(func() { ran = true })
	require.True(t, ran, "RunSync runs inline when the loop is stopped")
}

func TestLoop_RunSyncBeforeStart(t *testing.T) {
	loop := New(logging.NewNop())

	ran := false
	loop.RunSync(func() { ran = true })
	require.True(t, ran, "RunSync runs inline when the loop was never started")
}

func TestLoop_AfterFunc(t *testing.T) {
	loop := New(logging.NewNop())
	require.NoError(t, loop.Start())
	defer loop.Stop()

	var fired atomic.Bool
	loop.AfterFunc(10*time.Millisecond, func() {
		fired.Store(true)
	})

	require.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
}

func TestLoop_AfterFuncAfterStopDiscarded(t *testing.T) {
	loop := New(logging.NewNop())
	require.NoError(t, loop.Start())

	loop.AfterFunc(10*time.Millisecond, func() {
		t.Error("timer task ran after stop")
	})
	loop.Stop()

	time.Sleep(30 * time.Millisecond)
}
