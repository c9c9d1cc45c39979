// Package runloop provides a single-threaded task loop.
//
// All session mutation and reconciliation logic runs to completion on one
// loop goroutine, so the core needs no locking: external events (member
// join/leave, snapshot received, timer fired) are submitted as tasks and
// execute sequentially. Delayed work is the only other primitive: AfterFunc
// schedules a task onto the same loop after a delay.
package runloop

import (
	"sync"
	"time"

	"github.com/arloliu/slotpool/types"
)

// Loop is a single-goroutine task executor.
//
// Tasks submitted from any goroutine run one at a time, in submission
// order, on the loop goroutine. A task scheduled with AfterFunc can be
// superseded by later state changes but not cancelled; tasks are expected
// to re-check their preconditions when they run.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	started bool
	stopped bool

	stopCh chan struct{}
	doneCh chan struct{}

	logger types.Logger
}

// New creates a new, unstarted loop.
//
// Parameters:
//   - logger: Logger for lifecycle events
//
// Returns:
//   - *Loop: A new loop instance; call Start before submitting tasks
func New(logger types.Logger) *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

// Start launches the loop goroutine.
//
// Returns:
//   - error: ErrAlreadyStarted if the loop is already running
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return types.ErrAlreadyStarted
	}
	l.started = true

	go l.run()

	return nil
}

// Stop stops the loop and waits for the current task to complete.
//
// Pending tasks that have not started are discarded. Safe to call more
// than once; subsequent calls return immediately.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	close(l.stopCh)
	<-l.doneCh

	l.mu.Lock()
	discarded := len(l.tasks)
	l.tasks = nil
	l.mu.Unlock()

	if discarded > 0 {
		l.logger.Debug("discarded pending tasks on stop", "count", discarded)
	}
}

// Submit enqueues a task for execution on the loop goroutine.
//
// Parameters:
//   - fn: Task to run; must not block indefinitely
//
// Returns:
//   - bool: false if the loop is stopped and the task was discarded
func (l *Loop) Submit(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return true
}

// AfterFunc schedules fn to run on the loop after the given delay.
//
// There is no cancellation: a fired timer whose work has been superseded
// is expected to detect that and return without effect. Timers racing
// Stop are discarded by Submit.
//
// Parameters:
//   - d: Delay before fn is submitted
//   - fn: Task to run on the loop
func (l *Loop) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		l.Submit(fn)
	})
}

// RunSync executes fn on the loop and blocks until it completes.
//
// Used for read operations that need a consistent view of loop-confined
// state. Falls back to running fn inline if the loop has not started or
// has stopped, so lookups keep working outside the running window.
//
// Parameters:
//   - fn: Task to run; must not call RunSync recursively
func (l *Loop) RunSync(fn func()) {
	l.mu.Lock()
	running := l.started && !l.stopped
	l.mu.Unlock()

	if !running {
		// No goroutine would drain the queue; run inline instead of
		// parking the caller forever.
		fn()
		return
	}

	done := make(chan struct{})
	if ok := l.Submit(func() {
		fn()
		close(done)
	}); !ok {
		fn()
		return
	}

	select {
	case <-done:
	case <-l.doneCh:
		// Loop stopped before the task ran.
	}
}

// run drains tasks until stopped.
func (l *Loop) run() {
	defer close(l.doneCh)

	for {
		select {
		case <-l.stopCh:
			return
		case <-l.wake:
			l.drain()
		}
	}
}

// drain runs all currently queued tasks.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		task()

		select {
		case <-l.stopCh:
			return
		default:
		}
	}
}
