package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/slotpool/internal/kvutil"
	"github.com/arloliu/slotpool/internal/logging"
	"github.com/arloliu/slotpool/internal/natsutil"
	"github.com/arloliu/slotpool/types"
)

const (
	// DefaultBucket is the KV bucket holding replicated snapshots.
	DefaultBucket = "slotpool-snapshot"

	// DefaultKey is the KV key the assignment table is written to.
	DefaultKey = "assignment"

	// DefaultCongestionThreshold is the outbound buffer size above which
	// the connection is reported congested.
	DefaultCongestionThreshold = 1 << 20 // 1 MiB
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("transport already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("transport not started")
)

// Config configures the NATS KV snapshot transport.
type Config struct {
	// Bucket is the KV bucket name. Defaults to DefaultBucket.
	Bucket string

	// Key is the KV key the snapshot is stored under. Defaults to
	// DefaultKey. Sessions sharing a pool must agree on bucket and key.
	Key string

	// CongestionThreshold is the outbound buffer size in bytes above
	// which IsCongested reports true. Defaults to
	// DefaultCongestionThreshold.
	CongestionThreshold int

	// Replicas is the KV bucket replica count. Defaults to 1.
	Replicas int

	// Logger is the structured logger. Defaults to a no-op logger.
	Logger types.Logger
}

// KVTransport replicates snapshots through a single NATS JetStream KV key.
//
// Publishing is a plain Put; the bucket keeps only the latest revision.
// Every replica watches the key and receives each new revision, with KV
// coalescing slow consumers down to the most recent value. Subscribers
// registered after a snapshot has already been observed receive the
// cached latest snapshot immediately, so a late-starting replica does not
// wait for the next mutation to converge.
type KVTransport struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	key    string
	logger types.Logger

	congestionThreshold int

	mu          sync.Mutex
	subscribers map[uint64]func(types.Snapshot)
	nextID      uint64
	last        types.Snapshot
	started     bool
	stopped     bool

	watcherMu sync.Mutex
	watcher   jetstream.KeyWatcher

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ types.Transport = (*KVTransport)(nil)

// NewKVTransport creates a snapshot transport backed by a NATS JetStream
// KV bucket, creating the bucket if it does not exist yet.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - nc: Connected NATS client
//   - cfg: Transport configuration (zero value selects all defaults)
//
// Returns:
//   - *KVTransport: The transport, not yet started
//   - error: Bucket creation/open error
//
// Example:
//
//	nc, _ := nats.Connect(nats.DefaultURL)
//	tr, err := transport.NewKVTransport(ctx, nc, transport.Config{})
//	if err != nil {
//	    return err
//	}
//	if err := tr.Start(ctx); err != nil {
//	    return err
//	}
//	defer tr.Stop()
func NewKVTransport(ctx context.Context, nc *nats.Conn, cfg Config) (*KVTransport, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.CongestionThreshold <= 0 {
		cfg.CongestionThreshold = DefaultCongestionThreshold
	}
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "slotpool assignment snapshots",
		History:     1,
		Replicas:    cfg.Replicas,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure snapshot bucket: %w", err)
	}

	return &KVTransport{
		nc:                  nc,
		kv:                  kv,
		key:                 cfg.Key,
		logger:              cfg.Logger,
		congestionThreshold: cfg.CongestionThreshold,
		subscribers:         make(map[uint64]func(types.Snapshot)),
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}, nil
}

// Start begins watching the snapshot key in a background goroutine.
//
// The watcher replays the current value first, so replicas that start
// after the pool has state converge immediately.
//
// Parameters:
//   - ctx: Context bounding the watcher lifetime
//
// Returns:
//   - error: ErrAlreadyStarted if called twice, or watcher setup error
func (t *KVTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrNotStarted
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.mu.Unlock()

	watcher, err := t.kv.Watch(ctx, t.key)
	if err != nil {
		t.mu.Lock()
		t.started = false
		t.mu.Unlock()

		return fmt.Errorf("failed to watch snapshot key: %w", err)
	}

	t.watcherMu.Lock()
	t.watcher = watcher
	t.watcherMu.Unlock()

	go t.processWatcherEvents(ctx)

	return nil
}

// Stop stops the watcher and waits for it to exit.
//
// Safe to call more than once; subsequent calls return immediately.
//
// Returns:
//   - error: ErrNotStarted if Start was never called
func (t *KVTransport) Stop() error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return ErrNotStarted
	}
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	close(t.stopCh)
	<-t.doneCh
	t.stopWatcher()

	return nil
}

// PublishSnapshot writes the snapshot to the KV key.
//
// KV Put is durable from the publisher's view once it returns; failure
// means the write did not take effect and the caller should retry.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - snap: Full assignment table snapshot
//
// Returns:
//   - error: Wrapped ErrPublishFailed on failure
func (t *KVTransport) PublishSnapshot(ctx context.Context, snap types.Snapshot) error {
	if _, err := t.kv.Put(ctx, t.key, encodeSnapshot(snap)); err != nil {
		if natsutil.IsConnectivityError(err) {
			t.logger.Debug("snapshot publish hit connectivity issue", "error", err)
		}

		return fmt.Errorf("%w: %w", types.ErrPublishFailed, err)
	}

	return nil
}

// SubscribeSnapshots registers a callback for received snapshots.
//
// If a snapshot has already been observed, the callback is invoked with
// it immediately, from the caller's goroutine. Later deliveries come from
// the watcher goroutine.
//
// Returns:
//   - func(): Unsubscribe function; safe to call more than once
func (t *KVTransport) SubscribeSnapshots(fn func(types.Snapshot)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subscribers[id] = fn
	last := t.last.Clone()
	t.mu.Unlock()

	if last != nil {
		fn(last)
	}

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

// IsCongested reports whether the NATS connection is congested.
//
// The connection is congested when it is not in the CONNECTED state, or
// when its outbound buffer exceeds the configured threshold. Both are
// local observations; no round-trip is made.
func (t *KVTransport) IsCongested() bool {
	if t.nc.Status() != nats.CONNECTED {
		return true
	}

	buffered, err := t.nc.Buffered()
	if err != nil {
		return true
	}

	return buffered > t.congestionThreshold
}

// processWatcherEvents fans decoded snapshots out to subscribers.
//
// Signals doneCh on exit so Stop can wait for cleanup.
func (t *KVTransport) processWatcherEvents(ctx context.Context) {
	defer close(t.doneCh)

	t.watcherMu.Lock()
	watcher := t.watcher
	t.watcherMu.Unlock()

	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				t.logger.Debug("snapshot watcher channel closed")
				return
			}
			if entry == nil {
				// Initial replay done.
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}

			snap, err := decodeSnapshot(entry.Value())
			if err != nil {
				t.logger.Warn("discarding malformed snapshot",
					"revision", entry.Revision(),
					"size", len(entry.Value()),
					"error", err,
				)

				continue
			}

			t.logger.Debug("received snapshot",
				"revision", entry.Revision(),
				"slots", len(snap),
			)
			t.deliver(snap)
		}
	}
}

// deliver caches the snapshot and invokes every subscriber with its own
// copy, so callbacks may retain what they receive.
func (t *KVTransport) deliver(snap types.Snapshot) {
	t.mu.Lock()
	t.last = snap
	fns := make([]func(types.Snapshot), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(snap.Clone())
	}
}

func (t *KVTransport) stopWatcher() {
	t.watcherMu.Lock()
	defer t.watcherMu.Unlock()

	if t.watcher != nil {
		if err := t.watcher.Stop(); err != nil {
			t.logger.Warn("failed to stop snapshot watcher", "error", err)
		}
		t.watcher = nil
	}
}

// encodeSnapshot serializes a snapshot as 8 bytes little-endian per slot.
//
// The encoding carries no length prefix or version; the slot count is
// implied by the value size, and every session sharing the key must be
// configured with the same pool size.
func encodeSnapshot(snap types.Snapshot) []byte {
	buf := make([]byte, len(snap)*8)
	for i, m := range snap {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(m)) //nolint:gosec // stable byte encoding, sign is preserved
	}

	return buf
}

// decodeSnapshot deserializes a snapshot encoded by encodeSnapshot.
func decodeSnapshot(data []byte) (types.Snapshot, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("snapshot payload size %d is not a multiple of 8", len(data))
	}

	snap := make(types.Snapshot, len(data)/8)
	for i := range snap {
		snap[i] = types.MemberID(binary.LittleEndian.Uint64(data[i*8:])) //nolint:gosec // inverse of the encode conversion
	}

	return snap, nil
}
