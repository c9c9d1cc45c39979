package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/slotpool/internal/logging"
	"github.com/arloliu/slotpool/types"
)

// Common errors for presence publishing.
var (
	ErrPresenceNotStarted     = errors.New("presence publisher not started")
	ErrPresenceAlreadyStarted = errors.New("presence publisher already started")
)

// Presence publishes periodic liveness heartbeats for one member into a
// TTL KV bucket.
//
// Peers treat the existence of the key as presence. The key value is the
// last heartbeat timestamp, useful when inspecting the bucket by hand,
// but nothing parses it. When the publisher stops cleanly it deletes its
// key so the departure is observed immediately; when it crashes, the
// bucket TTL expires the key after a few missed heartbeats.
type Presence struct {
	kv       jetstream.KeyValue
	memberID types.MemberID
	interval time.Duration
	logger   types.Logger

	mu      sync.Mutex
	started bool
	ticker  *time.Ticker
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPresence creates a presence publisher for the given member.
//
// The KV bucket should be configured with a TTL of ~3x the heartbeat
// interval so a crash is detected after three missed heartbeats.
//
// Parameters:
//   - kv: JetStream KV bucket for presence keys
//   - memberID: Member identity to publish presence for
//   - interval: Heartbeat interval (typically 2s)
//   - logger: Structured logger (nil selects a no-op logger)
//
// Returns:
//   - *Presence: New presence publisher, not yet started
func NewPresence(kv jetstream.KeyValue, memberID types.MemberID, interval time.Duration, logger types.Logger) *Presence {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Presence{
		kv:       kv,
		memberID: memberID,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start publishes the first heartbeat immediately, then continues at the
// configured interval in a background goroutine until Stop is called.
//
// Parameters:
//   - ctx: Context for the initial publish
//
// Returns:
//   - error: ErrPresenceAlreadyStarted if running, or the initial
//     publish error (the publisher does not start in that case)
func (p *Presence) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPresenceAlreadyStarted
	}

	// First heartbeat up front so peers see the join without waiting a
	// full interval.
	if err := p.publish(ctx); err != nil {
		return fmt.Errorf("failed to publish initial heartbeat: %w", err)
	}

	p.started = true
	p.ticker = time.NewTicker(p.interval)
	go p.publishLoop()

	return nil
}

// Stop halts heartbeat publishing and deletes the presence key so peers
// observe the departure immediately instead of waiting out the TTL.
//
// Blocks until the publish goroutine exits.
//
// Returns:
//   - error: ErrPresenceNotStarted if not running, or the cleanup delete
//     error (the publisher is stopped regardless)
func (p *Presence) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrPresenceNotStarted
	}
	p.started = false
	p.ticker.Stop()
	close(p.stopCh)
	p.mu.Unlock()

	<-p.doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.kv.Delete(ctx, presenceKey(p.memberID)); err != nil {
		return fmt.Errorf("stopped but failed to delete presence key: %w", err)
	}

	return nil
}

func (p *Presence) publishLoop() {
	defer close(p.doneCh)

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := p.publish(ctx)
			cancel()

			if err != nil {
				// Transient failures are fine as long as one publish
				// lands inside the TTL window.
				p.logger.Warn("presence heartbeat failed", "member", p.memberID, "error", err)
			}
		}
	}
}

func (p *Presence) publish(ctx context.Context) error {
	value := []byte(time.Now().Format(time.RFC3339Nano))
	if _, err := p.kv.Put(ctx, presenceKey(p.memberID), value); err != nil {
		return fmt.Errorf("failed to publish heartbeat for member %d: %w", p.memberID, err)
	}

	return nil
}

// presenceKey returns the KV key a member's heartbeat is stored under.
func presenceKey(id types.MemberID) string {
	return strconv.FormatInt(int64(id), 10)
}

// parsePresenceKey recovers the member id from a presence key. Keys that
// do not parse to a positive id are ignored by the watcher and scanner.
func parsePresenceKey(key string) (types.MemberID, bool) {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil || n <= 0 {
		return types.NoMember, false
	}

	return types.MemberID(n), true
}
