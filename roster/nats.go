package roster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/slotpool/internal/election"
	"github.com/arloliu/slotpool/internal/kvutil"
	"github.com/arloliu/slotpool/internal/logging"
	"github.com/arloliu/slotpool/types"
)

const (
	// DefaultPresenceBucket is the KV bucket holding presence heartbeats.
	DefaultPresenceBucket = "slotpool-presence"

	// DefaultElectionBucket is the KV bucket holding the coordinator lease.
	DefaultElectionBucket = "slotpool-election"

	// DefaultElectionKey is the lease key within the election bucket.
	DefaultElectionKey = "coordinator"

	// DefaultHeartbeatInterval is how often presence heartbeats publish.
	DefaultHeartbeatInterval = 2 * time.Second

	// DefaultLeaseTTL bounds how long a crashed coordinator blocks
	// failover.
	DefaultLeaseTTL = 6 * time.Second
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("roster already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("roster not started")
)

// Config configures the NATS-backed roster.
type Config struct {
	// MemberID is the local replica's member identity. Required,
	// must be positive.
	MemberID types.MemberID

	// PresenceBucket is the KV bucket for presence heartbeats.
	// Defaults to DefaultPresenceBucket.
	PresenceBucket string

	// ElectionBucket is the KV bucket for the coordinator lease.
	// Defaults to DefaultElectionBucket.
	ElectionBucket string

	// ElectionKey is the lease key. Defaults to DefaultElectionKey.
	// Sessions sharing a pool must agree on buckets and key.
	ElectionKey string

	// HeartbeatInterval is the presence publish cadence. Defaults to
	// DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// HeartbeatTTL is the presence bucket TTL. Defaults to 3x the
	// heartbeat interval.
	HeartbeatTTL time.Duration

	// LeaseTTL is the election bucket TTL. Defaults to DefaultLeaseTTL.
	// The lease renews every LeaseTTL/3.
	LeaseTTL time.Duration

	// Replicas is the KV bucket replica count. Defaults to 1.
	Replicas int

	// Logger is the structured logger. Defaults to a no-op logger.
	Logger types.Logger
}

func (c *Config) setDefaults() {
	if c.PresenceBucket == "" {
		c.PresenceBucket = DefaultPresenceBucket
	}
	if c.ElectionBucket == "" {
		c.ElectionBucket = DefaultElectionBucket
	}
	if c.ElectionKey == "" {
		c.ElectionKey = DefaultElectionKey
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatTTL <= 0 {
		c.HeartbeatTTL = 3 * c.HeartbeatInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
}

// KVRoster derives session membership and the coordinator role from NATS
// KV state.
//
// Membership is the set of keys in the presence bucket: the local replica
// heartbeats its own key, a watcher plus a polling fallback diff the
// observed key set against the last view, and the differences become
// join/leave notifications. The coordinator role is a renewable lease in
// the election bucket.
//
// The roster is itself a participant: the local member appears in
// LiveMembers and receives its own join notification once its first
// heartbeat is observed.
type KVRoster struct {
	cfg       Config
	logger    types.Logger
	replicaID string

	presenceKV jetstream.KeyValue
	presence   *Presence
	lease      *election.Lease

	coordinator atomic.Bool

	mu        sync.Mutex
	known     map[types.MemberID]struct{}
	listeners map[uint64]types.RosterListener
	nextID    uint64
	started   bool
	stopped   bool

	watcherMu sync.Mutex
	watcher   jetstream.KeyWatcher

	stopCh      chan struct{}
	monitorDone chan struct{}
	electDone   chan struct{}
}

var _ types.Roster = (*KVRoster)(nil)

// NewKVRoster creates a roster for the given member, creating the
// presence and election buckets if they do not exist yet.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - nc: Connected NATS client
//   - cfg: Roster configuration, MemberID is required
//
// Returns:
//   - *KVRoster: The roster, not yet started
//   - error: Validation or bucket creation error
//
// Example:
//
//	ros, err := roster.NewKVRoster(ctx, nc, roster.Config{MemberID: 42})
//	if err != nil {
//	    return err
//	}
//	if err := ros.Start(ctx); err != nil {
//	    return err
//	}
//	defer ros.Stop()
func NewKVRoster(ctx context.Context, nc *nats.Conn, cfg Config) (*KVRoster, error) {
	if cfg.MemberID <= types.NoMember {
		return nil, fmt.Errorf("%w: roster member id must be positive", types.ErrInvalidMember)
	}
	cfg.setDefaults()

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	presenceKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.PresenceBucket,
		Description: "slotpool presence heartbeats",
		TTL:         cfg.HeartbeatTTL,
		Replicas:    cfg.Replicas,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure presence bucket: %w", err)
	}

	electionKV, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
		Bucket:      cfg.ElectionBucket,
		Description: "slotpool coordinator lease",
		TTL:         cfg.LeaseTTL,
		Replicas:    cfg.Replicas,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure election bucket: %w", err)
	}

	return &KVRoster{
		cfg:         cfg,
		logger:      cfg.Logger,
		replicaID:   "member-" + strconv.FormatInt(int64(cfg.MemberID), 10),
		presenceKV:  presenceKV,
		presence:    NewPresence(presenceKV, cfg.MemberID, cfg.HeartbeatInterval, cfg.Logger),
		lease:       election.NewLease(electionKV, cfg.ElectionKey),
		known:       make(map[types.MemberID]struct{}),
		listeners:   make(map[uint64]types.RosterListener),
		stopCh:      make(chan struct{}),
		monitorDone: make(chan struct{}),
		electDone:   make(chan struct{}),
	}, nil
}

// Start publishes the local presence heartbeat and begins membership
// monitoring and coordinator election in background goroutines.
//
// Parameters:
//   - ctx: Context bounding the background goroutines
//
// Returns:
//   - error: ErrAlreadyStarted if called twice, or the initial
//     heartbeat publish error
func (r *KVRoster) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	if err := r.presence.Start(ctx); err != nil {
		r.mu.Lock()
		r.started = false
		r.mu.Unlock()

		return fmt.Errorf("failed to start presence publisher: %w", err)
	}

	go r.monitorMembers(ctx)
	go r.electionLoop(ctx)

	return nil
}

// Stop halts monitoring and election, deletes the local presence key and
// releases the coordinator lease if held, so peers observe the departure
// and failover immediately.
//
// Blocks until all background goroutines have exited. Safe to call more
// than once.
//
// Returns:
//   - error: ErrNotStarted if Start was never called, otherwise any
//     cleanup errors joined together
func (r *KVRoster) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.monitorDone
	<-r.electDone
	r.stopWatcher()

	var errs []error

	if err := r.presence.Stop(); err != nil && !errors.Is(err, ErrPresenceNotStarted) {
		errs = append(errs, err)
	}

	if r.coordinator.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := r.lease.Release(ctx); err != nil && !errors.Is(err, election.ErrNotHolder) {
			errs = append(errs, fmt.Errorf("failed to release coordinator lease: %w", err))
		}
		r.coordinator.Store(false)
	}

	return errors.Join(errs...)
}

// IsLocalCoordinator reports whether this replica currently holds the
// coordinator lease.
func (r *KVRoster) IsLocalCoordinator() bool {
	return r.coordinator.Load()
}

// LiveMembers enumerates members with an unexpired presence heartbeat.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - []types.MemberID: Present members, order unspecified
//   - error: KV scan error
func (r *KVRoster) LiveMembers(ctx context.Context) ([]types.MemberID, error) {
	keys, err := r.presenceKV.Keys(ctx)
	if err != nil {
		if types.IsNoKeysFoundError(err) {
			return []types.MemberID{}, nil
		}

		return nil, fmt.Errorf("failed to list presence keys: %w", err)
	}

	members := make([]types.MemberID, 0, len(keys))
	for _, key := range keys {
		id, ok := parsePresenceKey(key)
		if !ok {
			r.logger.Debug("skipping non-presence key", "key", key)
			continue
		}
		members = append(members, id)
	}

	return members, nil
}

// Resolve reports whether the member is in the current presence view.
// The local member always resolves, even before its first heartbeat has
// been observed back.
func (r *KVRoster) Resolve(id types.MemberID) bool {
	if id == r.cfg.MemberID {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.known[id]

	return ok
}

// Subscribe registers a listener for membership and role notifications.
//
// Callbacks fire from roster-internal goroutines.
//
// Returns:
//   - func(): Unsubscribe function; safe to call more than once
func (r *KVRoster) Subscribe(listener types.RosterListener) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = listener
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// monitorMembers runs the hybrid membership monitoring loop.
//
// A KV watcher gives fast detection of joins and clean leaves; periodic
// polling (twice per heartbeat TTL) catches TTL expirations and missed
// watcher events. Watcher events are debounced so a burst of heartbeat
// updates triggers a single membership check.
func (r *KVRoster) monitorMembers(ctx context.Context) {
	defer close(r.monitorDone)

	updates := r.startWatcher(ctx)

	ticker := time.NewTicker(r.cfg.HeartbeatTTL / 2)
	defer ticker.Stop()

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pendingCheck := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case entry := <-updates:
			if entry == nil {
				// Initial replay done or watcher stopped.
				continue
			}
			if !pendingCheck {
				pendingCheck = true
				debounce.Reset(100 * time.Millisecond)
			}
		case <-debounce.C:
			if pendingCheck {
				pendingCheck = false
				r.checkMembers(ctx)
			}
		case <-ticker.C:
			r.checkMembers(ctx)
		}
	}
}

// startWatcher starts the presence bucket watcher and returns its update
// channel, or nil when the watcher could not start. A nil channel blocks
// forever in select, leaving polling as the only detection path.
func (r *KVRoster) startWatcher(ctx context.Context) <-chan jetstream.KeyValueEntry {
	r.watcherMu.Lock()
	defer r.watcherMu.Unlock()

	watcher, err := r.presenceKV.WatchAll(ctx)
	if err != nil {
		r.logger.Warn("failed to start presence watcher, polling only", "error", err)
		return nil
	}

	r.watcher = watcher

	return watcher.Updates()
}

func (r *KVRoster) stopWatcher() {
	r.watcherMu.Lock()
	defer r.watcherMu.Unlock()

	if r.watcher != nil {
		if err := r.watcher.Stop(); err != nil {
			r.logger.Warn("failed to stop presence watcher", "error", err)
		}
		r.watcher = nil
	}
}

// checkMembers diffs the live presence set against the last observed
// view and notifies listeners of the changes.
func (r *KVRoster) checkMembers(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	members, err := r.LiveMembers(opCtx)
	cancel()
	if err != nil {
		r.logger.Warn("membership check failed", "error", err)
		return
	}

	live := make(map[types.MemberID]struct{}, len(members))
	for _, m := range members {
		live[m] = struct{}{}
	}

	r.mu.Lock()
	var joined, left []types.MemberID
	for m := range live {
		if _, ok := r.known[m]; !ok {
			joined = append(joined, m)
		}
	}
	for m := range r.known {
		if _, ok := live[m]; !ok {
			left = append(left, m)
		}
	}
	r.known = live
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	for _, m := range joined {
		r.logger.Info("member joined", "member", m)
		for _, l := range listeners {
			l.OnMemberJoined(m)
		}
	}
	for _, m := range left {
		r.logger.Info("member left", "member", m)
		for _, l := range listeners {
			l.OnMemberLeft(m)
		}
	}
}

// electionLoop attempts to acquire or renew the coordinator lease at a
// third of the lease TTL, so two renewals can fail before the lease
// expires.
func (r *KVRoster) electionLoop(ctx context.Context) {
	defer close(r.electDone)

	ticker := time.NewTicker(r.cfg.LeaseTTL / 3)
	defer ticker.Stop()

	// First attempt immediately so a lone replica takes the role
	// without waiting a full tick.
	r.electionTick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.electionTick(ctx)
		}
	}
}

func (r *KVRoster) electionTick(ctx context.Context) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	held, err := r.lease.Acquire(opCtx, r.replicaID)
	cancel()
	if err != nil {
		r.logger.Warn("coordinator lease attempt failed", "error", err)
		return
	}

	if r.coordinator.Swap(held) == held {
		return
	}

	if held {
		r.logger.Info("acquired coordinator role", "replica", r.replicaID)
	} else {
		r.logger.Info("lost coordinator role", "replica", r.replicaID)
	}

	r.mu.Lock()
	listeners := r.snapshotListenersLocked()
	r.mu.Unlock()

	for _, l := range listeners {
		l.OnRoleChanged(held)
	}
}

func (r *KVRoster) snapshotListenersLocked() []types.RosterListener {
	listeners := make([]types.RosterListener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}

	return listeners
}
