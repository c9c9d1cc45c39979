package roster

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	slotpooltest "github.com/arloliu/slotpool/testing"
)

func TestPresence_PublishesAndCleansUpKey(t *testing.T) {
	_, nc := slotpooltest.StartEmbeddedNATS(t)
	kv := slotpooltest.CreateJetStreamKV(t, nc, "presence-cycle")

	p := NewPresence(kv, 42, 50*time.Millisecond, slotpooltest.NewTestLogger(t))
	require.NoError(t, p.Start(t.Context()))

	// First heartbeat lands before Start returns.
	entry, err := kv.Get(t.Context(), "42")
	require.NoError(t, err)
	require.NotEmpty(t, entry.Value())

	// Ticks keep refreshing the key.
	first := entry.Revision()
	require.Eventually(t, func() bool {
		e, err := kv.Get(t.Context(), "42")
		return err == nil && e.Revision() > first
	}, 3*time.Second, 10*time.Millisecond)

	// Clean stop deletes the key instead of leaving it to the TTL.
	require.NoError(t, p.Stop())
	_, err = kv.Get(t.Context(), "42")
	require.ErrorIs(t, err, jetstream.ErrKeyNotFound)
}

func TestPresence_LifecycleErrors(t *testing.T) {
	_, nc := slotpooltest.StartEmbeddedNATS(t)
	kv := slotpooltest.CreateJetStreamKV(t, nc, "presence-lifecycle")

	p := NewPresence(kv, 7, time.Second, nil)
	require.ErrorIs(t, p.Stop(), ErrPresenceNotStarted)
	require.NoError(t, p.Start(t.Context()))
	require.ErrorIs(t, p.Start(t.Context()), ErrPresenceAlreadyStarted)
	require.NoError(t, p.Stop())
}

func TestParsePresenceKey(t *testing.T) {
	id, ok := parsePresenceKey("42")
	require.True(t, ok)
	require.Equal(t, int64(42), int64(id))

	for _, key := range []string{"", "abc", "-5", "0", "1.2"} {
		_, ok := parsePresenceKey(key)
		require.False(t, ok, "key %q should not parse", key)
	}
}
