package timelock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kode4food/timelock"
)

const (
	alice timelock.Participant = "alice"
	bob   timelock.Participant = "bob"
	carol timelock.Participant = "carol"
)

var epoch = time.Unix(1_700_000_000, 0).UTC()

func newRedisBackend(
	t *testing.T, server *miniredis.Miniredis, prefix string,
) *timelock.RedisBackend {
	t.Helper()
	cfg := timelock.DefaultRedisConfig()
	cfg.Addr = server.Addr()
	cfg.Prefix = prefix
	backend, err := timelock.NewRedisBackend(context.Background(), cfg)
	require.NoError(t, err)
	return backend
}

func newTestStore(
	t *testing.T, backend timelock.Backend, cfg timelock.Config,
) *timelock.Store {
	t.Helper()
	store := timelock.NewStore(backend, cfg,
		timelock.WithLogger(zaptest.NewLogger(t)),
	)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func setupTestEngine(
	t *testing.T,
) (*timelock.Engine, *timelock.ManualClock, *timelock.Store) {
	t.Helper()
	server := miniredis.RunT(t)
	cfg := timelock.DefaultConfig()
	store := newTestStore(t, newRedisBackend(t, server, "engine"), cfg)
	clock := timelock.NewManualClock(epoch)
	engine := timelock.NewEngine(store, cfg,
		timelock.WithClock(clock),
		timelock.WithLogger(zaptest.NewLogger(t)),
	)
	return engine, clock, store
}

func receive(t *testing.T, c *timelock.Consumer) *timelock.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Receive():
		if !ok {
			t.Fatal("consumer closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *timelock.Consumer) {
	t.Helper()
	select {
	case ev := <-c.Receive():
		assert.Failf(t, "unexpected event", "%s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
