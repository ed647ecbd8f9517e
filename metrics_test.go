package timelock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/timelock"
)

func TestEngineMetrics(t *testing.T) {
	server := miniredis.RunT(t)
	reg := prometheus.NewRegistry()
	metrics := timelock.NewMetrics(reg)
	cfg := timelock.DefaultConfig()

	store := timelock.NewStore(newRedisBackend(t, server, "metrics"), cfg,
		timelock.WithMetrics(metrics),
	)
	t.Cleanup(func() { _ = store.Close() })
	clock := timelock.NewManualClock(epoch)
	e := timelock.NewEngine(store, cfg,
		timelock.WithClock(clock),
		timelock.WithMetrics(metrics),
	)
	ctx := context.Background()

	_, err := e.Borrow(ctx, alice)
	require.NoError(t, err)
	f, err := e.LockFund(ctx, alice, bob, at(60), at(180), 5)
	require.NoError(t, err)
	_, err = e.LockFund(ctx, alice, bob, at(60), at(180), 50)
	require.Error(t, err)
	_, err = e.Withdraw(ctx, bob, f.ID)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations("borrow", timelock.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations("lock", timelock.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations("lock", timelock.OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations("withdraw", timelock.OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Appended(timelock.EventBorrowed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Appended(timelock.EventFundLocked)))
	assert.Zero(t, testutil.ToFloat64(metrics.Appended(timelock.EventFundSettled)))

	count, err := testutil.GatherAndCount(reg, "timelock_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestStoreCountsConflicts(t *testing.T) {
	server := miniredis.RunT(t)
	metrics := timelock.NewMetrics(nil)
	store := timelock.NewStore(newRedisBackend(t, server, "metrics"),
		timelock.DefaultConfig(), timelock.WithMetrics(metrics),
	)
	t.Cleanup(func() { _ = store.Close() })

	id := timelock.NewAggregateID("escrow", "conflicts")
	err := store.AppendEvents(context.Background(), id, 2,
		testEvents(id, 2, timelock.EventBorrowed),
	)
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Conflicts()))
	assert.Zero(t, testutil.ToFloat64(metrics.Appended(timelock.EventBorrowed)))
}

func TestIsRejection(t *testing.T) {
	assert.True(t, timelock.IsRejection(timelock.ErrAlreadyClaimed))
	assert.True(t, timelock.IsRejection(timelock.ErrClaimWindowClosed))
	assert.False(t, timelock.IsRejection(timelock.ErrMaxRetriesExceeded))
	assert.False(t, timelock.IsRejection(errors.New("network down")))
	assert.False(t, timelock.IsRejection(nil))
}
