package timelock_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/timelock"
)

func secs(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func at(n int) timelock.UnixTime {
	return timelock.AsUnixTime(epoch).Add(secs(n))
}

// lockStandard borrows for the payer and locks amt to payee with the
// window [now+60, now+180]
func lockStandard(
	t *testing.T, e *timelock.Engine, payer, payee timelock.Participant,
	amt timelock.Amount,
) *timelock.Fund {
	t.Helper()
	ctx := context.Background()
	_, err := e.Borrow(ctx, payer)
	require.NoError(t, err)
	f, err := e.LockFund(ctx, payer, payee, e.Now()+60, e.Now()+180, amt)
	require.NoError(t, err)
	return f
}

func assertBalanced(t *testing.T, e *timelock.Engine) {
	t.Helper()
	s, err := e.Supply(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Balanced(), "supply %+v", s)
}

func assertUnchanged(t *testing.T, e *timelock.Engine, before timelock.Supply) {
	t.Helper()
	after, err := e.Supply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBorrow(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	ctx := context.Background()

	bal, err := e.Borrow(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, timelock.DefaultBorrowAmount, bal)

	bal, err = e.Borrow(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2*timelock.DefaultBorrowAmount, bal)

	s, err := e.Supply(ctx)
	require.NoError(t, err)
	assert.Equal(t, timelock.Supply{Issued: 20, Held: 20}, s)
}

func TestBorrowPublishesEvent(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	consumer := e.Subscribe(timelock.EventBorrowed)
	defer func() { _ = consumer.Close() }()

	_, err := e.Borrow(context.Background(), alice)
	require.NoError(t, err)

	ev := receive(t, consumer)
	assert.True(t, ev.AggregateID.Equal(e.BookID()))

	var data timelock.BorrowedData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, alice, data.Participant)
	assert.Equal(t, timelock.DefaultBorrowAmount, data.Amount)
}

func TestScenarioPayeeClaims(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	f := lockStandard(t, e, alice, bob, 10)
	assert.Equal(t, timelock.FirstFundID, f.ID)

	bal, err := e.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, bal)

	clock.Advance(secs(30))
	_, err = e.Withdraw(ctx, bob, f.ID)
	assert.ErrorIs(t, err, timelock.ErrTooEarlyForPayeeClaim)

	clock.Advance(secs(60))
	settled, err := e.Withdraw(ctx, bob, f.ID)
	require.NoError(t, err)
	assert.True(t, settled.Claimed)
	assert.Equal(t, timelock.RolePayee, settled.SettledTo)

	bal, err = e.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, bal)

	bal, err = e.Balance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(10), bal)

	got, err := e.Fund(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.Claimed)
	assertBalanced(t, e)
}

func TestScenarioPayerReclaims(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	f := lockStandard(t, e, alice, bob, 10)

	clock.Advance(secs(200))
	settled, err := e.Withdraw(ctx, alice, f.ID)
	require.NoError(t, err)
	assert.Equal(t, timelock.RolePayer, settled.SettledTo)

	bal, err := e.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(10), bal)

	_, err = e.Withdraw(ctx, bob, f.ID)
	assert.ErrorIs(t, err, timelock.ErrAlreadyClaimed)
	assertBalanced(t, e)
}

func TestScenarioPayerTooEarly(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	f := lockStandard(t, e, alice, bob, 10)

	_, err := e.Withdraw(ctx, alice, f.ID)
	assert.ErrorIs(t, err, timelock.ErrTooEarlyForPayerReclaim)

	clock.Advance(secs(90))
	_, err = e.Withdraw(ctx, alice, f.ID)
	assert.ErrorIs(t, err, timelock.ErrTooEarlyForPayerReclaim)

	clock.Advance(secs(90))
	_, err = e.Withdraw(ctx, alice, f.ID)
	assert.ErrorIs(t, err, timelock.ErrTooEarlyForPayerReclaim)
}

func TestScenarioTwoFunds(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	_, err := e.Borrow(ctx, alice)
	require.NoError(t, err)

	first, err := e.LockFund(ctx, alice, bob, at(60), at(180), 5)
	require.NoError(t, err)
	second, err := e.LockFund(ctx, alice, bob, at(300), at(400), 5)
	require.NoError(t, err)
	assert.Less(t, first.ID, second.ID)

	related, err := e.GetMyRelatedFunds(ctx, bob)
	require.NoError(t, err)
	require.Len(t, related, 2)
	assert.Equal(t, first.ID, related[0].ID)
	assert.Equal(t, second.ID, related[1].ID)

	clock.Advance(secs(100))
	claimable, err := e.GetMyClaimableFunds(ctx, bob)
	require.NoError(t, err)
	require.Len(t, claimable, 1)
	assert.Equal(t, first.ID, claimable[0].ID)

	_, err = e.Withdraw(ctx, bob, first.ID)
	require.NoError(t, err)
	_, err = e.Withdraw(ctx, bob, second.ID)
	assert.ErrorIs(t, err, timelock.ErrTooEarlyForPayeeClaim)

	clock.Advance(secs(250))
	claimable, err = e.GetMyClaimableFunds(ctx, bob)
	require.NoError(t, err)
	require.Len(t, claimable, 1)
	assert.Equal(t, second.ID, claimable[0].ID)

	_, err = e.Withdraw(ctx, bob, second.ID)
	require.NoError(t, err)

	bal, err := e.Balance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(10), bal)
	assertBalanced(t, e)
}

func TestLockValidation(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	ctx := context.Background()

	_, err := e.Borrow(ctx, alice)
	require.NoError(t, err)
	before, err := e.Supply(ctx)
	require.NoError(t, err)

	tests := []struct {
		name   string
		payee  timelock.Participant
		unlock timelock.UnixTime
		expire timelock.UnixTime
		amount timelock.Amount
		err    error
	}{
		{"zero amount", bob, at(60), at(180), 0, timelock.ErrInvalidAmount},
		{"over balance", bob, at(60), at(180), 11, timelock.ErrInsufficientBalance},
		{"unlock now", bob, at(0), at(180), 5, timelock.ErrUnlockTimeNotFuture},
		{"unlock past", bob, at(-1), at(180), 5, timelock.ErrUnlockTimeNotFuture},
		{"expire at unlock", bob, at(60), at(60), 5, timelock.ErrExpireBeforeUnlock},
		{"expire before", bob, at(60), at(30), 5, timelock.ErrExpireBeforeUnlock},
		{"no payee", "", at(60), at(180), 5, timelock.ErrInvalidParticipant},
		{"zero before balance", bob, at(0), at(0), 0, timelock.ErrInvalidAmount},
		{"balance before time", bob, at(0), at(0), 11, timelock.ErrInsufficientBalance},
		{"unlock before expire check", bob, at(0), at(0), 5, timelock.ErrUnlockTimeNotFuture},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := e.LockFund(ctx, alice, tc.payee, tc.unlock, tc.expire, tc.amount)
			assert.ErrorIs(t, err, tc.err)
			assert.Nil(t, f)
			assertUnchanged(t, e, before)
		})
	}

	related, err := e.GetMyRelatedFunds(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestWithdrawNotFound(t *testing.T) {
	e, _, _ := setupTestEngine(t)

	_, err := e.Withdraw(context.Background(), alice, 42)
	assert.ErrorIs(t, err, timelock.ErrFundNotFound)

	_, err = e.Fund(context.Background(), 42)
	assert.ErrorIs(t, err, timelock.ErrFundNotFound)
}

func TestWithdrawUnauthorized(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()
	f := lockStandard(t, e, alice, bob, 10)

	for _, offset := range []int{0, 60, 120, 180, 181, 1000} {
		clock.Set(epoch.Add(secs(offset)))
		_, err := e.Withdraw(ctx, carol, f.ID)
		assert.ErrorIs(t, err, timelock.ErrUnauthorized)
	}

	_, err := e.Withdraw(ctx, alice, f.ID)
	require.NoError(t, err)
	_, err = e.Withdraw(ctx, carol, f.ID)
	assert.ErrorIs(t, err, timelock.ErrUnauthorized)
}

func TestWithdrawWindowBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		caller timelock.Participant
		offset int
		err    error
	}{
		{"payee before unlock", bob, 59, timelock.ErrTooEarlyForPayeeClaim},
		{"payee at unlock", bob, 60, nil},
		{"payee at expire", bob, 180, nil},
		{"payee after expire", bob, 181, timelock.ErrClaimWindowClosed},
		{"payer at unlock", alice, 60, timelock.ErrTooEarlyForPayerReclaim},
		{"payer at expire", alice, 180, timelock.ErrTooEarlyForPayerReclaim},
		{"payer after expire", alice, 181, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, clock, _ := setupTestEngine(t)
			f := lockStandard(t, e, alice, bob, 10)
			clock.Set(epoch.Add(secs(tc.offset)))

			_, err := e.Withdraw(context.Background(), tc.caller, f.ID)
			if tc.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.err)
			}
			assertBalanced(t, e)
		})
	}
}

// advancingBackend moves the clock forward and reports a conflict on the
// first Append after it is armed
type advancingBackend struct {
	timelock.Backend
	clock *timelock.ManualClock
	step  time.Duration
	armed atomic.Bool
}

func (b *advancingBackend) Append(
	ctx context.Context, id timelock.AggregateID, atSeq int64,
	evs []*timelock.Event,
) error {
	if b.armed.Swap(false) {
		b.clock.Advance(b.step)
		return &timelock.VersionConflictError{
			ExpectedSequence: atSeq,
			ActualSequence:   atSeq,
		}
	}
	return b.Backend.Append(ctx, id, atSeq, evs)
}

func newSharedEngine(
	t *testing.T, server *miniredis.Miniredis, clock timelock.Clock,
) *timelock.Engine {
	t.Helper()
	cfg := timelock.DefaultConfig()
	store := newTestStore(t, newRedisBackend(t, server, "shared"), cfg)
	return timelock.NewEngine(store, cfg, timelock.WithClock(clock))
}

func TestEnginesSeeEachOthersCommits(t *testing.T) {
	server := miniredis.RunT(t)
	clock := timelock.NewManualClock(epoch)
	first := newSharedEngine(t, server, clock)
	second := newSharedEngine(t, server, clock)
	ctx := context.Background()

	_, err := first.Borrow(ctx, bob)
	require.NoError(t, err)
	_, err = second.Borrow(ctx, alice)
	require.NoError(t, err)

	f, err := first.LockFund(ctx, alice, bob, at(60), at(180), 10)
	require.NoError(t, err)
	assert.Equal(t, timelock.FundID(1), f.ID)

	g, err := second.LockFund(ctx, bob, alice, at(30), at(120), 4)
	require.NoError(t, err)
	assert.Equal(t, timelock.FundID(2), g.ID)

	clock.Advance(secs(90))
	got, err := first.Withdraw(ctx, alice, g.ID)
	require.NoError(t, err)
	assert.Equal(t, timelock.RolePayee, got.SettledTo)

	_, err = second.Withdraw(ctx, alice, g.ID)
	assert.ErrorIs(t, err, timelock.ErrAlreadyClaimed)

	bal, err := second.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(4), bal)
	assertBalanced(t, first)
	assertBalanced(t, second)
}

func TestWithdrawRetryRechecksWindow(t *testing.T) {
	server := miniredis.RunT(t)
	clock := timelock.NewManualClock(epoch)
	backend := &advancingBackend{
		Backend: newRedisBackend(t, server, "advancing"),
		clock:   clock,
		step:    secs(1),
	}
	cfg := timelock.DefaultConfig()
	store := newTestStore(t, backend, cfg)
	e := timelock.NewEngine(store, cfg, timelock.WithClock(clock))
	ctx := context.Background()

	f := lockStandard(t, e, alice, bob, 10)
	clock.Advance(secs(180))
	backend.armed.Store(true)

	_, err := e.Withdraw(ctx, bob, f.ID)
	assert.ErrorIs(t, err, timelock.ErrClaimWindowClosed)

	got, err := e.Withdraw(ctx, alice, f.ID)
	require.NoError(t, err)
	assert.Equal(t, timelock.RolePayer, got.SettledTo)
	assertBalanced(t, e)
}

func TestPayeeAfterExpireIsUnauthorized(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	f := lockStandard(t, e, alice, bob, 10)
	clock.Advance(secs(181))

	_, err := e.Withdraw(context.Background(), bob, f.ID)
	assert.ErrorIs(t, err, timelock.ErrUnauthorized)
	assert.ErrorIs(t, err, timelock.ErrClaimWindowClosed)
}

func TestWithdrawTwice(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()
	f := lockStandard(t, e, alice, bob, 10)

	clock.Advance(secs(100))
	_, err := e.Withdraw(ctx, bob, f.ID)
	require.NoError(t, err)

	_, err = e.Withdraw(ctx, bob, f.ID)
	assert.ErrorIs(t, err, timelock.ErrAlreadyClaimed)

	clock.Advance(secs(1000))
	_, err = e.Withdraw(ctx, alice, f.ID)
	assert.ErrorIs(t, err, timelock.ErrAlreadyClaimed)

	bal, err := e.Balance(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(10), bal)
}

func TestSelfFund(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	first := lockStandard(t, e, alice, alice, 5)
	second, err := e.LockFund(ctx, alice, alice, at(60), at(180), 5)
	require.NoError(t, err)

	_, err = e.Withdraw(ctx, alice, first.ID)
	assert.ErrorIs(t, err, timelock.ErrTooEarlyForPayeeClaim)

	clock.Advance(secs(100))
	f, err := e.Withdraw(ctx, alice, first.ID)
	require.NoError(t, err)
	assert.Equal(t, timelock.RolePayee, f.SettledTo)

	clock.Advance(secs(100))
	f, err = e.Withdraw(ctx, alice, second.ID)
	require.NoError(t, err)
	assert.Equal(t, timelock.RolePayer, f.SettledTo)

	bal, err := e.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(10), bal)

	related, err := e.GetMyRelatedFunds(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, related, 2)
}

func TestClaimableAndReclaimable(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()
	f := lockStandard(t, e, alice, bob, 10)

	check := func(claimable, reclaimable int) {
		t.Helper()
		c, err := e.GetMyClaimableFunds(ctx, bob)
		require.NoError(t, err)
		assert.Len(t, c, claimable)
		r, err := e.GetMyReclaimableFunds(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, r, reclaimable)

		none, err := e.GetMyClaimableFunds(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, none)
		none, err = e.GetMyReclaimableFunds(ctx, bob)
		require.NoError(t, err)
		assert.Empty(t, none)
	}

	check(0, 0)
	clock.Set(epoch.Add(secs(60)))
	check(1, 0)
	clock.Set(epoch.Add(secs(180)))
	check(1, 0)
	clock.Set(epoch.Add(secs(181)))
	check(0, 1)

	_, err := e.Withdraw(ctx, alice, f.ID)
	require.NoError(t, err)
	check(0, 0)

	got, err := e.Fund(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, timelock.StateSettledToPayer, got.State(e.Now()))
}

func TestRelatedFundsIsolation(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	ctx := context.Background()

	lockStandard(t, e, alice, bob, 3)
	lockStandard(t, e, bob, carol, 3)

	for p, want := range map[timelock.Participant]int{
		alice: 1, bob: 2, carol: 1, "dave": 0,
	} {
		related, err := e.GetMyRelatedFunds(ctx, p)
		require.NoError(t, err)
		assert.Len(t, related, want, "participant %s", p)
	}

	related, err := e.GetMyRelatedFunds(ctx, bob)
	require.NoError(t, err)
	related[0].Amount = 1000

	again, err := e.GetMyRelatedFunds(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(3), again[0].Amount)
}

func TestInvalidParticipant(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	ctx := context.Background()

	_, err := e.Borrow(ctx, "")
	assert.ErrorIs(t, err, timelock.ErrInvalidParticipant)
	_, err = e.LockFund(ctx, "", bob, at(60), at(180), 1)
	assert.ErrorIs(t, err, timelock.ErrInvalidParticipant)
	_, err = e.GetMyRelatedFunds(ctx, "")
	assert.ErrorIs(t, err, timelock.ErrInvalidParticipant)
	_, err = e.Balance(ctx, "")
	assert.ErrorIs(t, err, timelock.ErrInvalidParticipant)
}

func TestRejectedCallsPublishNothing(t *testing.T) {
	e, _, _ := setupTestEngine(t)
	ctx := context.Background()
	f := lockStandard(t, e, alice, bob, 10)

	consumer := e.Subscribe()
	defer func() { _ = consumer.Close() }()

	_, err := e.LockFund(ctx, alice, bob, at(60), at(180), 1)
	assert.ErrorIs(t, err, timelock.ErrInsufficientBalance)
	_, err = e.Withdraw(ctx, bob, f.ID)
	assert.ErrorIs(t, err, timelock.ErrTooEarlyForPayeeClaim)
	assertNoEvent(t, consumer)

	_, err = e.Borrow(ctx, carol)
	require.NoError(t, err)
	assert.Equal(t, timelock.EventBorrowed, receive(t, consumer).Type)
}

func TestSubscribeSeesLifecycle(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()
	consumer := e.Subscribe()
	defer func() { _ = consumer.Close() }()

	f := lockStandard(t, e, alice, bob, 10)
	clock.Advance(secs(90))
	_, err := e.Withdraw(ctx, bob, f.ID)
	require.NoError(t, err)

	assert.Equal(t, timelock.EventBorrowed, receive(t, consumer).Type)
	assert.Equal(t, timelock.EventFundLocked, receive(t, consumer).Type)

	ev := receive(t, consumer)
	assert.Equal(t, timelock.EventFundSettled, ev.Type)
	var data timelock.FundSettledData
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, f.ID, data.ID)
	assert.Equal(t, bob, data.Claimant)
	assert.Equal(t, timelock.RolePayee, data.Role)
}

func TestBooksAreIndependent(t *testing.T) {
	_, _, store := setupTestEngine(t)
	ctx := context.Background()
	cfg := timelock.DefaultConfig()

	left := timelock.NewEngine(store, cfg, timelock.WithBook("left"))
	right := timelock.NewEngine(store, cfg, timelock.WithBook("right"))

	_, err := left.Borrow(ctx, alice)
	require.NoError(t, err)

	bal, err := right.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, bal)

	ids, err := store.ListBooks(ctx, timelock.NewAggregateID("escrow"))
	require.NoError(t, err)
	assert.Contains(t, ids, left.BookID())
	assert.NotContains(t, ids, right.BookID())
}

func TestConcurrentLocks(t *testing.T) {
	e, _, store := setupTestEngine(t)
	ctx := context.Background()
	cfg := timelock.DefaultConfig()
	other := timelock.NewEngine(store, cfg,
		timelock.WithClock(timelock.NewManualClock(epoch)),
	)

	for range 2 {
		_, err := e.Borrow(ctx, alice)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, short int
	for i := range 12 {
		engine := e
		if i%2 == 1 {
			engine = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.LockFund(ctx, alice, bob, at(60), at(180), 2)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			default:
				assert.ErrorIs(t, err, timelock.ErrInsufficientBalance)
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 2, short)

	bal, err := e.Balance(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, bal)

	related, err := e.GetMyRelatedFunds(ctx, alice)
	require.NoError(t, err)
	require.Len(t, related, 10)
	for i, f := range related {
		assert.Equal(t, timelock.FirstFundID+timelock.FundID(i), f.ID)
	}
	assertBalanced(t, e)
}

func TestConservationThroughHistory(t *testing.T) {
	e, clock, _ := setupTestEngine(t)
	ctx := context.Background()

	participants := []timelock.Participant{alice, bob, carol}
	var funds []*timelock.Fund
	for i, p := range participants {
		_, err := e.Borrow(ctx, p)
		require.NoError(t, err)
		payee := participants[(i+1)%len(participants)]
		f, err := e.LockFund(ctx, p, payee, e.Now()+10, e.Now()+20, 4)
		require.NoError(t, err)
		funds = append(funds, f)
		assertBalanced(t, e)
	}

	clock.Advance(secs(15))
	_, err := e.Withdraw(ctx, funds[0].Payee, funds[0].ID)
	require.NoError(t, err)
	assertBalanced(t, e)

	clock.Advance(secs(10))
	_, err = e.Withdraw(ctx, funds[1].Payer, funds[1].ID)
	require.NoError(t, err)
	assertBalanced(t, e)

	s, err := e.Supply(ctx)
	require.NoError(t, err)
	assert.Equal(t, timelock.Amount(30), s.Issued)
	assert.Equal(t, timelock.Amount(4), s.Outstanding)
	assert.Equal(t, timelock.Amount(26), s.Held)
}
