package timelock

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Engine is the escrow's public surface. Each method acts on behalf of a
// caller whose identity the host has already authenticated. Mutations are
// all-or-nothing: a rejected call leaves the Book exactly as it was
type Engine struct {
	exec         *Executor
	store        *Store
	clock        Clock
	logger       *zap.Logger
	metrics      *Metrics
	book         AggregateID
	borrowAmount Amount
}

// NewEngine creates an Engine over one Book of the Store
func NewEngine(store *Store, cfg Config, opts ...Option) *Engine {
	s := applyOptions(opts)
	borrowAmount := cfg.BorrowAmount
	if borrowAmount == 0 {
		borrowAmount = DefaultBorrowAmount
	}
	return &Engine{
		exec:         NewExecutor(store, cfg, s.clock),
		store:        store,
		clock:        s.clock,
		logger:       s.logger.With(zap.String("book", string(s.book))),
		metrics:      s.metrics,
		book:         NewAggregateID("escrow", s.book),
		borrowAmount: borrowAmount,
	}
}

// BookID returns the identifier of the Book the Engine operates on
func (e *Engine) BookID() AggregateID {
	return e.book
}

// Now returns the Engine's current time in Unix seconds
func (e *Engine) Now() UnixTime {
	return AsUnixTime(e.clock.Now())
}

// Borrow credits the caller with the faucet amount and returns the caller's
// new balance. Each call issues fresh value
func (e *Engine) Borrow(ctx context.Context, caller Participant) (Amount, error) {
	if caller == "" {
		e.metrics.observeOperation("borrow", ErrInvalidParticipant)
		return 0, ErrInvalidParticipant
	}

	book, err := e.exec.Exec(ctx, e.book, func(_ *Book, ag *Aggregator) error {
		return Raise(ag, EventBorrowed, BorrowedData{
			Participant: caller,
			Amount:      e.borrowAmount,
		})
	})
	e.metrics.observeOperation("borrow", err)
	if err != nil {
		e.rejected("borrow", caller, err)
		return 0, err
	}

	bal := book.Ledger.Balance(caller)
	e.logger.Debug("borrowed",
		zap.String("caller", string(caller)),
		zap.Uint64("amount", uint64(e.borrowAmount)),
		zap.Uint64("balance", uint64(bal)),
	)
	return bal, nil
}

// LockFund debits amount from the caller and reserves it in a new Fund that
// payee may claim from unlock through expire
func (e *Engine) LockFund(
	ctx context.Context, caller, payee Participant,
	unlock, expire UnixTime, amount Amount,
) (*Fund, error) {
	var id FundID
	book, err := e.exec.Exec(ctx, e.book, func(b *Book, ag *Aggregator) error {
		data, err := checkLock(
			b, caller, payee, unlock, expire, amount, e.Now(),
		)
		if err != nil {
			return err
		}
		id = data.ID
		return Raise(ag, EventFundLocked, data)
	})
	e.metrics.observeOperation("lock", err)
	if err != nil {
		e.rejected("lock", caller, err)
		return nil, err
	}

	f, err := book.Registry.Get(id)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("fund locked",
		zap.Uint64("fund_id", uint64(f.ID)),
		zap.String("payer", string(f.Payer)),
		zap.String("payee", string(f.Payee)),
		zap.Uint64("amount", uint64(f.Amount)),
		zap.Int64("unlock_time", int64(f.UnlockTime)),
		zap.Int64("expire_time", int64(f.ExpireTime)),
	)
	return f, nil
}

// Withdraw settles the Fund in favor of the caller. The payee may claim
// inside [unlock, expire]; the payer may reclaim only after expire
func (e *Engine) Withdraw(
	ctx context.Context, caller Participant, id FundID,
) (*Fund, error) {
	book, err := e.exec.Exec(ctx, e.book, func(b *Book, ag *Aggregator) error {
		f, err := b.Registry.Get(id)
		if err != nil {
			return err
		}
		role, err := f.SettlementRole(caller, e.Now())
		if err != nil {
			return err
		}
		return Raise(ag, EventFundSettled, FundSettledData{
			ID:       id,
			Claimant: caller,
			Role:     role,
		})
	})
	e.metrics.observeOperation("withdraw", err)
	if err != nil {
		e.rejected("withdraw", caller, err, zap.Uint64("fund_id", uint64(id)))
		return nil, err
	}

	f, err := book.Registry.Get(id)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("fund settled",
		zap.Uint64("fund_id", uint64(f.ID)),
		zap.String("claimant", string(caller)),
		zap.String("role", string(f.SettledTo)),
		zap.Uint64("amount", uint64(f.Amount)),
	)
	return f, nil
}

// GetMyRelatedFunds returns every Fund the caller pays or receives, in
// creation order
func (e *Engine) GetMyRelatedFunds(
	ctx context.Context, caller Participant,
) ([]*Fund, error) {
	book, err := e.read(ctx, caller)
	if err != nil {
		return nil, err
	}
	return book.Registry.ListByParticipant(caller), nil
}

// GetMyClaimableFunds returns the Funds the caller could withdraw as payee
// right now
func (e *Engine) GetMyClaimableFunds(
	ctx context.Context, caller Participant,
) ([]*Fund, error) {
	return e.filterRelated(ctx, caller, (*Fund).ClaimableBy)
}

// GetMyReclaimableFunds returns the expired Funds the caller could withdraw
// as payer right now
func (e *Engine) GetMyReclaimableFunds(
	ctx context.Context, caller Participant,
) ([]*Fund, error) {
	return e.filterRelated(ctx, caller, (*Fund).ReclaimableBy)
}

// Fund returns the Fund with the given identifier
func (e *Engine) Fund(ctx context.Context, id FundID) (*Fund, error) {
	book, err := e.exec.Read(ctx, e.book)
	if err != nil {
		return nil, err
	}
	return book.Registry.Get(id)
}

// Balance returns the caller's spendable balance
func (e *Engine) Balance(ctx context.Context, caller Participant) (Amount, error) {
	book, err := e.read(ctx, caller)
	if err != nil {
		return 0, err
	}
	return book.Ledger.Balance(caller), nil
}

// Supply reports how the Book's issued value is split between spendable
// balances and unsettled Funds
func (e *Engine) Supply(ctx context.Context) (Supply, error) {
	book, err := e.exec.Read(ctx, e.book)
	if err != nil {
		return Supply{}, err
	}
	return book.Supply(), nil
}

// Subscribe returns a Consumer of this Book's committed events. With no
// event types it receives all of them
func (e *Engine) Subscribe(eventTypes ...EventType) *Consumer {
	return e.store.Hub().NewAggregateConsumer(e.book, eventTypes...)
}

func (e *Engine) read(ctx context.Context, caller Participant) (*Book, error) {
	if caller == "" {
		return nil, ErrInvalidParticipant
	}
	return e.exec.Read(ctx, e.book)
}

func (e *Engine) filterRelated(
	ctx context.Context, caller Participant,
	keep func(*Fund, Participant, UnixTime) bool,
) ([]*Fund, error) {
	related, err := e.GetMyRelatedFunds(ctx, caller)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	res := []*Fund{}
	for _, f := range related {
		if keep(f, caller, now) {
			res = append(res, f)
		}
	}
	return res, nil
}

func (e *Engine) rejected(
	op string, caller Participant, err error, fields ...zap.Field,
) {
	fields = append(fields,
		zap.String("op", op),
		zap.String("caller", string(caller)),
		zap.Error(err),
	)
	e.logger.Debug("rejected", fields...)
}

// checkLock validates a lock in the order callers observe: amount, balance,
// unlock time, then expire time
func checkLock(
	b *Book, payer, payee Participant, unlock, expire UnixTime,
	amount Amount, now UnixTime,
) (FundLockedData, error) {
	if payer == "" || payee == "" {
		return FundLockedData{}, ErrInvalidParticipant
	}
	if amount == 0 {
		return FundLockedData{}, ErrInvalidAmount
	}
	if bal := b.Ledger.Balance(payer); amount > bal {
		return FundLockedData{}, fmt.Errorf("%w: %s holds %d, needs %d",
			ErrInsufficientBalance, payer, bal, amount,
		)
	}
	if unlock <= now {
		return FundLockedData{}, fmt.Errorf("%w: %s is not after %s",
			ErrUnlockTimeNotFuture, unlock, now,
		)
	}
	if expire <= unlock {
		return FundLockedData{}, fmt.Errorf("%w: %s is not after %s",
			ErrExpireBeforeUnlock, expire, unlock,
		)
	}
	return FundLockedData{
		ID:         b.Registry.NextID,
		Payer:      payer,
		Payee:      payee,
		UnlockTime: unlock,
		ExpireTime: expire,
		Amount:     amount,
	}, nil
}
