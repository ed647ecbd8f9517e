package timelock

import (
	"context"
	"errors"
	"time"
)

type (
	// Executor runs Commands against Books held in a Store. Commands on the
	// same Book are serialized within the process, and the conditional
	// append serializes them across processes
	Executor struct {
		store      *Store
		appliers   Appliers
		cache      *bookCache
		now        func() time.Time
		maxRetries int
	}

	// Command inspects the current Book and raises the events that change
	// it. Returning an error abandons every event it raised
	Command func(*Book, *Aggregator) error
)

var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// NewExecutor creates an Executor over the Store. Raised events are stamped
// using clock
func NewExecutor(store *Store, cfg Config, clock Clock) *Executor {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Executor{
		store:      store,
		appliers:   bookAppliers,
		cache:      newBookCache(cfg.CacheSize),
		now:        clock.Now,
		maxRetries: maxRetries,
	}
}

// GetStore returns the Store the Executor commits to
func (e *Executor) GetStore() *Store {
	return e.store
}

// AppliesEvent reports whether the Executor folds events of this type
func (e *Executor) AppliesEvent(ev *Event) bool {
	_, ok := e.appliers[ev.Type]
	return ok
}

// Exec runs the Command against the latest committed Book and commits what
// it raised, returning the resulting Book. When another writer commits first the Command is re-run against the
// refreshed Book, up to the configured retry limit
func (e *Executor) Exec(
	ctx context.Context, id AggregateID, cmd Command,
) (*Book, error) {
	entry := e.cache.get(JoinKey(id))
	entry.mu.Lock()
	defer entry.mu.Unlock()

	for range e.maxRetries {
		proj, err := e.refresh(ctx, id, entry)
		if err != nil {
			return nil, err
		}

		ag := newAggregator(id, e.appliers, proj.book, proj.nextSeq, e.now)
		if err := cmd(ag.Value(), ag); err != nil {
			return nil, err
		}

		count, err := ag.flush(func(atSeq int64, evs []*Event) error {
			return e.store.AppendEvents(ctx, id, atSeq, evs)
		})
		if err == nil {
			if count == 0 {
				return proj.book, nil
			}
			entry.proj = &projection{
				book:    ag.Value(),
				nextSeq: ag.NextSequence(),
			}
			return entry.proj.book, nil
		}

		if !e.absorbConflict(err, entry) {
			return nil, err
		}
	}

	return nil, ErrMaxRetriesExceeded
}

// Read returns the Book as of the latest committed event
func (e *Executor) Read(ctx context.Context, id AggregateID) (*Book, error) {
	entry := e.cache.get(JoinKey(id))
	entry.mu.Lock()
	defer entry.mu.Unlock()

	proj, err := e.refresh(ctx, id, entry)
	if err != nil {
		return nil, err
	}
	return proj.book, nil
}

// SaveSnapshot forces an immediate snapshot of the Book, bypassing the
// snapshot worker queue
func (e *Executor) SaveSnapshot(ctx context.Context, id AggregateID) error {
	entry := e.cache.get(JoinKey(id))
	entry.mu.Lock()
	defer entry.mu.Unlock()

	proj, err := e.refresh(ctx, id, entry)
	if err != nil {
		return err
	}
	return e.store.PutSnapshot(ctx, id, proj.book, proj.nextSeq)
}

// refresh loads the Book and folds in whatever other writers committed
// since it was cached
func (e *Executor) refresh(
	ctx context.Context, id AggregateID, entry *bookEntry,
) (*projection, error) {
	proj, err := e.load(ctx, id, entry)
	if err != nil {
		return nil, err
	}

	evs, err := e.store.GetEvents(ctx, id, proj.nextSeq)
	if err != nil {
		return nil, err
	}
	if len(evs) > 0 {
		entry.proj = e.applyEvents(proj, evs)
	}
	return entry.proj, nil
}

func (e *Executor) load(
	ctx context.Context, id AggregateID, entry *bookEntry,
) (*projection, error) {
	if entry.proj != nil {
		return entry.proj, nil
	}

	book := &Book{}
	res, err := e.store.GetSnapshot(ctx, id, book)
	if err != nil {
		return nil, err
	}

	proj := &projection{book: book.normalize(), nextSeq: res.NextSequence}
	if len(res.AdditionalEvents) > 0 {
		proj = e.applyEvents(proj, res.AdditionalEvents)
	}
	if res.ShouldSnapshot {
		e.store.enqueueSnapshot(id, proj.book, proj.nextSeq)
	}

	entry.proj = proj
	return proj, nil
}

// absorbConflict folds a competing writer's events into the cached Book so
// the retry sees them. A conflict that cannot be bridged drops the cached
// Book so the retry reloads it
func (e *Executor) absorbConflict(err error, entry *bookEntry) bool {
	var conflict *VersionConflictError
	if !errors.As(err, &conflict) {
		return false
	}

	evs := conflict.NewEvents
	if len(evs) == 0 || evs[0].Sequence != entry.proj.nextSeq {
		entry.proj = nil
		return true
	}
	entry.proj = e.applyEvents(entry.proj, evs)
	return true
}

func (e *Executor) applyEvents(proj *projection, evs []*Event) *projection {
	book := proj.book
	for _, ev := range evs {
		if apply, ok := e.appliers[ev.Type]; ok {
			book = apply(book, ev)
		}
	}
	return &projection{
		book:    book,
		nextSeq: evs[len(evs)-1].Sequence + 1,
	}
}
