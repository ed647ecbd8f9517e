package timelock

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	// Aggregator tracks a working copy of a Book and the events raised
	// against it during one Command. It is not safe for concurrent use
	Aggregator struct {
		value    *Book
		appliers Appliers
		now      func() time.Time
		id       AggregateID
		enqueued []*Event
		nextSeq  int64
	}

	// Flusher persists enqueued events at the expected sequence
	Flusher func(int64, []*Event) error
)

func newAggregator(
	id AggregateID, appliers Appliers, init *Book, initSeq int64,
	now func() time.Time,
) *Aggregator {
	return &Aggregator{
		id:       id,
		value:    init,
		appliers: appliers,
		now:      now,
		nextSeq:  initSeq,
		enqueued: []*Event{},
	}
}

// ID returns the identifier of the Book being changed
func (a *Aggregator) ID() AggregateID {
	return a.id
}

// Value returns the Book with every raised event applied
func (a *Aggregator) Value() *Book {
	return a.value
}

// NextSequence returns the sequence the next raised event will receive
func (a *Aggregator) NextSequence() int64 {
	return a.nextSeq
}

// Enqueued returns the events raised during the current Command
func (a *Aggregator) Enqueued() []*Event {
	return a.enqueued
}

// Apply folds an event into the working Book without enqueueing it
func (a *Aggregator) Apply(ev *Event) {
	if apply, ok := a.appliers[ev.Type]; ok {
		a.value = apply(a.value, ev)
	}
}

func (a *Aggregator) raise(typ EventType, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return err
	}

	ev := &Event{
		ID:          id,
		Timestamp:   a.now(),
		Sequence:    a.nextSeq,
		AggregateID: a.id,
		Type:        typ,
		Data:        data,
	}
	a.enqueued = append(a.enqueued, ev)
	a.nextSeq++
	a.Apply(ev)
	return nil
}

func (a *Aggregator) flush(f Flusher) (int, error) {
	count := len(a.enqueued)
	if count == 0 {
		return 0, nil
	}
	if err := f(a.nextSeq-int64(count), a.enqueued); err != nil {
		return count, err
	}
	a.enqueued = []*Event{}
	return count, nil
}

// Raise marshals the value and enqueues a new event on the Aggregator
func Raise[V any](ag *Aggregator, typ EventType, value V) error {
	return ag.raise(typ, value)
}
