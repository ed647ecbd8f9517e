package timelock

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Store couples a Backend with the EventHub its commits are published to
// and the worker pool that saves snapshots in the background
type Store struct {
	backend   Backend
	hub       *EventHub
	snapshots *SnapshotWorker
	metrics   *Metrics
	logger    *zap.Logger
}

// NewStore wraps the Backend. The Store owns it from here on and closes it
// in Close
func NewStore(backend Backend, cfg Config, opts ...Option) *Store {
	s := applyOptions(opts)
	st := &Store{
		backend: backend,
		hub:     newEventHub(),
		metrics: s.metrics,
		logger:  s.logger,
	}
	if cfg.EnableSnapshotWorker {
		st.snapshots = NewSnapshotWorker(backend, cfg.Snapshot, s.logger)
	}
	return st
}

// Hub returns the EventHub committed events are published to
func (s *Store) Hub() *EventHub {
	return s.hub
}

// Backend returns the underlying Backend
func (s *Store) Backend() Backend {
	return s.backend
}

// AppendEvents commits events to the Backend and, only once that succeeds,
// publishes them to the EventHub
func (s *Store) AppendEvents(
	ctx context.Context, id AggregateID, atSeq int64, evs []*Event,
) error {
	if len(evs) == 0 {
		return nil
	}
	if err := s.backend.Append(ctx, id, atSeq, evs); err != nil {
		var conflict *VersionConflictError
		if errors.As(err, &conflict) {
			s.metrics.observeConflict()
		} else {
			s.logger.Error("append failed",
				zap.String("book", JoinKey(id)),
				zap.Int64("sequence", atSeq),
				zap.Error(err),
			)
		}
		return err
	}
	s.metrics.observeAppend(evs)
	s.hub.publish(evs)
	return nil
}

// GetEvents returns the Book's events starting at fromSeq
func (s *Store) GetEvents(
	ctx context.Context, id AggregateID, fromSeq int64,
) ([]*Event, error) {
	return s.backend.Events(ctx, id, fromSeq)
}

// GetSnapshot decodes the Book's snapshot into target and returns the events
// committed after it
func (s *Store) GetSnapshot(
	ctx context.Context, id AggregateID, target any,
) (*SnapshotResult, error) {
	return s.backend.Snapshot(ctx, id, target)
}

// PutSnapshot saves a snapshot of the Book taken at sequence
func (s *Store) PutSnapshot(
	ctx context.Context, id AggregateID, value any, sequence int64,
) error {
	return s.backend.PutSnapshot(ctx, id, value, sequence)
}

// ListBooks returns the identifiers of Books starting with prefix
func (s *Store) ListBooks(
	ctx context.Context, prefix AggregateID,
) ([]AggregateID, error) {
	return s.backend.List(ctx, prefix)
}

// Close stops the snapshot worker, closes every Consumer, and closes the
// Backend
func (s *Store) Close() error {
	if s.snapshots != nil {
		s.snapshots.Stop()
	}
	s.hub.close()
	return s.backend.Close()
}

func (s *Store) enqueueSnapshot(id AggregateID, value *Book, seq int64) {
	if s.snapshots != nil {
		s.snapshots.enqueue(id, value, seq)
	}
}
