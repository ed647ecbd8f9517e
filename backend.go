package timelock

import (
	"context"
	"errors"
	"fmt"
)

type (
	// Backend persists Book event logs and snapshots. Append must be atomic
	// and conditional on the stored sequence, which is what serializes
	// writers that share a Backend
	Backend interface {
		// Append stores events at atSeq, failing with a VersionConflictError
		// if the Book's log does not currently end there
		Append(ctx context.Context, id AggregateID, atSeq int64, evs []*Event) error

		// Events returns the Book's events starting at fromSeq
		Events(ctx context.Context, id AggregateID, fromSeq int64) ([]*Event, error)

		// Snapshot decodes the latest snapshot into target, if there is one,
		// and returns the events committed after it
		Snapshot(ctx context.Context, id AggregateID, target any) (*SnapshotResult, error)

		// PutSnapshot saves a snapshot unless a later one is already stored
		PutSnapshot(ctx context.Context, id AggregateID, value any, seq int64) error

		// List returns the Books whose identifiers start with prefix
		List(ctx context.Context, prefix AggregateID) ([]AggregateID, error)

		Close() error
	}

	// VersionConflictError reports that another writer appended to a Book
	// first. NewEvents holds what it appended, when the Backend can tell
	VersionConflictError struct {
		NewEvents        []*Event
		ExpectedSequence int64
		ActualSequence   int64
	}

	// SnapshotResult describes the events a loader must replay on top of a
	// decoded snapshot
	SnapshotResult struct {
		AdditionalEvents []*Event
		NextSequence     int64
		ShouldSnapshot   bool
	}
)

var ErrUnexpectedLuaResult = errors.New("unexpected result from Lua script")

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf(
		"version conflict: expected sequence %d, but at %d (%d new events)",
		e.ExpectedSequence, e.ActualSequence, len(e.NewEvents),
	)
}
