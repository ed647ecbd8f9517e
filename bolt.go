package timelock

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// BoltBackend keeps Books in a single bbolt file. Each Book is a bucket
// holding its snapshot and a nested bucket of events keyed by big-endian
// sequence. bbolt allows one writer at a time, which is what makes Append
// conditional
type BoltBackend struct {
	db *bolt.DB
}

var (
	boltBooksBucket  = []byte("books")
	boltEventsBucket = []byte("events")
	boltSnapshotKey  = []byte("snapshot")
	boltSnapSeqKey   = []byte("snapshot_seq")
)

var _ Backend = (*BoltBackend)(nil)

// OpenBoltBackend opens or creates the bbolt file at cfg.Path
func OpenBoltBackend(cfg BoltConfig) (*BoltBackend, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultBoltPath
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBooksBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Append(
	_ context.Context, id AggregateID, atSeq int64, evs []*Event,
) error {
	if len(evs) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		book, err := tx.Bucket(boltBooksBucket).
			CreateBucketIfNotExists([]byte(JoinKey(id)))
		if err != nil {
			return err
		}
		events, err := book.CreateBucketIfNotExists(boltEventsBucket)
		if err != nil {
			return err
		}

		current := boltNextSequence(events)
		if current != atSeq {
			newEvs, err := boltReadEvents(events, atSeq)
			if err != nil {
				return err
			}
			return &VersionConflictError{
				ExpectedSequence: atSeq,
				ActualSequence:   current,
				NewEvents:        newEvs,
			}
		}

		for i, ev := range evs {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if err := events.Put(boltSeqKey(atSeq+int64(i)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Events(
	_ context.Context, id AggregateID, fromSeq int64,
) ([]*Event, error) {
	res := []*Event{}
	err := b.db.View(func(tx *bolt.Tx) error {
		events := boltEvents(tx, id)
		if events == nil {
			return nil
		}
		var err error
		res, err = boltReadEvents(events, fromSeq)
		return err
	})
	return res, err
}

func (b *BoltBackend) Snapshot(
	_ context.Context, id AggregateID, target any,
) (*SnapshotResult, error) {
	res := &SnapshotResult{AdditionalEvents: []*Event{}}
	err := b.db.View(func(tx *bolt.Tx) error {
		book := tx.Bucket(boltBooksBucket).Bucket([]byte(JoinKey(id)))
		if book == nil {
			return nil
		}

		snapData := book.Get(boltSnapshotKey)
		if len(snapData) > 0 {
			if err := json.Unmarshal(snapData, target); err != nil {
				return err
			}
			seq, err := strconv.ParseInt(string(book.Get(boltSnapSeqKey)), 10, 64)
			if err != nil {
				return err
			}
			res.NextSequence = seq
		}

		events := book.Bucket(boltEventsBucket)
		if events == nil {
			return nil
		}

		eventsSize := 0
		c := events.Cursor()
		for k, v := c.Seek(boltSeqKey(res.NextSequence)); k != nil; k, v = c.Next() {
			eventsSize += len(v)
		}
		evs, err := boltReadEvents(events, res.NextSequence)
		if err != nil {
			return err
		}
		res.AdditionalEvents = evs
		res.ShouldSnapshot = eventsSize > len(snapData)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (b *BoltBackend) PutSnapshot(
	_ context.Context, id AggregateID, value any, seq int64,
) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		book, err := tx.Bucket(boltBooksBucket).
			CreateBucketIfNotExists([]byte(JoinKey(id)))
		if err != nil {
			return err
		}
		if stored := book.Get(boltSnapSeqKey); stored != nil {
			storedSeq, err := strconv.ParseInt(string(stored), 10, 64)
			if err == nil && seq <= storedSeq {
				return nil
			}
		}
		if err := book.Put(boltSnapshotKey, data); err != nil {
			return err
		}
		return book.Put(boltSnapSeqKey, []byte(strconv.FormatInt(seq, 10)))
	})
}

func (b *BoltBackend) List(
	_ context.Context, prefix AggregateID,
) ([]AggregateID, error) {
	res := []AggregateID{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBooksBucket).ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			if id := ParseKey(string(k)); id.HasPrefix(prefix) {
				res = append(res, id)
			}
			return nil
		})
	})
	return res, err
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func boltEvents(tx *bolt.Tx, id AggregateID) *bolt.Bucket {
	book := tx.Bucket(boltBooksBucket).Bucket([]byte(JoinKey(id)))
	if book == nil {
		return nil
	}
	return book.Bucket(boltEventsBucket)
}

func boltNextSequence(events *bolt.Bucket) int64 {
	k, _ := events.Cursor().Last()
	if k == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(k)) + 1
}

func boltReadEvents(events *bolt.Bucket, fromSeq int64) ([]*Event, error) {
	res := []*Event{}
	c := events.Cursor()
	for k, v := c.Seek(boltSeqKey(fromSeq)); k != nil; k, v = c.Next() {
		ev := &Event{}
		if err := json.Unmarshal(v, ev); err != nil {
			return nil, err
		}
		ev.Sequence = int64(binary.BigEndian.Uint64(k))
		res = append(res, ev)
	}
	return res, nil
}

func boltSeqKey(seq int64) []byte {
	if seq < 0 {
		seq = 0
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}
