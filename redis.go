package timelock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps each Book's event log in a Redis list and makes the
// conditional append atomic with a Lua script
type RedisBackend struct {
	client         *redis.Client
	prefix         string
	appendEvents   *redis.Script
	putSnapshotLua *redis.Script
	getSnapshotLua *redis.Script
}

const (
	RedisConnectTimeout = 5 * time.Second

	eventsSuffix      = ":events"
	snapshotValSuffix = ":snapshot:val"
	snapshotSeqSuffix = ":snapshot:seq"

	redisScanCount = 256
)

var _ Backend = (*RedisBackend)(nil)

// NewRedisBackend connects to Redis and verifies the connection
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, RedisConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return &RedisBackend{
		client:         client,
		prefix:         prefix,
		appendEvents:   redis.NewScript(luaAppendEvents),
		putSnapshotLua: redis.NewScript(luaPutSnapshot),
		getSnapshotLua: redis.NewScript(luaGetSnapshot),
	}, nil
}

func (r *RedisBackend) Append(
	ctx context.Context, id AggregateID, atSeq int64, evs []*Event,
) error {
	if len(evs) == 0 {
		return nil
	}

	args := make([]any, 0, len(evs)+1)
	args = append(args, atSeq)
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		args = append(args, string(data))
	}

	keys := []string{r.buildKey(id, eventsSuffix)}
	result, err := r.appendEvents.Run(ctx, r.client, keys, args...).Result()
	if err != nil {
		return err
	}

	res, ok := result.([]any)
	if !ok || len(res) < 2 {
		return ErrUnexpectedLuaResult
	}
	success, ok1 := res[0].(int64)
	seq, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return ErrUnexpectedLuaResult
	}
	if success == 1 {
		return nil
	}

	var raw []any
	if len(res) > 2 {
		raw, _ = res[2].([]any)
	}
	newEvs, err := decodeEvents(atSeq, raw)
	if err != nil {
		return err
	}
	return &VersionConflictError{
		ExpectedSequence: atSeq,
		ActualSequence:   seq,
		NewEvents:        newEvs,
	}
}

func (r *RedisBackend) Events(
	ctx context.Context, id AggregateID, fromSeq int64,
) ([]*Event, error) {
	key := r.buildKey(id, eventsSuffix)
	items, err := r.client.LRange(ctx, key, fromSeq, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeEvents(fromSeq, stringsToAny(items))
}

func (r *RedisBackend) Snapshot(
	ctx context.Context, id AggregateID, target any,
) (*SnapshotResult, error) {
	keys := []string{
		r.buildKey(id, snapshotValSuffix),
		r.buildKey(id, snapshotSeqSuffix),
		r.buildKey(id, eventsSuffix),
	}

	result, err := r.getSnapshotLua.Run(ctx, r.client, keys).Result()
	if err != nil {
		return nil, err
	}

	res, ok := result.([]any)
	if !ok || len(res) < 3 {
		return nil, ErrUnexpectedLuaResult
	}
	snapData, ok1 := res[0].(string)
	snapSeq, ok2 := res[1].(int64)
	raw, ok3 := res[2].([]any)
	if !ok1 || !ok2 || !ok3 {
		return nil, ErrUnexpectedLuaResult
	}

	if snapData != "" {
		if err := json.Unmarshal([]byte(snapData), target); err != nil {
			return nil, err
		}
	}

	events, err := decodeEvents(snapSeq, raw)
	if err != nil {
		return nil, err
	}

	eventsSize := 0
	for _, item := range raw {
		s, _ := item.(string)
		eventsSize += len(s)
	}

	return &SnapshotResult{
		AdditionalEvents: events,
		NextSequence:     snapSeq,
		ShouldSnapshot:   eventsSize > len(snapData),
	}, nil
}

func (r *RedisBackend) PutSnapshot(
	ctx context.Context, id AggregateID, value any, seq int64,
) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	keys := []string{
		r.buildKey(id, snapshotValSuffix),
		r.buildKey(id, snapshotSeqSuffix),
	}
	return r.putSnapshotLua.Run(ctx, r.client, keys, string(data), seq).Err()
}

func (r *RedisBackend) List(
	ctx context.Context, prefix AggregateID,
) ([]AggregateID, error) {
	match := fmt.Sprintf("%s:%s*%s", r.prefix, JoinKey(prefix), eventsSuffix)
	iter := r.client.Scan(ctx, 0, match, redisScanCount).Iterator()

	res := []AggregateID{}
	for iter.Next(ctx) {
		trimmed := strings.TrimPrefix(iter.Val(), r.prefix+":")
		id := ParseKey(strings.TrimSuffix(trimmed, eventsSuffix))
		if id.HasPrefix(prefix) {
			res = append(res, id)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

func (r *RedisBackend) buildKey(id AggregateID, suffix string) string {
	return fmt.Sprintf("%s:%s%s", r.prefix, JoinKey(id), suffix)
}

// decodeEvents unmarshals stored events and renumbers them from startSeq,
// their position in the log being authoritative
func decodeEvents(startSeq int64, data []any) ([]*Event, error) {
	events := make([]*Event, 0, len(data))
	for i, item := range data {
		var raw []byte
		switch v := item.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return nil, ErrUnexpectedLuaResult
		}
		ev := &Event{}
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, err
		}
		ev.Sequence = startSeq + int64(i)
		events = append(events, ev)
	}
	return events, nil
}

func stringsToAny(items []string) []any {
	res := make([]any, len(items))
	for i, s := range items {
		res[i] = s
	}
	return res
}
