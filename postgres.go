package timelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend keeps Books in two tables. The primary key on (book,
// sequence) rejects a second writer at the same sequence, which is reported
// as a VersionConflictError
type PostgresBackend struct {
	pool      *pgxpool.Pool
	events    string
	snapshots string
}

const pgUniqueViolation = "23505"

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend connects to Postgres and creates the tables if needed
func NewPostgresBackend(
	ctx context.Context, cfg PostgresConfig,
) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPostgresPrefix
	}
	p := &PostgresBackend{
		pool:      pool,
		events:    pgx.Identifier{prefix + "_events"}.Sanitize(),
		snapshots: pgx.Identifier{prefix + "_snapshots"}.Sanitize(),
	}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return p, nil
}

func (p *PostgresBackend) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			book     TEXT   NOT NULL,
			sequence BIGINT NOT NULL,
			data     TEXT   NOT NULL,
			PRIMARY KEY (book, sequence)
		)`, p.events),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			book     TEXT   PRIMARY KEY,
			sequence BIGINT NOT NULL,
			data     TEXT   NOT NULL
		)`, p.snapshots),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresBackend) Append(
	ctx context.Context, id AggregateID, atSeq int64, evs []*Event,
) error {
	if len(evs) == 0 {
		return nil
	}
	key := JoinKey(id)

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := p.nextSequence(ctx, tx, key)
	if err != nil {
		return err
	}
	if current != atSeq {
		return p.conflict(ctx, id, atSeq)
	}

	batch := &pgx.Batch{}
	for i, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		batch.Queue(
			fmt.Sprintf(`INSERT INTO %s (book, sequence, data) VALUES ($1, $2, $3)`, p.events),
			key, atSeq+int64(i), string(data),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return p.conflict(ctx, id, atSeq)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return p.conflict(ctx, id, atSeq)
		}
		return err
	}
	return nil
}

func (p *PostgresBackend) Events(
	ctx context.Context, id AggregateID, fromSeq int64,
) ([]*Event, error) {
	return p.readEvents(ctx, p.pool, JoinKey(id), fromSeq)
}

func (p *PostgresBackend) Snapshot(
	ctx context.Context, id AggregateID, target any,
) (*SnapshotResult, error) {
	key := JoinKey(id)

	var snapData string
	var snapSeq int64
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT data, sequence FROM %s WHERE book = $1`, p.snapshots),
		key,
	).Scan(&snapData, &snapSeq)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if snapData != "" {
		if err := json.Unmarshal([]byte(snapData), target); err != nil {
			return nil, err
		}
	}

	var eventsSize int64
	err = p.pool.QueryRow(ctx,
		fmt.Sprintf(
			`SELECT COALESCE(SUM(LENGTH(data)), 0) FROM %s
			 WHERE book = $1 AND sequence >= $2`, p.events,
		),
		key, snapSeq,
	).Scan(&eventsSize)
	if err != nil {
		return nil, err
	}

	evs, err := p.readEvents(ctx, p.pool, key, snapSeq)
	if err != nil {
		return nil, err
	}

	return &SnapshotResult{
		AdditionalEvents: evs,
		NextSequence:     snapSeq,
		ShouldSnapshot:   eventsSize > int64(len(snapData)),
	}, nil
}

func (p *PostgresBackend) PutSnapshot(
	ctx context.Context, id AggregateID, value any, seq int64,
) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		fmt.Sprintf(`
			INSERT INTO %[1]s (book, sequence, data) VALUES ($1, $2, $3)
			ON CONFLICT (book) DO UPDATE
			SET sequence = EXCLUDED.sequence, data = EXCLUDED.data
			WHERE %[1]s.sequence < EXCLUDED.sequence`, p.snapshots,
		),
		JoinKey(id), seq, string(data),
	)
	return err
}

func (p *PostgresBackend) List(
	ctx context.Context, prefix AggregateID,
) ([]AggregateID, error) {
	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(
			`SELECT DISTINCT book FROM %s WHERE starts_with(book, $1) ORDER BY book`,
			p.events,
		),
		JoinKey(prefix),
	)
	if err != nil {
		return nil, err
	}

	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	res := []AggregateID{}
	for _, k := range keys {
		if id := ParseKey(k); id.HasPrefix(prefix) {
			res = append(res, id)
		}
	}
	return res, nil
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *PostgresBackend) nextSequence(
	ctx context.Context, q pgQuerier, key string,
) (int64, error) {
	var next int64
	err := q.QueryRow(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(sequence) + 1, 0) FROM %s WHERE book = $1`, p.events),
		key,
	).Scan(&next)
	return next, err
}

func (p *PostgresBackend) readEvents(
	ctx context.Context, q pgQuerier, key string, fromSeq int64,
) ([]*Event, error) {
	rows, err := q.Query(ctx,
		fmt.Sprintf(
			`SELECT sequence, data FROM %s
			 WHERE book = $1 AND sequence >= $2 ORDER BY sequence`, p.events,
		),
		key, fromSeq,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []*Event{}
	for rows.Next() {
		var seq int64
		var data string
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, err
		}
		ev := &Event{}
		if err := json.Unmarshal([]byte(data), ev); err != nil {
			return nil, err
		}
		ev.Sequence = seq
		res = append(res, ev)
	}
	return res, rows.Err()
}

// conflict builds a VersionConflictError from what is committed now, outside
// the failed transaction
func (p *PostgresBackend) conflict(
	ctx context.Context, id AggregateID, atSeq int64,
) error {
	key := JoinKey(id)
	current, err := p.nextSequence(ctx, p.pool, key)
	if err != nil {
		return err
	}
	newEvs, err := p.readEvents(ctx, p.pool, key, atSeq)
	if err != nil {
		return err
	}
	return &VersionConflictError{
		ExpectedSequence: atSeq,
		ActualSequence:   current,
		NewEvents:        newEvs,
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
