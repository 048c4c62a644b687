// Package postgres implements store.RunStore using pgx/v5 with raw SQL
// against a single append-only table, mirroring the teacher's
// SKIP-LOCKED-free audit-log style persistence (no dequeue semantics
// are needed here — this store is write-then-list, never claimed).
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/janhicken/schedoscope/id"
	"github.com/janhicken/schedoscope/store"
)

var _ store.RunStore = (*Store)(nil)

// Store is a PostgreSQL-backed RunStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New connects to connString and ensures the run-history table exists.
func New(ctx context.Context, connString string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("schedoscope/postgres: connect: %w", err)
	}
	s := NewFromPool(pool, opts...)
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewFromPool wraps an existing pgxpool.Pool. The caller must still
// call a migrate step (or Migrate) before using the store.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS run_records (
			run_id      TEXT PRIMARY KEY,
			view_name   TEXT NOT NULL DEFAULT '',
			type_name   TEXT NOT NULL,
			worker_id   TEXT NOT NULL,
			success     BOOLEAN NOT NULL,
			checksum    TEXT NOT NULL DEFAULT '',
			reason      TEXT NOT NULL DEFAULT '',
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("schedoscope/postgres: create run_records: %w", err)
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS run_records_finished_at_idx ON run_records (finished_at)`)
	if err != nil {
		return fmt.Errorf("schedoscope/postgres: create index: %w", err)
	}
	return nil
}

// Append inserts r.
func (s *Store) Append(ctx context.Context, r store.RunRecord) error {
	if r.RunID.IsNil() {
		r.RunID = id.NewRunID()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_records (run_id, view_name, type_name, worker_id, success, checksum, reason, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.RunID.String(), r.ViewName, r.TypeName, r.WorkerID, r.Success, r.Checksum, r.Reason, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("schedoscope/postgres: append run record: %w", err)
	}
	return nil
}

// List returns records matching opts, most recent first.
func (s *Store) List(ctx context.Context, opts store.ListOpts) ([]store.RunRecord, error) {
	query := `SELECT run_id, view_name, type_name, worker_id, success, checksum, reason, started_at, finished_at FROM run_records WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.TypeName != "" {
		query += fmt.Sprintf(" AND type_name = $%d", argIdx)
		args = append(args, opts.TypeName)
		argIdx++
	}
	if !opts.Before.IsZero() {
		query += fmt.Sprintf(" AND finished_at < $%d", argIdx)
		args = append(args, opts.Before)
		argIdx++
	}
	query += " ORDER BY finished_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("schedoscope/postgres: list run records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// DeleteOlderThan removes every record finished before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM run_records WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("schedoscope/postgres: delete older than: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func collectRecords(rows pgx.Rows) ([]store.RunRecord, error) {
	var out []store.RunRecord
	for rows.Next() {
		var (
			r      store.RunRecord
			runIDS string
		)
		if err := rows.Scan(&runIDS, &r.ViewName, &r.TypeName, &r.WorkerID, &r.Success, &r.Checksum, &r.Reason, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("schedoscope/postgres: scan run record: %w", err)
		}
		if parsed, err := id.ParseRunID(runIDS); err == nil {
			r.RunID = parsed
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedoscope/postgres: iterate run records: %w", err)
	}
	return out, nil
}
