// Package redis implements store.RunStore on top of a capped Redis
// List per transformation type, using github.com/vmihailenco/msgpack/v5
// for compact record encoding — the same wire format statusbus uses for
// WorkerStatus, so both domain-stack additions share one encoding
// convention.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/janhicken/schedoscope/id"
	"github.com/janhicken/schedoscope/store"
)

var _ store.RunStore = (*Store)(nil)

const keyPrefix = "schedoscope:runs:"

// MaxPerType caps how many records are retained per transformation
// type; the oldest entries are trimmed on every Append.
const MaxPerType = 10_000

// wireRecord is the msgpack-encoded shape stored in Redis; it mirrors
// store.RunRecord but keeps the ID as a plain string for portability.
type wireRecord struct {
	RunID      string    `msgpack:"run_id"`
	ViewName   string    `msgpack:"view_name"`
	TypeName   string    `msgpack:"type_name"`
	WorkerID   string    `msgpack:"worker_id"`
	Success    bool      `msgpack:"success"`
	Checksum   string    `msgpack:"checksum"`
	Reason     string    `msgpack:"reason"`
	StartedAt  time.Time `msgpack:"started_at"`
	FinishedAt time.Time `msgpack:"finished_at"`
}

// Store is a Redis-backed RunStore.
type Store struct {
	client    redis.Cmdable
	logger    *slog.Logger
	typeNames []string
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithTypeNames declares every transformation type whose list
// DeleteOlderThan must scan — Redis has no secondary index over list
// contents, so the sweep has to know the keys up front.
func WithTypeNames(typeNames ...string) Option {
	return func(s *Store) { s.typeNames = typeNames }
}

// New wraps an existing Redis client. The caller owns its lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func typeKey(typeName string) string { return keyPrefix + typeName }

// Append pushes r onto its type's list and trims it to MaxPerType.
func (s *Store) Append(ctx context.Context, r store.RunRecord) error {
	if r.RunID.IsNil() {
		r.RunID = id.NewRunID()
	}
	data, err := msgpack.Marshal(toWire(r))
	if err != nil {
		return fmt.Errorf("schedoscope/redis: marshal run record: %w", err)
	}

	key := typeKey(r.TypeName)
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, MaxPerType-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("schedoscope/redis: append run record: %w", err)
	}
	return nil
}

// List reads records for opts.TypeName (required — Redis keys are
// sharded per type). Before and Limit are applied client-side after
// decoding.
func (s *Store) List(ctx context.Context, opts store.ListOpts) ([]store.RunRecord, error) {
	if opts.TypeName == "" {
		return nil, fmt.Errorf("schedoscope/redis: List requires TypeName")
	}
	raw, err := s.client.LRange(ctx, typeKey(opts.TypeName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("schedoscope/redis: list run records: %w", err)
	}

	out := make([]store.RunRecord, 0, len(raw))
	for _, item := range raw {
		var w wireRecord
		if unmarshalErr := msgpack.Unmarshal([]byte(item), &w); unmarshalErr != nil {
			s.logger.Warn("schedoscope/redis: skipping corrupt run record", slog.String("error", unmarshalErr.Error()))
			continue
		}
		r := fromWire(w)
		if !opts.Before.IsZero() && !r.FinishedAt.Before(opts.Before) {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// DeleteOlderThan is not supported efficiently on a Redis List without
// a full rewrite; it scans every type name configured via
// WithTypeNames, rewriting each list with stale entries removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	for _, typeName := range s.typeNames {
		key := typeKey(typeName)
		raw, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return removed, fmt.Errorf("schedoscope/redis: delete older than: %w", err)
		}
		kept := make([]any, 0, len(raw))
		for _, item := range raw {
			var w wireRecord
			if unmarshalErr := msgpack.Unmarshal([]byte(item), &w); unmarshalErr != nil {
				continue
			}
			if w.FinishedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, item)
		}
		pipe := s.client.Pipeline()
		pipe.Del(ctx, key)
		if len(kept) > 0 {
			pipe.RPush(ctx, key, kept...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("schedoscope/redis: rewrite trimmed list: %w", err)
		}
	}
	return removed, nil
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }

func toWire(r store.RunRecord) wireRecord {
	return wireRecord{
		RunID:      r.RunID.String(),
		ViewName:   r.ViewName,
		TypeName:   r.TypeName,
		WorkerID:   r.WorkerID,
		Success:    r.Success,
		Checksum:   r.Checksum,
		Reason:     r.Reason,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func fromWire(w wireRecord) store.RunRecord {
	runID, _ := id.ParseRunID(w.RunID)
	return store.RunRecord{
		RunID:      runID,
		ViewName:   w.ViewName,
		TypeName:   w.TypeName,
		WorkerID:   w.WorkerID,
		Success:    w.Success,
		Checksum:   w.Checksum,
		Reason:     w.Reason,
		StartedAt:  w.StartedAt,
		FinishedAt: w.FinishedAt,
	}
}
