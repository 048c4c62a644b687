// Package memory implements store.RunStore with an in-process slice,
// the backend used by tests and by Dispatchers that don't need a
// durable audit trail. A Dispatcher has no RunStore unless one is
// attached with WithRunStore.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/janhicken/schedoscope/store"
)

// Store is a goroutine-safe, in-memory RunStore.
type Store struct {
	mu      sync.Mutex
	records []store.RunRecord
}

// New creates an empty memory Store.
func New() *Store { return &Store{} }

// Append adds r to the in-memory log.
func (s *Store) Append(_ context.Context, r store.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// List returns records matching opts, most recent first.
func (s *Store) List(_ context.Context, opts store.ListOpts) ([]store.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.RunRecord, 0, len(s.records))
	for _, r := range s.records {
		if opts.TypeName != "" && r.TypeName != opts.TypeName {
			continue
		}
		if !opts.Before.IsZero() && !r.FinishedAt.Before(opts.Before) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// DeleteOlderThan removes every record finished before cutoff.
func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if r.FinishedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

// Close is a no-op; the slice is garbage-collected with the Store.
func (s *Store) Close() error { return nil }
