// Package store defines the run-history audit trail: an append-only
// record of concluded transformation runs, kept separate from the
// Dispatcher's own in-memory routing/backoff state (see package
// schedoscope's DispatcherState). A RunStore is never consulted when
// routing a command or deciding whether to restart a Worker — its
// only consumer is an operator querying List, or a retention sweep
// trimming old entries.
package store

import (
	"context"
	"time"

	"github.com/janhicken/schedoscope/id"
)

// RunRecord is one append-only audit entry for a concluded
// transformation run.
type RunRecord struct {
	RunID      id.RunID
	ViewName   string
	TypeName   string
	WorkerID   string
	Success    bool
	Checksum   string
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// ListOpts bounds and filters a List query.
type ListOpts struct {
	TypeName string
	Limit    int
	Before   time.Time
}

// RunStore is the persistence contract for the run-history audit
// trail. Implementations must not block dispatch decisions on failure
// — Append errors are logged by callers, never propagated into the
// routing path.
type RunStore interface {
	Append(ctx context.Context, r RunRecord) error
	List(ctx context.Context, opts ListOpts) ([]RunRecord, error)
	// DeleteOlderThan removes every record with FinishedAt before
	// cutoff, for use by retention.Sweeper. It returns the number of
	// records removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
