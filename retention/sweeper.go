// Package retention periodically prunes the run-history audit trail.
// This is maintenance of store.RunStore only — it never touches the
// Dispatcher's in-memory routing/backoff state, and its absence
// changes nothing about correctness, only how much history operators
// can see.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/janhicken/schedoscope/store"
)

// Sweeper deletes run-history records older than Window on a cron
// schedule.
type Sweeper struct {
	runStore store.RunStore
	window   time.Duration
	logger   *slog.Logger

	cron *cron.Cron
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger overrides the Sweeper's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// New creates a Sweeper that deletes run-history records older than
// window whenever schedule fires (a standard five-field cron
// expression, e.g. "0 * * * *" for hourly).
func New(runStore store.RunStore, window time.Duration, schedule string, opts ...Option) (*Sweeper, error) {
	s := &Sweeper{runStore: runStore, window: window, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(schedule, s.sweep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron scheduler. It returns immediately.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-progress sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

func (s *Sweeper) sweep() {
	cutoff := time.Now().UTC().Add(-s.window)
	removed, err := s.runStore.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		s.logger.Error("retention: sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		s.logger.Info("retention: pruned run history", slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
	}
}
