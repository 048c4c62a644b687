package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/janhicken/schedoscope/transform"
)

// Hive is a stand-in HiveQL driver. It models query-submission latency
// and, via an injectable FailureInjector, a configurable transient
// failure mode — used to exercise the Worker/Pool/Dispatcher
// supervision and backoff machinery in tests without a real Hive
// cluster.
type Hive struct {
	*base
	logger *slog.Logger

	// QueryLatency simulates how long a query takes to run.
	QueryLatency time.Duration
	// FailureInjector, if non-nil, is consulted before simulating a run.
	// A non-nil return is wrapped as a RetryableFailure. Callers that
	// want a failure to persist across Worker restarts must close over
	// state that survives the Driver being recreated (e.g. an atomic
	// counter held by the test, not by the Driver).
	FailureInjector func() error
}

// HiveOption configures a Hive driver.
type HiveOption func(*Hive)

// WithQueryLatency sets the simulated query latency.
func WithQueryLatency(d time.Duration) HiveOption {
	return func(h *Hive) { h.QueryLatency = d }
}

// WithFailureInjector installs a failure injector consulted on every run.
func WithFailureInjector(fn func() error) HiveOption {
	return func(h *Hive) { h.FailureInjector = fn }
}

// NewHive creates the Hive stand-in driver.
func NewHive(logger *slog.Logger, opts ...HiveOption) *Hive {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hive{logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	h.base = newBase("hive", h.run)
	return h
}

func (h *Hive) run(ctx context.Context, t transform.Transformation) (RunState, error) {
	if h.FailureInjector != nil {
		if err := h.FailureInjector(); err != nil {
			h.logger.Warn("hive: injected transient failure", slog.String("error", err.Error()))
			return RunState{}, &RetryableFailure{Cause: err}
		}
	}

	if err := simulateDelay(ctx, h.QueryLatency); err != nil {
		return RunState{Status: Failed, Reason: "hive: query cancelled", Cause: err}, nil
	}

	query, _ := t.Params["query"].(string)
	if query == "" {
		return RunState{Status: Failed, Reason: "hive: transformation has no query parameter"}, nil
	}

	return RunState{
		Status:   Succeeded,
		Comment:  fmt.Sprintf("hive: executed query (%d bytes)", len(query)),
		Checksum: fmt.Sprintf("hive-%d", len(query)),
	}, nil
}

// DeployAll is a no-op for the Hive stand-in: there is nothing to stage
// locally since queries are submitted to an external cluster. It always
// reports success, matching a driver with no deployable libraries.
func (h *Hive) DeployAll(_ context.Context, _ DeploySettings) (bool, error) {
	return true, nil
}
