// Package ext defines the extension system for the dispatcher.
// Extensions are notified of lifecycle events (worker booted, a
// transformation started or finished, a fault escalated, shutdown)
// and can react to them — logging, metrics, alerting, anything else.
//
// Each lifecycle hook is a separate interface so extensions opt in
// only to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/janhicken/schedoscope/transform"
	"github.com/janhicken/schedoscope/worker"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerBooted is called every time a Worker (re)boots, including
// after a restart triggered by a retryable or init fault.
type WorkerBooted interface {
	OnWorkerBooted(ctx context.Context, workerID string, poolName string) error
}

// WorkerRestarted is called when a Worker restarts in place after a
// retryable or initialization fault.
type WorkerRestarted interface {
	OnWorkerRestarted(ctx context.Context, workerID string, fault worker.Fault) error
}

// WorkerEscalated is called when a Worker's fault is unrecoverable at
// the Worker level and is passed up to the Pool's supervisor.
type WorkerEscalated interface {
	OnWorkerEscalated(ctx context.Context, poolName string, fault worker.Fault) error
}

// ──────────────────────────────────────────────────
// Transformation lifecycle hooks
// ──────────────────────────────────────────────────

// TransformationStarted is called when a Worker begins running a
// transformation.
type TransformationStarted interface {
	OnTransformationStarted(ctx context.Context, workerID string, t transform.Transformation) error
}

// TransformationCompleted is called after a transformation run
// concludes, whether it succeeded or failed terminally — RunOutcome
// carries the distinction.
type TransformationCompleted interface {
	OnTransformationCompleted(ctx context.Context, workerID string, t transform.Transformation, elapsed time.Duration, outcome transform.RunOutcome) error
}

// TransformationRetrying is called when a transformation run is
// dropped by a retryable fault and will need to be resubmitted once
// the owning Pool's backoff admits another tick.
type TransformationRetrying interface {
	OnTransformationRetrying(ctx context.Context, workerID string, t transform.Transformation, fault worker.Fault) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// DriverLifecycleTicked is called each time the dispatcher schedules a
// tick for a transformation type, reporting the backoff state that
// produced the wait.
type DriverLifecycleTicked interface {
	OnDriverLifecycleTicked(ctx context.Context, typeName string, wait time.Duration, retries int) error
}

// Shutdown is called during graceful shutdown of the dispatcher.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
