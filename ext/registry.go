package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/janhicken/schedoscope/transform"
	"github.com/janhicken/schedoscope/worker"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type workerBootedEntry struct {
	name string
	hook WorkerBooted
}

type workerRestartedEntry struct {
	name string
	hook WorkerRestarted
}

type workerEscalatedEntry struct {
	name string
	hook WorkerEscalated
}

type transformationStartedEntry struct {
	name string
	hook TransformationStarted
}

type transformationCompletedEntry struct {
	name string
	hook TransformationCompleted
}

type transformationRetryingEntry struct {
	name string
	hook TransformationRetrying
}

type driverLifecycleTickedEntry struct {
	name string
	hook DriverLifecycleTicked
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit
// calls iterate only over extensions that implement the relevant
// hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	workerBooted           []workerBootedEntry
	workerRestarted        []workerRestartedEntry
	workerEscalated        []workerEscalatedEntry
	transformationStarted  []transformationStartedEntry
	transformationComplete []transformationCompletedEntry
	transformationRetrying []transformationRetryingEntry
	driverLifecycleTicked  []driverLifecycleTickedEntry
	shutdown               []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkerBooted); ok {
		r.workerBooted = append(r.workerBooted, workerBootedEntry{name, h})
	}
	if h, ok := e.(WorkerRestarted); ok {
		r.workerRestarted = append(r.workerRestarted, workerRestartedEntry{name, h})
	}
	if h, ok := e.(WorkerEscalated); ok {
		r.workerEscalated = append(r.workerEscalated, workerEscalatedEntry{name, h})
	}
	if h, ok := e.(TransformationStarted); ok {
		r.transformationStarted = append(r.transformationStarted, transformationStartedEntry{name, h})
	}
	if h, ok := e.(TransformationCompleted); ok {
		r.transformationComplete = append(r.transformationComplete, transformationCompletedEntry{name, h})
	}
	if h, ok := e.(TransformationRetrying); ok {
		r.transformationRetrying = append(r.transformationRetrying, transformationRetryingEntry{name, h})
	}
	if h, ok := e.(DriverLifecycleTicked); ok {
		r.driverLifecycleTicked = append(r.driverLifecycleTicked, driverLifecycleTickedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitWorkerBooted notifies all extensions that implement WorkerBooted.
func (r *Registry) EmitWorkerBooted(ctx context.Context, workerID, poolName string) {
	for _, e := range r.workerBooted {
		if err := e.hook.OnWorkerBooted(ctx, workerID, poolName); err != nil {
			r.logHookError("OnWorkerBooted", e.name, err)
		}
	}
}

// EmitWorkerRestarted notifies all extensions that implement WorkerRestarted.
func (r *Registry) EmitWorkerRestarted(ctx context.Context, workerID string, fault worker.Fault) {
	for _, e := range r.workerRestarted {
		if err := e.hook.OnWorkerRestarted(ctx, workerID, fault); err != nil {
			r.logHookError("OnWorkerRestarted", e.name, err)
		}
	}
}

// EmitWorkerEscalated notifies all extensions that implement WorkerEscalated.
func (r *Registry) EmitWorkerEscalated(ctx context.Context, poolName string, fault worker.Fault) {
	for _, e := range r.workerEscalated {
		if err := e.hook.OnWorkerEscalated(ctx, poolName, fault); err != nil {
			r.logHookError("OnWorkerEscalated", e.name, err)
		}
	}
}

// EmitTransformationStarted notifies all extensions that implement TransformationStarted.
func (r *Registry) EmitTransformationStarted(ctx context.Context, workerID string, t transform.Transformation) {
	for _, e := range r.transformationStarted {
		if err := e.hook.OnTransformationStarted(ctx, workerID, t); err != nil {
			r.logHookError("OnTransformationStarted", e.name, err)
		}
	}
}

// EmitTransformationCompleted notifies all extensions that implement TransformationCompleted.
func (r *Registry) EmitTransformationCompleted(ctx context.Context, workerID string, t transform.Transformation, elapsed time.Duration, outcome transform.RunOutcome) {
	for _, e := range r.transformationComplete {
		if err := e.hook.OnTransformationCompleted(ctx, workerID, t, elapsed, outcome); err != nil {
			r.logHookError("OnTransformationCompleted", e.name, err)
		}
	}
}

// EmitTransformationRetrying notifies all extensions that implement TransformationRetrying.
func (r *Registry) EmitTransformationRetrying(ctx context.Context, workerID string, t transform.Transformation, fault worker.Fault) {
	for _, e := range r.transformationRetrying {
		if err := e.hook.OnTransformationRetrying(ctx, workerID, t, fault); err != nil {
			r.logHookError("OnTransformationRetrying", e.name, err)
		}
	}
}

// EmitDriverLifecycleTicked notifies all extensions that implement DriverLifecycleTicked.
func (r *Registry) EmitDriverLifecycleTicked(ctx context.Context, typeName string, wait time.Duration, retries int) {
	for _, e := range r.driverLifecycleTicked {
		if err := e.hook.OnDriverLifecycleTicked(ctx, typeName, wait, retries); err != nil {
			r.logHookError("OnDriverLifecycleTicked", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block dispatch.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
