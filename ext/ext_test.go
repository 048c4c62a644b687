package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/janhicken/schedoscope/ext"
	"github.com/janhicken/schedoscope/transform"
	"github.com/janhicken/schedoscope/worker"
)

// bootRecorder implements only ext.WorkerBooted.
type bootRecorder struct {
	booted []string
}

func (b *bootRecorder) Name() string { return "boot-recorder" }

func (b *bootRecorder) OnWorkerBooted(ctx context.Context, workerID, poolName string) error {
	b.booted = append(b.booted, workerID+"@"+poolName)
	return nil
}

// fullExtension implements every lifecycle hook so a single registration
// exercises every Emit* method.
type fullExtension struct {
	name   string
	events []string
}

func (f *fullExtension) Name() string { return f.name }

func (f *fullExtension) OnWorkerBooted(ctx context.Context, workerID, poolName string) error {
	f.events = append(f.events, "booted")
	return nil
}

func (f *fullExtension) OnWorkerRestarted(ctx context.Context, workerID string, fault worker.Fault) error {
	f.events = append(f.events, "restarted")
	return nil
}

func (f *fullExtension) OnWorkerEscalated(ctx context.Context, poolName string, fault worker.Fault) error {
	f.events = append(f.events, "escalated")
	return nil
}

func (f *fullExtension) OnTransformationStarted(ctx context.Context, workerID string, t transform.Transformation) error {
	f.events = append(f.events, "started")
	return nil
}

func (f *fullExtension) OnTransformationCompleted(ctx context.Context, workerID string, t transform.Transformation, elapsed time.Duration, outcome transform.RunOutcome) error {
	f.events = append(f.events, "completed")
	return nil
}

func (f *fullExtension) OnTransformationRetrying(ctx context.Context, workerID string, t transform.Transformation, fault worker.Fault) error {
	f.events = append(f.events, "retrying")
	return nil
}

func (f *fullExtension) OnDriverLifecycleTicked(ctx context.Context, typeName string, wait time.Duration, retries int) error {
	f.events = append(f.events, "ticked")
	return nil
}

func (f *fullExtension) OnShutdown(ctx context.Context) error {
	f.events = append(f.events, "shutdown")
	return nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_EmitsOnlyToMatchingHooks(t *testing.T) {
	r := ext.NewRegistry(silentLogger())
	recorder := &bootRecorder{}
	r.Register(recorder)

	r.EmitWorkerBooted(context.Background(), "w-1", "filesystem-pool")
	r.EmitShutdown(context.Background())

	if len(recorder.booted) != 1 || recorder.booted[0] != "w-1@filesystem-pool" {
		t.Fatalf("unexpected booted events: %v", recorder.booted)
	}
}

func TestRegistry_DispatchesEveryHookInOrder(t *testing.T) {
	r := ext.NewRegistry(silentLogger())
	full := &fullExtension{name: "full"}
	r.Register(full)

	ctx := context.Background()
	r.EmitWorkerBooted(ctx, "w-1", "pool")
	r.EmitWorkerRestarted(ctx, "w-1", worker.Fault{})
	r.EmitWorkerEscalated(ctx, "pool", worker.Fault{})
	r.EmitTransformationStarted(ctx, "w-1", transform.Transformation{})
	r.EmitTransformationCompleted(ctx, "w-1", transform.Transformation{}, time.Second, transform.RunOutcome{})
	r.EmitTransformationRetrying(ctx, "w-1", transform.Transformation{}, worker.Fault{})
	r.EmitDriverLifecycleTicked(ctx, "filesystem", time.Second, 1)
	r.EmitShutdown(ctx)

	want := []string{"booted", "restarted", "escalated", "started", "completed", "retrying", "ticked", "shutdown"}
	if len(full.events) != len(want) {
		t.Fatalf("got events %v, want %v", full.events, want)
	}
	for i, name := range want {
		if full.events[i] != name {
			t.Fatalf("got events %v, want %v", full.events, want)
		}
	}
}

func TestRegistry_ExtensionsReturnsRegistrationOrder(t *testing.T) {
	r := ext.NewRegistry(silentLogger())
	a := &bootRecorder{}
	b := &fullExtension{name: "full"}
	r.Register(a)
	r.Register(b)

	got := r.Extensions()
	if len(got) != 2 || got[0] != ext.Extension(a) || got[1] != ext.Extension(b) {
		t.Fatalf("unexpected extension order: %v", got)
	}
}

func TestRegistry_HookErrorIsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(silentLogger())
	r.Register(&erroringExtension{})

	// Must not panic or block; the error is swallowed after logging.
	r.EmitShutdown(context.Background())
}

type erroringExtension struct{}

func (e *erroringExtension) Name() string                         { return "erroring" }
func (e *erroringExtension) OnShutdown(ctx context.Context) error { return errors.New("shutdown failed") }
