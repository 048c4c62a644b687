package schedoscope_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janhicken/schedoscope"
	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/store"
	"github.com/janhicken/schedoscope/store/memory"
	"github.com/janhicken/schedoscope/transform"
)

func filesystemRegistry() *driver.Registry {
	r := driver.NewRegistry()
	r.Register("filesystem", func() (driver.Driver, error) {
		return driver.NewFilesystem(nil), nil
	})
	return r
}

func newTestDispatcher(t *testing.T, runStore store.RunStore) *schedoscope.Dispatcher {
	t.Helper()
	opts := []schedoscope.Option{
		schedoscope.WithDriverRegistry(filesystemRegistry()),
		schedoscope.WithConfig(schedoscope.DefaultConfig()),
	}
	if runStore != nil {
		opts = append(opts, schedoscope.WithRunStore(runStore))
	}

	d, err := schedoscope.New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d
}

func TestDispatcher_RoutesFilesystemTransformationAndReplies(t *testing.T) {
	d := newTestDispatcher(t, nil)
	target := filepath.Join(t.TempDir(), "partition")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := d.Dispatch(ctx, transform.NewFilesystemTransformation(map[string]any{
		"op": "mkdir", "dst": target,
	}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, ok := reply.(transform.TransformationSuccess); !ok {
		t.Fatalf("expected TransformationSuccess, got %T (%v)", reply, reply)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
}

func TestDispatcher_UnknownTypeRepliesWithFailure(t *testing.T) {
	d := newTestDispatcher(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := d.Dispatch(ctx, transform.Transformation{TypeName: "nonexistent"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	failure, ok := reply.(transform.TransformationFailure)
	if !ok {
		t.Fatalf("expected TransformationFailure, got %T", reply)
	}
	if failure.Reason == "" {
		t.Fatalf("expected a non-empty failure reason")
	}
}

func TestDispatcher_GetTransformationsReturnsBootedWorkers(t *testing.T) {
	d := newTestDispatcher(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := d.GetTransformations(ctx)
		if err != nil {
			t.Fatalf("GetTransformations: %v", err)
		}
		if len(resp.States) > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for a worker status")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatcher_RunRecordAppendedOnSuccess(t *testing.T) {
	runStore := memory.New()
	d := newTestDispatcher(t, runStore)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := d.Dispatch(ctx, transform.NewFilesystemTransformation(map[string]any{
		"op": "mkdir", "dst": filepath.Join(t.TempDir(), "p"),
	}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		records, listErr := runStore.List(ctx, store.ListOpts{})
		if listErr != nil {
			t.Fatalf("List: %v", listErr)
		}
		if len(records) > 0 {
			if !records[0].Success {
				t.Fatalf("expected a successful run record, got %+v", records[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for a run record to be appended")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatcher_StartTwiceFails(t *testing.T) {
	d := newTestDispatcher(t, nil)
	if err := d.Start(); err != schedoscope.ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestDispatcher_StopWithoutStartFails(t *testing.T) {
	d, err := schedoscope.New(
		schedoscope.WithDriverRegistry(filesystemRegistry()),
		schedoscope.WithConfig(schedoscope.DefaultConfig()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Stop(context.Background()); err != schedoscope.ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestNew_RequiresDriverRegistry(t *testing.T) {
	if _, err := schedoscope.New(); err != schedoscope.ErrNoDriverRegistry {
		t.Fatalf("expected ErrNoDriverRegistry, got %v", err)
	}
}

func TestNew_UnknownConfiguredTypeIsFatal(t *testing.T) {
	cfg := schedoscope.DefaultConfig()
	cfg.Types["hive"] = schedoscope.TypeConfig{Concurrency: 1}

	_, err := schedoscope.New(
		schedoscope.WithDriverRegistry(filesystemRegistry()),
		schedoscope.WithConfig(cfg),
	)
	if err == nil {
		t.Fatal("expected an error for an unregistered transformation type")
	}
}
