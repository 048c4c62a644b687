package driver_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/transform"
)

func TestFilesystem_Mkdir_Succeeds(t *testing.T) {
	tmp := t.TempDir()
	dst := filepath.Join(tmp, "partition", "date=2026-08-03")

	fs := driver.NewFilesystem(nil)
	state := fs.RunAndWait(context.Background(), transform.Transformation{
		TypeName: "filesystem",
		Params:   map[string]any{"op": "mkdir", "dst": dst},
	})

	if state.Status != driver.Succeeded {
		t.Fatalf("status = %v, want Succeeded (reason: %s)", state.Status, state.Reason)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected directory to exist: %v", err)
	}
}

func TestFilesystem_Mkdir_AlreadyExistsSucceeds(t *testing.T) {
	tmp := t.TempDir()

	fs := driver.NewFilesystem(nil)
	t1 := transform.Transformation{TypeName: "filesystem", Params: map[string]any{"op": "mkdir", "dst": tmp}}

	state := fs.RunAndWait(context.Background(), t1)
	if state.Status != driver.Succeeded {
		t.Fatalf("first mkdir: status = %v, reason = %s", state.Status, state.Reason)
	}
}

func TestFilesystem_Copy_MissingSrcFails(t *testing.T) {
	tmp := t.TempDir()
	fs := driver.NewFilesystem(nil)

	state := fs.RunAndWait(context.Background(), transform.Transformation{
		TypeName: "filesystem",
		Params:   map[string]any{"op": "copy", "src": filepath.Join(tmp, "nope"), "dst": filepath.Join(tmp, "out")},
	})

	if state.Status != driver.Failed {
		t.Fatalf("status = %v, want Failed", state.Status)
	}
	if state.Cause == nil {
		t.Fatal("expected Cause to be set on failure, not swallowed")
	}
}

func TestHive_SucceedsWithoutInjector(t *testing.T) {
	h := driver.NewHive(nil, driver.WithQueryLatency(time.Millisecond))
	state := h.RunAndWait(context.Background(), transform.Transformation{
		TypeName: "hive",
		Params:   map[string]any{"query": "SELECT 1"},
	})
	if state.Status != driver.Succeeded {
		t.Fatalf("status = %v, want Succeeded", state.Status)
	}
	if state.Checksum == "" {
		t.Fatal("expected non-empty checksum")
	}
}

func TestHive_FailureInjectorClassifiedRetryable(t *testing.T) {
	injected := errors.New("hive metastore unreachable")
	h := driver.NewHive(nil, driver.WithFailureInjector(func() error { return injected }))

	handle, err := h.Run(context.Background(), transform.Transformation{TypeName: "hive", Params: map[string]any{"query": "SELECT 1"}})
	if err != nil {
		t.Fatalf("Run returned an error directly: %v", err)
	}

	// Give the async run a moment to complete and observe via Poll.
	deadline := time.Now().Add(time.Second)
	state := h.Poll(handle)
	for state.Status == driver.Ongoing && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		state = h.Poll(handle)
	}
	if state.Status != driver.Failed {
		t.Fatalf("status = %v, want Failed", state.Status)
	}
	if !driver.IsRetryable(state.Cause) {
		t.Fatalf("expected the injected failure to be classified retryable, got cause %v", state.Cause)
	}
}

func TestHive_FailThenSucceedAcrossRestarts(t *testing.T) {
	var attempt int
	failures := 3

	newDriver := func() *driver.Hive {
		return driver.NewHive(nil, driver.WithFailureInjector(func() error {
			attempt++
			if attempt <= failures {
				return errors.New("transient")
			}
			return nil
		}))
	}

	var lastState driver.RunState
	for i := 0; i < failures+1; i++ {
		h := newDriver()
		lastState = h.RunAndWait(context.Background(), transform.Transformation{
			TypeName: "hive",
			Params:   map[string]any{"query": "SELECT 1"},
		})
	}

	if lastState.Status != driver.Succeeded {
		t.Fatalf("final attempt status = %v, want Succeeded", lastState.Status)
	}
	if attempt != failures+1 {
		t.Fatalf("attempt = %d, want %d", attempt, failures+1)
	}
}

func TestFilesystem_DeployAll_RejectsUnpack(t *testing.T) {
	fs := driver.NewFilesystem(nil)
	ok, err := fs.DeployAll(context.Background(), driver.DeploySettings{Unpack: true})
	if err == nil || ok {
		t.Fatal("expected DeployAll to reject Unpack")
	}
}

func TestFilesystem_DeployAll_CopiesLibs(t *testing.T) {
	tmp := t.TempDir()
	lib := filepath.Join(tmp, "lib.jar")
	if err := os.WriteFile(lib, []byte("jar contents"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(tmp, "deployed")

	fs := driver.NewFilesystem(nil)
	ok, err := fs.DeployAll(context.Background(), driver.DeploySettings{Libs: []string{lib}, Location: dest})
	if err != nil {
		t.Fatalf("DeployAll: %v", err)
	}
	if !ok {
		t.Fatal("expected DeployAll to report success")
	}
	if _, err := os.Stat(filepath.Join(dest, "lib.jar")); err != nil {
		t.Fatalf("expected deployed lib to exist: %v", err)
	}
}
