package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/middleware"
	"github.com/janhicken/schedoscope/transform"
)

// fakeDriver is a minimal driver.Driver whose RunAndWait result and
// panic behavior are controlled directly by the test.
type fakeDriver struct {
	state driver.RunState
	panic any
}

func (f *fakeDriver) Name() string { return "fake" }

func (f *fakeDriver) Run(ctx context.Context, t transform.Transformation) (*driver.RunHandle, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDriver) Poll(h *driver.RunHandle) driver.RunState { return driver.RunState{} }

func (f *fakeDriver) RunAndWait(ctx context.Context, t transform.Transformation) driver.RunState {
	if f.panic != nil {
		panic(f.panic)
	}
	return f.state
}

func (f *fakeDriver) Kill(h *driver.RunHandle) error { return nil }

func (f *fakeDriver) DeployAll(ctx context.Context, settings driver.DeploySettings) (bool, error) {
	return true, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_CallsMiddlewareInOrder(t *testing.T) {
	var order []string
	record := func(name string) middleware.Middleware {
		return func(ctx context.Context, tr transform.Transformation, next middleware.Handler) (driver.RunState, error) {
			order = append(order, name+":before")
			state, err := next(ctx)
			order = append(order, name+":after")
			return state, err
		}
	}

	chain := middleware.Chain(record("outer"), record("inner"))
	_, err := chain(context.Background(), transform.Transformation{}, func(ctx context.Context) (driver.RunState, error) {
		order = append(order, "handler")
		return driver.RunState{Status: driver.Succeeded}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("got order %v, want %v", order, want)
	}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("got order %v, want %v", order, want)
		}
	}
}

func TestWrap_PassesSuccessThrough(t *testing.T) {
	d := &fakeDriver{state: driver.RunState{Status: driver.Succeeded, Comment: "ok"}}
	wrapped := middleware.Wrap(d, middleware.Chain())

	state := wrapped.RunAndWait(context.Background(), transform.Transformation{TypeName: "fake"})
	if state.Status != driver.Succeeded || state.Comment != "ok" {
		t.Fatalf("unexpected state: %+v", state)
	}
	if wrapped.Name() != "fake" {
		t.Fatalf("expected Name to pass through, got %q", wrapped.Name())
	}
}

func TestWrap_PreservesRetryableCause(t *testing.T) {
	cause := &driver.RetryableFailure{Cause: errors.New("boom")}
	d := &fakeDriver{state: driver.RunState{Status: driver.Failed, Reason: "boom", Cause: cause}}
	wrapped := middleware.Wrap(d, middleware.Chain(middleware.Logging(silentLogger())))

	state := wrapped.RunAndWait(context.Background(), transform.Transformation{TypeName: "fake"})
	if !driver.IsRetryable(state.Cause) {
		t.Fatalf("expected retryable cause to survive the middleware chain, got %+v", state)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	d := &fakeDriver{panic: "boom"}
	chain := middleware.Chain(middleware.Recover(silentLogger()))
	wrapped := middleware.Wrap(d, chain)

	state := wrapped.RunAndWait(context.Background(), transform.Transformation{TypeName: "fake"})
	if state.Status != driver.Failed {
		t.Fatalf("expected a Failed RunState after recovering a panic, got %+v", state)
	}
	if state.Cause == nil {
		t.Fatalf("expected Cause to carry the recovered panic")
	}
}
