// Package middleware provides composable middleware around Driver
// execution. Middleware wraps a Handler call synchronously and can
// modify execution (recover from panics, inject tracing, log, enforce
// a timeout) without the Worker needing to know any of it happened.
package middleware

import (
	"context"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/transform"
)

// Handler is the terminal function that runs a transformation.
type Handler func(ctx context.Context) (driver.RunState, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// transformation being run and the next handler in the chain.
// Middleware MUST call next to continue the chain unless deliberately
// short-circuiting.
type Middleware func(ctx context.Context, t transform.Transformation, next Handler) (driver.RunState, error)

// Chain composes multiple middleware into one. Middleware run
// left-to-right as wrappers around the terminal handler:
//
//	Chain(recover, tracing, metrics) executes as recover → tracing → metrics → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, t transform.Transformation, next Handler) (driver.RunState, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (driver.RunState, error) {
				return mw(ctx, t, prev)
			}
		}
		return h(ctx)
	}
}

// Wrap adapts a Driver so every RunAndWait call to it passes through
// chain first. Run, Poll, Kill, Name, and DeployAll go straight to the
// wrapped Driver without passing through chain.
func Wrap(d driver.Driver, chain Middleware) driver.Driver {
	return &wrapped{Driver: d, chain: chain}
}

type wrapped struct {
	driver.Driver
	chain Middleware
}

func (w *wrapped) RunAndWait(ctx context.Context, t transform.Transformation) driver.RunState {
	state, err := w.chain(ctx, t, func(ctx context.Context) (driver.RunState, error) {
		return w.Driver.RunAndWait(ctx, t), nil
	})
	if err != nil {
		return driver.RunState{Status: driver.Failed, Reason: err.Error(), Cause: err}
	}
	return state
}
