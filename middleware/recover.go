package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/transform"
)

// Recover returns middleware that recovers from panics raised while
// running a transformation. Panics are converted to a Failed RunState
// and logged with a stack trace, so a single misbehaving driver can
// never take down its Worker goroutine.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t transform.Transformation, next Handler) (state driver.RunState, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("transformation handler panicked",
					slog.String("type_name", t.TypeName),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic running %s transformation: %v", t.TypeName, r)
			}
		}()
		return next(ctx)
	}
}
