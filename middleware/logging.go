package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/transform"
)

// Logging returns middleware that logs the start and completion of
// every transformation run.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t transform.Transformation, next Handler) (driver.RunState, error) {
		logger.Info("transformation started", slog.String("type_name", t.TypeName))

		start := time.Now()
		state, err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			logger.Error("transformation errored",
				slog.String("type_name", t.TypeName),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		case state.Status == driver.Failed:
			logger.Warn("transformation failed",
				slog.String("type_name", t.TypeName),
				slog.Duration("elapsed", elapsed),
				slog.String("reason", state.Reason),
			)
		default:
			logger.Info("transformation completed",
				slog.String("type_name", t.TypeName),
				slog.Duration("elapsed", elapsed),
				slog.String("checksum", state.Checksum),
			)
		}

		return state, err
	}
}
