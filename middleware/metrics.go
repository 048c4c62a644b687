package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/transform"
)

// meterName is the instrumentation scope name for schedoscope metrics.
const meterName = "github.com/janhicken/schedoscope"

// Metrics returns middleware that records per-run execution metrics
// using the global OTel MeterProvider. With no MeterProvider
// configured, noop instruments are used and this middleware becomes a
// pass-through.
//
// Instruments:
//   - schedoscope.transformation.duration (Float64Histogram): seconds,
//     attributes type_name, status ("ok" or "error")
//   - schedoscope.transformation.runs (Int64Counter): total runs,
//     attributes type_name, status
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the given meter,
// so a specific MeterProvider can be injected for testing.
func MetricsWithMeter(meter metric.Meter) Middleware {
	duration, _ := meter.Float64Histogram(
		"schedoscope.transformation.duration",
		metric.WithDescription("Duration of a transformation run in seconds"),
		metric.WithUnit("s"),
	)
	runs, _ := meter.Int64Counter(
		"schedoscope.transformation.runs",
		metric.WithDescription("Total number of transformation runs"),
		metric.WithUnit("{run}"),
	)

	return func(ctx context.Context, t transform.Transformation, next Handler) (driver.RunState, error) {
		start := time.Now()
		state, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil || state.Status == driver.Failed {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("type_name", t.TypeName),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		runs.Add(ctx, 1, attrs)

		return state, err
	}
}
