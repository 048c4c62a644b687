package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/janhicken/schedoscope/driver"
	"github.com/janhicken/schedoscope/transform"
)

// tracerName is the instrumentation scope name for schedoscope tracing.
const tracerName = "github.com/janhicken/schedoscope"

// Tracing returns middleware that wraps a transformation run in an
// OpenTelemetry span. With no TracerProvider configured globally, the
// noop tracer is used and this middleware is a pass-through.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the given tracer,
// so tests and alternate providers can be injected directly.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, t transform.Transformation, next Handler) (driver.RunState, error) {
		ctx, span := tracer.Start(ctx, "schedoscope.transformation.run",
			trace.WithAttributes(
				attribute.String("schedoscope.transformation.type", t.TypeName),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		state, err := next(ctx)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case state.Status == driver.Failed:
			span.SetStatus(codes.Error, state.Reason)
		default:
			span.SetStatus(codes.Ok, "")
		}
		return state, err
	}
}
