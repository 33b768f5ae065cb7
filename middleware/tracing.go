package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lsendel/relay/outbox"
)

// tracerName is the instrumentation scope name for relay tracing.
const tracerName = "github.com/lsendel/relay"

// Tracing returns middleware that wraps event processing in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: relay.event.id, relay.event.type,
// relay.event.attempts, relay.event.user_id. On error, the span status is
// set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, ev *outbox.Event, next Handler) error {
		ctx, span := tracer.Start(ctx, "relay.event.process",
			trace.WithAttributes(
				attribute.String("relay.event.id", ev.ID.String()),
				attribute.String("relay.event.type", ev.Type),
				attribute.Int("relay.event.attempts", ev.Attempts),
				attribute.String("relay.event.user_id", ev.UserID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
