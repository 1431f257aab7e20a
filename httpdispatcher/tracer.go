package httpdispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer records one OpenTelemetry span per dispatched POST.
type Tracer interface {
	RecordPost(ctx context.Context, url string, attempts int, duration time.Duration, err error)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer builds a Tracer using the given instrumentation name, or the
// global tracer provider's default if name is empty.
func NewTracer(name string) Tracer {
	if name == "" {
		name = "aicostmanager-go/httpdispatcher"
	}
	return &otelTracer{tracer: otel.Tracer(name)}
}

func (t *otelTracer) RecordPost(ctx context.Context, url string, attempts int, duration time.Duration, err error) {
	_, span := t.tracer.Start(ctx, "httpdispatcher.Post", trace.WithAttributes(
		attribute.String("http.url", url),
		attribute.Int("dispatch.attempts", attempts),
		attribute.Float64("dispatch.duration_ms", float64(duration.Milliseconds())),
	))
	defer span.End()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
