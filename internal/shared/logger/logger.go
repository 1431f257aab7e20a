// Package logger provides cross-cutting logging types for use across the SDK.
// This package exists so that every layer can reference structured-logging
// types without each file importing log/slog or the tracing SDK directly.
//
// The Logger type is a type alias for slog.Logger, allowing seamless
// integration with Go's standard structured logging.
package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Logger is a type alias for slog.Logger.
type Logger = slog.Logger

// Attr is a type alias for slog.Attr for structured logging attributes.
type Attr = slog.Attr

// Level is a type alias for slog.Level for log levels.
type Level = slog.Level

// Log level constants.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Attribute constructors - re-exported from slog for convenience.
var (
	String   = slog.String
	Int      = slog.Int
	Int64    = slog.Int64
	Float64  = slog.Float64
	Bool     = slog.Bool
	Duration = slog.Duration
	Time     = slog.Time
	Any      = slog.Any
	Group    = slog.Group
)

// Log key constants for consistent log field names across the SDK.
const (
	KeyTraceID    = "traceId"
	KeySpanID     = "spanId"
	KeyOperation  = "operation"
	KeyStrategy   = "strategy"
	KeyAPIKeyID   = "api_key_id"
	KeyStatus     = "status"
	KeyDuration   = "duration_ms"
	KeyAttempt    = "attempt"
	KeyQueueDepth = "queue_depth"
)

// FromContext returns a logger enriched with the trace and span IDs (keys
// KeyTraceID "traceId" and KeySpanID "spanId") from the active
// OpenTelemetry span in ctx, if any. Callers outside of a span get base back
// unchanged.
func FromContext(ctx context.Context, base *Logger) *Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return base
	}
	return base.With(
		KeyTraceID, span.TraceID().String(),
		KeySpanID, span.SpanID().String(),
	)
}
