package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	// LoggerKey carries the request-scoped logger.
	LoggerKey contextKey = "logger"
	// RequestIDKey carries the correlation ID assigned at the HTTP edge.
	RequestIDKey contextKey = "request_id"
)

// WithContext attaches the logger to the context.
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID in the context and returns a logger
// that stamps it on every entry. The enriched logger is also attached to
// the returned context.
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	enriched := logger.With(zap.String("request_id", requestID))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID returns the request ID from ctx, or "".
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// validSpanContext returns the span context from ctx when a recording
// trace is active.
func validSpanContext(ctx context.Context) (trace.SpanContext, bool) {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	return spanCtx, spanCtx.IsValid()
}

// GetTraceID returns the active trace ID, or "" when no valid span exists.
func GetTraceID(ctx context.Context) string {
	if spanCtx, ok := validSpanContext(ctx); ok {
		return spanCtx.TraceID().String()
	}
	return ""
}

// GetSpanID returns the active span ID, or "" when no valid span exists.
func GetSpanID(ctx context.Context) string {
	if spanCtx, ok := validSpanContext(ctx); ok {
		return spanCtx.SpanID().String()
	}
	return ""
}

// WithTraceContext returns the logger enriched with trace_id and span_id
// so log entries can be joined to traces. Without a valid span the logger
// is returned unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx, ok := validSpanContext(ctx)
	if !ok {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
