package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxRequestIDLength caps header-supplied IDs before they land in span
// attributes.
const maxRequestIDLength = 128

// TracingConfig holds tracing middleware configuration.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns the default configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "freightops-backend",
		Enabled:     true,
	}
}

// Tracing returns the tracing middleware with the default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin so every request runs inside a server
// span named "METHOD route". Chain SpanErrorMarker after it for request
// ID stamping and error status.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return noopMiddleware
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// requestIDFor prefers the ID the RequestID middleware stored, falling
// back to the raw header.
func requestIDFor(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > maxRequestIDLength {
		headerID = headerID[:maxRequestIDLength]
	}
	return headerID
}

// SpanErrorMarker annotates the request span: the correlation ID goes
// on before the handlers run, and 4xx/5xx responses mark the span
// failed afterwards. Chain it after Tracing, while the span is still
// recording.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if requestID := requestIDFor(c); requestID != "" {
				span.SetAttributes(attribute.String("request_id", requestID))
			}
		}

		c.Next()

		if !span.IsRecording() {
			return
		}
		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}
		span.SetStatus(codes.Error, statusText(statusCode))
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}

func statusText(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "Internal Server Error"
	case statusCode == http.StatusUnauthorized:
		return "Unauthorized"
	case statusCode == http.StatusForbidden:
		return "Forbidden"
	case statusCode == http.StatusNotFound:
		return "Not Found"
	default:
		return "Client Error"
	}
}
