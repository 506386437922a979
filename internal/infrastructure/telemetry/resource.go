// Package telemetry wires the OpenTelemetry trace, metric and log
// pipelines for the reconciliation backend. Every provider degrades to
// no-op when telemetry is disabled, so callers never branch on it.
package telemetry

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// shutdownTimeout bounds provider shutdown so a hung collector cannot
// stall process exit.
const shutdownTimeout = 10 * time.Second

const serviceVersion = "1.0.0"

// otelResource builds the resource shared by the trace, metric and log
// providers, identifying this service to the collector.
func otelResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}
	return res, nil
}
