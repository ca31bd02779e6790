package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// HTTPMetrics records API traffic through the OpenTelemetry metric API. The
// readings are exported through the same Prometheus registry as the pipeline
// collectors.
type HTTPMetrics struct {
	provider *sdkmetric.MeterProvider
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	streams  metric.Int64UpDownCounter
}

// NewHTTPMetrics builds a meter provider backed by a Prometheus exporter that
// registers on reg.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("deepresearch/http")

	requests, err := meter.Int64Counter(
		"deepresearch.http.requests",
		metric.WithDescription("Total number of API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"deepresearch.http.latency",
		metric.WithDescription("API request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_latency histogram: %w", err)
	}

	streams, err := meter.Int64UpDownCounter(
		"deepresearch.stream.connections",
		metric.WithDescription("Open status stream connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream_connections gauge: %w", err)
	}

	return &HTTPMetrics{provider: provider, requests: requests, latency: latency, streams: streams}, nil
}

// RecordRequest records one served request.
func (m *HTTPMetrics) RecordRequest(ctx context.Context, method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, latency.Seconds(), attrs)
}

// StreamOpened tracks a new SSE or WebSocket status stream.
func (m *HTTPMetrics) StreamOpened(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.streams.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

// StreamClosed releases a status stream.
func (m *HTTPMetrics) StreamClosed(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.streams.Add(ctx, -1, metric.WithAttributes(attribute.String("transport", transport)))
}

// Shutdown flushes the meter provider.
func (m *HTTPMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
