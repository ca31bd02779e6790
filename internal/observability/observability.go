package observability

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deepresearch/internal/config"
)

// Observability bundles the metrics registry, collectors and tracer shared by
// the server components.
type Observability struct {
	Registry *prometheus.Registry
	Pipeline *PipelineMetrics
	HTTP     *HTTPMetrics
	Tracer   *TracerProvider
}

// New wires metrics on a dedicated registry and tracing from cfg.
func New(cfg config.ObservabilityConfig, version string) (*Observability, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpMetrics, err := NewHTTPMetrics(registry)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracerProvider(cfg.Tracing, version)
	if err != nil {
		_ = httpMetrics.Shutdown(context.Background())
		return nil, err
	}

	return &Observability{
		Registry: registry,
		Pipeline: MustNewPipelineMetrics(registry),
		HTTP:     httpMetrics,
		Tracer:   tracer,
	}, nil
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func (o *Observability) MetricsHandler() http.Handler {
	if o == nil || o.Registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(o.Registry, promhttp.HandlerOpts{Registry: o.Registry})
}

// HTTPMetrics returns the HTTP collectors, or nil when o is nil.
func (o *Observability) HTTPMetrics() *HTTPMetrics {
	if o == nil {
		return nil
	}
	return o.HTTP
}

// Shutdown flushes exporters.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	return errors.Join(o.HTTP.Shutdown(ctx), o.Tracer.Shutdown(ctx))
}
