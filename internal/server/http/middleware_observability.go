package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"deepresearch/internal/logging"
	"deepresearch/internal/observability"
)

// ObservabilityMiddleware instruments HTTP requests with tracing, metrics, and optional latency logging.
func ObservabilityMiddleware(obs *observability.Observability, latencyLogger logging.Logger) gin.HandlerFunc {
	hasLatencyLogger := !logging.IsNil(latencyLogger)
	latencyLogger = logging.OrNop(latencyLogger)
	if obs == nil && !hasLatencyLogger {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		if obs != nil && obs.Tracer != nil {
			spanCtx, span := obs.Tracer.StartSpan(ctx, observability.SpanHTTPServer,
				attribute.String("http.route", route),
				attribute.String("http.method", c.Request.Method),
			)
			c.Request = c.Request.WithContext(spanCtx)
			defer func() {
				span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
				var err error
				if last := c.Errors.Last(); last != nil {
					err = last.Err
				}
				observability.EndSpan(span, err)
			}()
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		obs.HTTPMetrics().RecordRequest(ctx, c.Request.Method, route, status, latency)
		if hasLatencyLogger {
			latencyLogger.Info(
				"route=%s method=%s status=%d latency_ms=%.2f",
				route,
				c.Request.Method,
				status,
				float64(latency.Microseconds())/1000.0,
			)
		}
	}
}
