package bootstrap

import (
	"context"
	"time"

	"deepresearch/internal/config"
	"deepresearch/internal/logging"
	"deepresearch/internal/observability"
)

// InitObservability initializes metrics and tracing and returns a cleanup hook.
// Exporter setup errors abort startup.
func InitObservability(cfg config.ObservabilityConfig, version string, logger logging.Logger) (*observability.Observability, func(), error) {
	obs, err := observability.New(cfg, version)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(ctx); err != nil {
			logging.OrNop(logger).Warn("Observability shutdown error: %v", err)
		}
	}

	return obs, cleanup, nil
}
