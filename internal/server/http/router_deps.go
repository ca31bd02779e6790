package http

import (
	"time"

	"deepresearch/internal/observability"
	"deepresearch/internal/server/ports"
)

// RouterDeps holds all service dependencies needed to construct the HTTP router.
type RouterDeps struct {
	Service       ports.ResearchService
	Notifier      TaskNotifier
	HealthChecker ports.HealthChecker
	Obs           *observability.Observability
}

// RouterConfig holds configuration values for the HTTP router.
type RouterConfig struct {
	Environment    string
	AllowedOrigins []string
	MaxBodyBytes   int64
	StreamInterval time.Duration
	RateLimit      RateLimitConfig
	StreamGuard    StreamGuardConfig
}
