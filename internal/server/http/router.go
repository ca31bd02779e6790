package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"deepresearch/internal/logging"
)

// NewRouter creates a new HTTP router with all endpoints
func NewRouter(deps RouterDeps, cfg RouterConfig) *gin.Engine {
	if isProduction(cfg.Environment) {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.NewComponentLogger("Router")
	httpMetrics := deps.Obs.HTTPMetrics()
	apiHandler := NewAPIHandler(deps.Service, cfg.MaxBodyBytes)
	sseHandler := NewSSEHandler(deps.Service, deps.Notifier, cfg.StreamInterval, httpMetrics)
	wsHandler := NewWebSocketHandler(deps.Service, deps.Notifier, cfg.StreamInterval, httpMetrics,
		originChecker(cfg.Environment, cfg.AllowedOrigins))

	engine := gin.New()
	engine.Use(
		RecoveryMiddleware(logger),
		CORSMiddleware(cfg.Environment, cfg.AllowedOrigins),
		LogIDMiddleware(),
		ObservabilityMiddleware(deps.Obs, nil),
		LoggingMiddleware(logger),
	)

	engine.GET("/health", HandleHealth(deps.HealthChecker))
	engine.GET("/metrics", gin.WrapH(deps.Obs.MetricsHandler()))

	research := engine.Group("/api/research")
	research.POST("", RateLimitMiddleware(cfg.RateLimit, logger), apiHandler.HandleCreateResearch)
	research.GET("", apiHandler.HandleListResearch)
	research.GET("/:id", apiHandler.HandleGetResearch)
	research.DELETE("/:id", apiHandler.HandleDeleteResearch)
	research.POST("/:id/cancel", apiHandler.HandleCancelResearch)
	streams := research.Group("", StreamGuardMiddleware(cfg.StreamGuard, logger))
	streams.GET("/:id/events", sseHandler.HandleStatusStream)
	streams.GET("/:id/ws", wsHandler.HandleStatusSocket)

	engine.NoRoute(func(c *gin.Context) {
		writeJSONError(c, logger, http.StatusNotFound, "route not found", nil)
	})

	logger.Info("router ready: environment=%s origins=%v", cfg.Environment, cfg.AllowedOrigins)
	return engine
}
