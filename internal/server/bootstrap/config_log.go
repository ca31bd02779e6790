package bootstrap

import (
	"strings"

	"deepresearch/internal/config"
	"deepresearch/internal/logging"
)

// LogServerConfiguration prints a safe, redacted snapshot of the server configuration.
func LogServerConfiguration(logger logging.Logger, cfg config.Config, meta config.Metadata) {
	logger = logging.OrNop(logger)

	logger.Info("=== Server Configuration ===")
	if meta.ConfigFile != "" {
		logger.Info("Config file: %s", meta.ConfigFile)
	} else {
		logger.Info("Config file: (none, defaults and environment)")
	}
	if len(meta.EnvKeys) > 0 {
		logger.Info("Environment overrides: %s", strings.Join(meta.EnvKeys, ", "))
	}

	logger.Info("Environment: %s", cfg.Server.Environment)
	logger.Info("Port: %d", cfg.Server.Port)
	logger.Info("Allowed origins: %v", cfg.Server.AllowedOrigins)
	logger.Info("Store: %s", cfg.Store.Driver)
	if cfg.Store.Retention > 0 {
		logger.Info("Retention: %s (sweep every %s)", cfg.Store.Retention, cfg.Store.SweepInterval)
	}
	if cfg.UseOffline() {
		logger.Info("Adapters: offline")
	} else {
		logger.Info("LLM: %s at %s", cfg.LLM.Model, cfg.LLM.BaseURL)
		logger.Info("API Key: %s", secretState(cfg.LLM.APIKey))
		logger.Info("Tavily API Key: %s", secretState(cfg.Search.TavilyAPIKey))
	}
	logger.Info("Quick mode: %d questions x %d results", cfg.Pipeline.QuickMaxQuestions, cfg.Pipeline.QuickResultsPerQuery)
	logger.Info("Heavy mode: %d questions x %d results, concurrency %d",
		cfg.Pipeline.HeavyMaxQuestions, cfg.Pipeline.HeavyResultsPerQuery, cfg.Pipeline.HeavyConcurrency)
	logger.Info("Tracing: enabled=%t exporter=%s", cfg.Observability.Tracing.Enabled, cfg.Observability.Tracing.Exporter)
	logger.Info("===========================")
}

func secretState(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return "(not set)"
	}
	return "(set)"
}
