package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"deepresearch/internal/async"
	"deepresearch/internal/config"
	"deepresearch/internal/logging"
	"deepresearch/internal/observability"
	serverApp "deepresearch/internal/server/app"
	serverHTTP "deepresearch/internal/server/http"
	id "deepresearch/internal/utils/id"
)

// Server holds the wired components of one instance.
type Server struct {
	Config    config.Config
	Obs       *observability.Observability
	Container *Container
	Service   *serverApp.ResearchService
	Hub       *serverApp.TaskEventHub
	Router    http.Handler

	cleanupObs func()
}

// BuildServer wires every component from cfg without starting the listener.
func BuildServer(ctx context.Context, cfg config.Config, version string) (*Server, error) {
	logger := logging.NewComponentLogger("Main")
	id.SetStrategy(id.ParseStrategy(cfg.Server.IDStrategy))

	obs, cleanupObs, err := InitObservability(cfg.Observability, version, logger)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	container, err := BuildContainer(ctx, cfg, obs.Pipeline)
	if err != nil {
		cleanupObs()
		return nil, err
	}

	hub := serverApp.NewTaskEventHub()
	orchestrator := serverApp.NewResearchOrchestrator(container.Store, container.Capabilities,
		serverApp.WithModeProfiles(cfg.ModeProfiles()),
		serverApp.WithStepHooks(hub, obs.Pipeline),
		serverApp.WithObservability(obs),
	)
	service := serverApp.NewResearchService(container.Store, orchestrator)

	if failed, err := service.FailOrphanedTasks(ctx); err != nil {
		logger.Warn("Failed to recover orphaned tasks: %v", err)
	} else if failed > 0 {
		logger.Warn("Marked %d interrupted tasks as failed", failed)
	}

	health := serverApp.NewHealthChecker()
	health.RegisterProbe(serverApp.NewStoreProbe(container.Store, cfg.Store.Driver))
	for _, adapter := range container.Backends {
		health.RegisterProbe(serverApp.NewAdapterProbe(adapter.Name, adapter.Backend, adapter.Offline))
	}

	router := serverHTTP.NewRouter(serverHTTP.RouterDeps{
		Service:       service,
		Notifier:      hub,
		HealthChecker: health,
		Obs:           obs,
	}, serverHTTP.RouterConfig{
		Environment:    cfg.Server.Environment,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		StreamInterval: cfg.Server.StreamInterval,
		RateLimit: serverHTTP.RateLimitConfig{
			RequestsPerMinute: cfg.Server.RateLimitPerMinute,
			Burst:             cfg.Server.RateLimitBurst,
		},
		StreamGuard: serverHTTP.StreamGuardConfig{
			MaxConcurrent: cfg.Server.MaxStreams,
			MaxDuration:   cfg.Server.MaxStreamDuration,
		},
	})

	return &Server{
		Config:     cfg,
		Obs:        obs,
		Container:  container,
		Service:    service,
		Hub:        hub,
		Router:     router,
		cleanupObs: cleanupObs,
	}, nil
}

// Shutdown stops live runs, then drains httpServer if given, then flushes
// telemetry and closes the store. Status streams stay open until their task
// is terminal, so runs are cancelled before the listener drains.
func (s *Server) Shutdown(ctx context.Context, httpServer *http.Server) error {
	errs := []error{s.Service.Shutdown(ctx)}
	if httpServer != nil {
		errs = append(errs, httpServer.Shutdown(ctx))
	}
	if s.cleanupObs != nil {
		s.cleanupObs()
	}
	errs = append(errs, s.Container.Shutdown())
	return errors.Join(errs...)
}

// RunServer starts the HTTP API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config, meta config.Metadata, version string) error {
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting deepresearch server %s...", version)
	LogServerConfiguration(logger, cfg, meta)

	srv, err := BuildServer(ctx, cfg, version)
	if err != nil {
		return err
	}

	sweeperCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	serverApp.NewRetentionSweeper(srv.Container.Store, cfg.Store.Retention, cfg.Store.SweepInterval).Start(sweeperCtx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // No timeout for status streams
		IdleTimeout:       120 * time.Second,
	}

	return serveUntilDone(ctx, srv, httpServer, cfg.Server.ShutdownTimeout, logger)
}

func serveUntilDone(ctx context.Context, srv *Server, httpServer *http.Server, shutdownTimeout time.Duration, logger logging.Logger) error {
	errCh := make(chan error, 1)
	async.Go(logger, "server.listen", func() {
		logger.Info("Server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case err := <-errCh:
		_ = srv.Shutdown(context.Background(), nil)
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx, httpServer); err != nil {
		logger.Error("Shutdown incomplete: %v", err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}
