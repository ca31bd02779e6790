package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"deepresearch/internal/config"
	"deepresearch/internal/logging"
	"deepresearch/internal/observability"
	"deepresearch/internal/research/drafter"
	"deepresearch/internal/research/extractor"
	"deepresearch/internal/research/llm"
	"deepresearch/internal/research/offline"
	"deepresearch/internal/research/planner"
	"deepresearch/internal/research/retry"
	"deepresearch/internal/research/search"
	serverApp "deepresearch/internal/server/app"
	"deepresearch/internal/server/ports"
)

const enrichPagesPerSearch = 4

// AdapterBackend records which implementation serves one adapter family.
type AdapterBackend struct {
	Name    string
	Backend string
	Offline bool
}

// Container holds the store and the adapters the pipeline runs on.
type Container struct {
	Store        ports.TaskStore
	Capabilities ports.Capabilities
	Backends     []AdapterBackend
	closers      []func() error
}

// Shutdown releases resources opened by BuildContainer.
func (c *Container) Shutdown() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// BuildContainer opens the task store and wires the adapters from cfg.
func BuildContainer(ctx context.Context, cfg config.Config, metrics *observability.PipelineMetrics) (*Container, error) {
	container := &Container{}
	switch cfg.Store.Driver {
	case "sqlite":
		store, err := serverApp.OpenSQLiteTaskStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open task store: %w", err)
		}
		container.Store = store
		container.closers = append(container.closers, store.Close)
	default:
		container.Store = serverApp.NewInMemoryTaskStore()
	}
	container.Capabilities, container.Backends = BuildCapabilities(cfg, metrics)
	return container, nil
}

// BuildCapabilities picks remote or offline adapters and wraps them with
// retries. Missing credentials fall back to the offline adapter per family.
func BuildCapabilities(cfg config.Config, metrics *observability.PipelineMetrics) (ports.Capabilities, []AdapterBackend) {
	logger := logging.NewComponentLogger("Bootstrap")
	caps := offline.Capabilities(cfg.Pipeline.HeavyResultsPerQuery)
	backends := []AdapterBackend{
		{Name: "llm", Backend: "offline", Offline: true},
		{Name: "search", Backend: "offline", Offline: true},
	}

	if !cfg.UseOffline() {
		client, err := llm.NewOpenAIClient(llm.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Timeout:     cfg.LLM.Timeout,
			Temperature: cfg.LLM.Temperature,
		})
		if err != nil {
			logger.Warn("LLM adapters disabled, using offline heuristics: %v", err)
		} else {
			prompt := llm.PromptOptions{Temperature: cfg.LLM.Temperature, MaxPromptTokens: cfg.LLM.MaxPromptTokens}
			caps.Planner = planner.New(client, prompt)
			caps.Extractor = extractor.New(client, prompt)
			caps.Drafter = drafter.New(client, prompt)
			backends[0] = AdapterBackend{Name: "llm", Backend: "openai:" + client.Model()}
		}

		tavily, err := search.NewTavilySearcher(search.TavilyConfig{
			APIKey:     cfg.Search.TavilyAPIKey,
			BaseURL:    cfg.Search.BaseURL,
			MaxResults: cfg.Pipeline.HeavyResultsPerQuery,
			Timeout:    cfg.Search.Timeout,
		})
		if err != nil {
			logger.Warn("Web search disabled, using offline results: %v", err)
		} else {
			var searcher ports.Searcher = tavily
			if cfg.Search.EnrichPages {
				searcher = search.NewEnrichingSearcher(searcher, enrichPagesPerSearch, cfg.Search.EnrichTimeout)
			}
			if cfg.Search.CacheSize > 0 {
				searcher = search.NewCachingSearcher(searcher, cfg.Search.CacheSize, cfg.Search.CacheTTL)
			}
			caps.Searcher = searcher
			backends[1] = AdapterBackend{Name: "search", Backend: "tavily"}
		}
	}

	return retry.Wrap(caps, retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Interval:    cfg.Retry.Interval,
		OnRetry: func(adapter string, err error) {
			metrics.IncAdapterRetry(adapter)
			logger.Warn("Retrying %s after transient error: %v", adapter, err)
		},
	}), backends
}
