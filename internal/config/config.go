package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"deepresearch/internal/server/ports"
)

// EnvPrefix is prepended to every environment override, e.g.
// DEEPRESEARCH_SERVER_PORT or DEEPRESEARCH_LLM_API_KEY.
const EnvPrefix = "DEEPRESEARCH"

const (
	DefaultPort           = 8080
	DefaultStreamInterval = time.Second
	DefaultLLMBaseURL     = "https://api.openai.com/v1"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultTavilyBaseURL  = "https://api.tavily.com"
	DefaultCacheSize      = 256
	DefaultCacheTTL       = 15 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultMaxBodyBytes   = 1 << 20
)

// Config is the effective configuration shared by the server and CLI.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline" yaml:"pipeline"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	Search        SearchConfig        `mapstructure:"search" yaml:"search"`
	Retry         RetryConfig         `mapstructure:"retry" yaml:"retry"`
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	Environment    string        `mapstructure:"environment" yaml:"environment"`
	StreamInterval time.Duration `mapstructure:"stream_interval" yaml:"stream_interval"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	IDStrategy     string        `mapstructure:"id_strategy" yaml:"id_strategy"`
	// Create requests per minute per client IP; 0 disables limiting.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	RateLimitBurst     int `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	// Status stream bounds; 0 disables each.
	MaxStreams        int           `mapstructure:"max_streams" yaml:"max_streams"`
	MaxStreamDuration time.Duration `mapstructure:"max_stream_duration" yaml:"max_stream_duration"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type PipelineConfig struct {
	QuickMaxQuestions    int `mapstructure:"quick_max_questions" yaml:"quick_max_questions"`
	QuickResultsPerQuery int `mapstructure:"quick_results_per_query" yaml:"quick_results_per_query"`
	HeavyMaxQuestions    int `mapstructure:"heavy_max_questions" yaml:"heavy_max_questions"`
	HeavyResultsPerQuery int `mapstructure:"heavy_results_per_query" yaml:"heavy_results_per_query"`
	HeavyConcurrency     int `mapstructure:"heavy_concurrency" yaml:"heavy_concurrency"`
	// Offline swaps every adapter for the deterministic local heuristics.
	Offline bool `mapstructure:"offline" yaml:"offline"`
}

type LLMConfig struct {
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Model           string        `mapstructure:"model" yaml:"model"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxPromptTokens int           `mapstructure:"max_prompt_tokens" yaml:"max_prompt_tokens"`
}

type SearchConfig struct {
	TavilyAPIKey  string        `mapstructure:"tavily_api_key" yaml:"tavily_api_key"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheSize     int           `mapstructure:"cache_size" yaml:"cache_size"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	EnrichPages   bool          `mapstructure:"enrich_pages" yaml:"enrich_pages"`
	EnrichTimeout time.Duration `mapstructure:"enrich_timeout" yaml:"enrich_timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver" yaml:"driver"`
	DSN           string        `mapstructure:"dsn" yaml:"dsn"`
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

type ObservabilityConfig struct {
	LogLevel  string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string        `mapstructure:"log_format" yaml:"log_format"`
	Tracing   TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter    string  `mapstructure:"exporter" yaml:"exporter"` // otlp, zipkin
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
}

// Metadata records where the configuration came from.
type Metadata struct {
	ConfigFile string
	EnvKeys    []string
	LoadedAt   time.Time
}

// EnvLookup resolves environment variables.
type EnvLookup func(string) (string, bool)

type loadOptions struct {
	envLookup  EnvLookup
	configPath string
	overrides  map[string]any
}

// Option customizes Load.
type Option func(*loadOptions)

// WithEnv replaces the process environment lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) {
		o.envLookup = lookup
	}
}

// WithConfigPath loads the given YAML file instead of searching the default locations.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) {
		o.configPath = path
	}
}

// WithOverrides applies dotted-key overrides after file and environment, e.g.
// {"pipeline.offline": true}.
func WithOverrides(overrides map[string]any) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// Load resolves defaults, then the optional config file, then DEEPRESEARCH_*
// environment variables, then explicit overrides.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{envLookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&options)
	}
	meta := Metadata{LoadedAt: time.Now()}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")

	if options.configPath != "" {
		v.SetConfigFile(options.configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, Metadata{}, fmt.Errorf("read config %s: %w", options.configPath, err)
		}
		meta.ConfigFile = v.ConfigFileUsed()
	} else {
		v.SetConfigName("deepresearch")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/deepresearch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, Metadata{}, fmt.Errorf("read config: %w", err)
			}
		} else {
			meta.ConfigFile = v.ConfigFileUsed()
		}
	}

	for _, key := range v.AllKeys() {
		envKey := EnvKey(key)
		if value, ok := options.envLookup(envKey); ok && strings.TrimSpace(value) != "" {
			v.Set(key, value)
			meta.EnvKeys = append(meta.EnvKeys, envKey)
		}
	}
	for key, value := range options.overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, Metadata{}, err
	}
	return cfg, meta, nil
}

// EnvKey maps a dotted config key to its environment variable name.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.stream_interval", DefaultStreamInterval)
	v.SetDefault("server.max_body_bytes", DefaultMaxBodyBytes)
	v.SetDefault("server.id_strategy", "uuidv4")
	v.SetDefault("server.rate_limit_per_minute", 0)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("server.max_streams", 256)
	v.SetDefault("server.max_stream_duration", 30*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	quick := ports.DefaultModeProfiles()[ports.ResearchModeQuick]
	heavy := ports.DefaultModeProfiles()[ports.ResearchModeHeavy]
	v.SetDefault("pipeline.quick_max_questions", quick.MaxQuestions)
	v.SetDefault("pipeline.quick_results_per_query", quick.ResultsPerQuery)
	v.SetDefault("pipeline.heavy_max_questions", heavy.MaxQuestions)
	v.SetDefault("pipeline.heavy_results_per_query", heavy.ResultsPerQuery)
	v.SetDefault("pipeline.heavy_concurrency", heavy.Concurrency)
	v.SetDefault("pipeline.offline", false)

	v.SetDefault("llm.base_url", DefaultLLMBaseURL)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", DefaultLLMModel)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_prompt_tokens", 6000)

	v.SetDefault("search.tavily_api_key", "")
	v.SetDefault("search.base_url", DefaultTavilyBaseURL)
	v.SetDefault("search.timeout", 20*time.Second)
	v.SetDefault("search.cache_size", DefaultCacheSize)
	v.SetDefault("search.cache_ttl", DefaultCacheTTL)
	v.SetDefault("search.enrich_pages", true)
	v.SetDefault("search.enrich_timeout", 8*time.Second)

	v.SetDefault("retry.max_attempts", DefaultMaxAttempts)
	v.SetDefault("retry.interval", time.Duration(0))

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "deepresearch.db")
	v.SetDefault("store.retention", time.Duration(0))
	v.SetDefault("store.sweep_interval", 10*time.Minute)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "text")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.endpoint", "localhost:4318")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.tracing.service_name", "deepresearch")
}

func normalize(cfg *Config) {
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Observability.Tracing.Exporter = strings.ToLower(strings.TrimSpace(cfg.Observability.Tracing.Exporter))
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	cfg.Search.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Search.BaseURL), "/")
	origins := cfg.Server.AllowedOrigins[:0]
	for _, origin := range cfg.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.Server.AllowedOrigins = origins
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.StreamInterval <= 0 {
		problems = append(problems, "server.stream_interval must be positive")
	}
	if c.Server.RateLimitPerMinute < 0 || (c.Server.RateLimitPerMinute > 0 && c.Server.RateLimitBurst <= 0) {
		problems = append(problems, "server.rate_limit_burst must be positive when rate limiting is enabled")
	}
	if c.Pipeline.QuickMaxQuestions <= 0 || c.Pipeline.HeavyMaxQuestions <= 0 {
		problems = append(problems, "pipeline max questions must be positive")
	}
	if c.Pipeline.QuickResultsPerQuery <= 0 || c.Pipeline.HeavyResultsPerQuery <= 0 {
		problems = append(problems, "pipeline results per query must be positive")
	}
	if c.Pipeline.HeavyConcurrency <= 0 {
		problems = append(problems, "pipeline.heavy_concurrency must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.DSN) == "" {
			problems = append(problems, "store.dsn is required for sqlite")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q not supported", c.Store.Driver))
	}
	if c.Store.Retention < 0 {
		problems = append(problems, "store.retention must not be negative")
	}
	if c.Observability.Tracing.Enabled {
		switch c.Observability.Tracing.Exporter {
		case "otlp", "zipkin":
		default:
			problems = append(problems, fmt.Sprintf("observability.tracing.exporter %q not supported", c.Observability.Tracing.Exporter))
		}
	}
	if rate := c.Observability.Tracing.SampleRate; rate < 0 || rate > 1 {
		problems = append(problems, "observability.tracing.sample_rate must be within [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ModeProfiles sizes the pipeline from the configured limits.
func (c Config) ModeProfiles() ports.ModeProfiles {
	return ports.ModeProfiles{
		ports.ResearchModeQuick: {
			MaxQuestions:    c.Pipeline.QuickMaxQuestions,
			ResultsPerQuery: c.Pipeline.QuickResultsPerQuery,
			Concurrency:     1,
		},
		ports.ResearchModeHeavy: {
			MaxQuestions:    c.Pipeline.HeavyMaxQuestions,
			ResultsPerQuery: c.Pipeline.HeavyResultsPerQuery,
			Concurrency:     c.Pipeline.HeavyConcurrency,
		},
	}
}

// UseOffline reports whether the deterministic local adapters should be used.
func (c Config) UseOffline() bool {
	return c.Pipeline.Offline || strings.TrimSpace(c.LLM.APIKey) == ""
}
