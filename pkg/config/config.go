// Package config loads gateway configuration from YAML with environment
// fallbacks for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/predictgate-dev/predictgate/internal/agent"
)

// Config represents the application configuration
type Config struct {
	// Storage selects the persistence backend: "memory" or "redis"
	Storage string `yaml:"storage"`

	// Redis connection settings (used when Storage is "redis")
	Redis RedisConfig `yaml:"redis"`

	// Provider selects and configures the model provider
	Provider ProviderConfig `yaml:"provider"`

	// Pipeline tunes request handling
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Bus tunes event fan-out
	Bus BusConfig `yaml:"bus"`

	// Agents is the generation agent catalog
	Agents []*agent.Definition `yaml:"agents"`

	// Observability configures metrics, health, and tracing
	Observability ObservabilityConfig `yaml:"observability"`

	// Reconciler configures the periodic quota reconciliation job
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ProviderConfig holds model provider settings
type ProviderConfig struct {
	// Name selects the provider: "openai", "gemini", or "mock"
	Name string `yaml:"name"`

	// APIKey for the provider (falls back to the provider's env variable)
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint (testing, proxies)
	BaseURL string `yaml:"base_url"`

	// RequestsPerSecond enables client-side rate limiting when > 0
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the rate limiter burst size
	Burst int `yaml:"burst"`
}

// PipelineConfig tunes the prediction pipeline
type PipelineConfig struct {
	MaxConcurrentGenerations int           `yaml:"max_concurrent_generations"`
	GenerationTimeout        time.Duration `yaml:"generation_timeout"`
	Backoff                  BackoffConfig `yaml:"backoff"`
}

// BackoffConfig tunes provider retries
type BackoffConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// BusConfig tunes the event bus
type BusConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// ObservabilityConfig holds metrics and health server settings
type ObservabilityConfig struct {
	MetricsPort int `yaml:"metrics_port"`
}

// ReconcilerConfig holds quota reconciliation settings
type ReconcilerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression (default: hourly)
	Schedule string `yaml:"schedule"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Storage == "" {
		c.Storage = "memory"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Redis.Password == "" {
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}

	if c.Provider.Name == "" {
		c.Provider.Name = "openai"
	}
	if c.Provider.APIKey == "" {
		switch c.Provider.Name {
		case "openai":
			c.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			c.Provider.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}

	if c.Pipeline.MaxConcurrentGenerations == 0 {
		c.Pipeline.MaxConcurrentGenerations = 8
	}
	if c.Pipeline.GenerationTimeout == 0 {
		c.Pipeline.GenerationTimeout = 2 * time.Minute
	}
	if c.Pipeline.Backoff.MaxAttempts == 0 {
		c.Pipeline.Backoff.MaxAttempts = 3
	}
	if c.Pipeline.Backoff.InitialDelay == 0 {
		c.Pipeline.Backoff.InitialDelay = time.Second
	}
	if c.Pipeline.Backoff.MaxDelay == 0 {
		c.Pipeline.Backoff.MaxDelay = 10 * time.Second
	}

	if c.Bus.BufferSize == 0 {
		c.Bus.BufferSize = 64
	}

	if c.Observability.MetricsPort == 0 {
		c.Observability.MetricsPort = 9090
	}

	if c.Reconciler.Schedule == "" {
		c.Reconciler.Schedule = "0 * * * *"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when storage is redis")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}

	switch c.Provider.Name {
	case "openai", "gemini", "mock":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}

	if c.Provider.Name != "mock" && c.Provider.APIKey == "" {
		return fmt.Errorf("provider %s requires an API key", c.Provider.Name)
	}

	for _, def := range c.Agents {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("invalid agent: %w", err)
		}
	}

	return nil
}
