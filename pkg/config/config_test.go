package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/predictgate-dev/predictgate/internal/agent"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
storage: redis
redis:
  addr: localhost:6379
  db: 2
provider:
  name: mock
pipeline:
  max_concurrent_generations: 4
  generation_timeout: 30s
  backoff:
    max_attempts: 5
    initial_delay: 500ms
    max_delay: 8s
bus:
  buffer_size: 128
agents:
  - id: oracle
    model: gpt-4o-mini
    system_prompt: "You are an oracle."
    prompt_template: "Answer: {{question}}"
    memory_enabled: true
observability:
  metrics_port: 9191
reconciler:
  enabled: true
  schedule: "*/5 * * * *"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Storage != "redis" {
		t.Errorf("Storage = %s, want redis", cfg.Storage)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Pipeline.MaxConcurrentGenerations != 4 {
		t.Errorf("MaxConcurrentGenerations = %d, want 4", cfg.Pipeline.MaxConcurrentGenerations)
	}
	if cfg.Pipeline.GenerationTimeout != 30*time.Second {
		t.Errorf("GenerationTimeout = %v, want 30s", cfg.Pipeline.GenerationTimeout)
	}
	if cfg.Pipeline.Backoff.MaxAttempts != 5 {
		t.Errorf("Backoff.MaxAttempts = %d, want 5", cfg.Pipeline.Backoff.MaxAttempts)
	}
	if cfg.Pipeline.Backoff.InitialDelay != 500*time.Millisecond {
		t.Errorf("Backoff.InitialDelay = %v, want 500ms", cfg.Pipeline.Backoff.InitialDelay)
	}
	if cfg.Bus.BufferSize != 128 {
		t.Errorf("Bus.BufferSize = %d, want 128", cfg.Bus.BufferSize)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].ID != "oracle" || !cfg.Agents[0].MemoryEnabled {
		t.Errorf("unexpected agents: %+v", cfg.Agents)
	}
	if cfg.Observability.MetricsPort != 9191 {
		t.Errorf("MetricsPort = %d, want 9191", cfg.Observability.MetricsPort)
	}
	if !cfg.Reconciler.Enabled || cfg.Reconciler.Schedule != "*/5 * * * *" {
		t.Errorf("unexpected reconciler config: %+v", cfg.Reconciler)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `provider: {name: mock}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Storage != "memory" {
		t.Errorf("Storage = %s, want memory", cfg.Storage)
	}
	if cfg.Pipeline.MaxConcurrentGenerations != 8 {
		t.Errorf("MaxConcurrentGenerations = %d, want 8", cfg.Pipeline.MaxConcurrentGenerations)
	}
	if cfg.Pipeline.Backoff.MaxAttempts != 3 {
		t.Errorf("Backoff.MaxAttempts = %d, want 3", cfg.Pipeline.Backoff.MaxAttempts)
	}
	if cfg.Pipeline.Backoff.InitialDelay != time.Second {
		t.Errorf("Backoff.InitialDelay = %v, want 1s", cfg.Pipeline.Backoff.InitialDelay)
	}
	if cfg.Pipeline.Backoff.MaxDelay != 10*time.Second {
		t.Errorf("Backoff.MaxDelay = %v, want 10s", cfg.Pipeline.Backoff.MaxDelay)
	}
	if cfg.Bus.BufferSize != 64 {
		t.Errorf("Bus.BufferSize = %d, want 64", cfg.Bus.BufferSize)
	}
	if cfg.Observability.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d, want 9090", cfg.Observability.MetricsPort)
	}
	if cfg.Reconciler.Schedule != "0 * * * *" {
		t.Errorf("Reconciler.Schedule = %q, want hourly", cfg.Reconciler.Schedule)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage = "postgres" }},
		{"redis without addr", func(c *Config) { c.Storage = "redis"; c.Redis.Addr = "" }},
		{"unknown provider", func(c *Config) { c.Provider.Name = "acme" }},
		{"missing api key", func(c *Config) { c.Provider.Name = "openai"; c.Provider.APIKey = "" }},
		{"invalid agent", func(c *Config) { c.Agents = append(c.Agents, &agent.Definition{}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Provider.Name = "mock"
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
