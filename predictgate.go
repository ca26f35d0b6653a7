// Package predictgate wires the prediction gateway: a quota-gated pipeline
// that submits generation requests to an upstream model provider and fans
// session-scoped results out over a filtered event bus, persisting every
// exchange to an append-only conversation thread store.
package predictgate

import (
	"context"
	"fmt"
	"log"

	"github.com/predictgate-dev/predictgate/internal/agent"
	"github.com/predictgate-dev/predictgate/internal/llm/provider"
	"github.com/predictgate-dev/predictgate/internal/pipeline"
	"github.com/predictgate-dev/predictgate/internal/reconcile"
	"github.com/predictgate-dev/predictgate/pkg/backoff"
	"github.com/predictgate-dev/predictgate/pkg/bus"
	"github.com/predictgate-dev/predictgate/pkg/config"
	"github.com/predictgate-dev/predictgate/pkg/observability"
	"github.com/predictgate-dev/predictgate/pkg/quota"
	"github.com/predictgate-dev/predictgate/pkg/thread"
)

// Gateway is the assembled prediction gateway.
type Gateway struct {
	cfg *config.Config

	bus      *bus.Bus[pipeline.Event]
	threads  thread.Store
	quotas   quota.Store
	ledger   *quota.Ledger
	provider provider.Provider
	agents   *agent.Registry
	pipeline *pipeline.Pipeline

	reconciler *reconcile.Reconciler
	health     *observability.HealthChecker
}

// New assembles a gateway from configuration.
func New(cfg *config.Config) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	observability.InitMetrics()

	threads, quotas, err := buildStores(cfg)
	if err != nil {
		return nil, err
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	agents := agent.NewRegistry()
	if err := agents.Load(cfg.Agents); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	eventBus := bus.New(bus.WithBufferSize[pipeline.Event](cfg.Bus.BufferSize))
	ledger := quota.NewLedger(quotas)

	pl := pipeline.New(pipeline.Config{
		MaxConcurrentGenerations: cfg.Pipeline.MaxConcurrentGenerations,
		GenerationTimeout:        cfg.Pipeline.GenerationTimeout,
		Backoff: backoff.Config{
			MaxAttempts:  cfg.Pipeline.Backoff.MaxAttempts,
			InitialDelay: cfg.Pipeline.Backoff.InitialDelay,
			MaxDelay:     cfg.Pipeline.Backoff.MaxDelay,
		},
	}, eventBus, threads, ledger, prov, agents)

	g := &Gateway{
		cfg:      cfg,
		bus:      eventBus,
		threads:  threads,
		quotas:   quotas,
		ledger:   ledger,
		provider: prov,
		agents:   agents,
		pipeline: pl,
		health:   observability.NewHealthChecker(),
	}

	g.health.RegisterCheck(observability.PingCheck())
	if pinger, ok := threads.(interface {
		Ping(context.Context) error
	}); ok {
		g.health.RegisterCheck(observability.StoreCheck(pinger.Ping))
	}

	if cfg.Reconciler.Enabled {
		g.reconciler = reconcile.New(threads, quotas, cfg.Reconciler.Schedule)
	}

	return g, nil
}

// SubmitPrediction validates and admits a generation request. The result is
// delivered asynchronously via SubscribeToPredictions.
func (g *Gateway) SubmitPrediction(ctx context.Context, req pipeline.Request) (pipeline.Receipt, error) {
	return g.pipeline.Submit(ctx, req)
}

// SubscribeToPredictions returns a subscription delivering the session's
// prediction events until ctx is cancelled.
func (g *Gateway) SubscribeToPredictions(ctx context.Context, sessionID string) *bus.Subscription[pipeline.Event] {
	return g.pipeline.Subscribe(ctx, sessionID)
}

// GetUserQuota returns the user's quota, creating a default record on first
// contact.
func (g *Gateway) GetUserQuota(ctx context.Context, userID string) (*quota.Quota, error) {
	return g.ledger.GetQuota(ctx, userID)
}

// SetUserAllowance overwrites a user's token allowance.
func (g *Gateway) SetUserAllowance(ctx context.Context, userID string, allowed int64) error {
	return g.ledger.SetAllowance(ctx, userID, allowed)
}

// ReadThread returns the session's conversation log.
func (g *Gateway) ReadThread(ctx context.Context, sessionID string) ([]*thread.Message, error) {
	return g.threads.Read(ctx, sessionID)
}

// HealthChecker returns the gateway's health checker for the metrics server.
func (g *Gateway) HealthChecker() *observability.HealthChecker {
	return g.health
}

// StartReconciler begins periodic quota reconciliation if enabled.
func (g *Gateway) StartReconciler() error {
	if g.reconciler == nil {
		return nil
	}
	return g.reconciler.Start()
}

// ReconcileNow runs a single reconciliation pass immediately.
func (g *Gateway) ReconcileNow(ctx context.Context) error {
	if g.reconciler == nil {
		return reconcile.New(g.threads, g.quotas, "").ReconcileAll(ctx)
	}
	return g.reconciler.ReconcileAll(ctx)
}

// Close drains in-flight generations and releases resources.
func (g *Gateway) Close() error {
	if g.reconciler != nil {
		g.reconciler.Stop()
	}

	g.pipeline.Wait()
	g.bus.Close()

	var firstErr error
	if err := g.threads.Close(); err != nil {
		firstErr = err
	}
	if err := g.quotas.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func buildStores(cfg *config.Config) (thread.Store, quota.Store, error) {
	switch cfg.Storage {
	case "redis":
		threads, err := thread.NewRedisStore(thread.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("thread store: %w", err)
		}

		quotas, err := quota.NewRedisStore(quota.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			_ = threads.Close()
			return nil, nil, fmt.Errorf("quota store: %w", err)
		}

		return threads, quotas, nil

	default:
		log.Printf("using in-memory storage; threads and quotas do not survive restarts")
		return thread.NewMemoryStore(), quota.NewMemoryStore(), nil
	}
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	var (
		prov provider.Provider
		err  error
	)

	if cfg.Provider.Name == "mock" {
		prov = provider.NewMockProvider("mock")
	} else {
		prov, err = provider.New(cfg.Provider.Name, map[string]any{
			"api_key":  cfg.Provider.APIKey,
			"base_url": cfg.Provider.BaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create provider: %w", err)
		}
	}

	if cfg.Provider.RequestsPerSecond > 0 {
		prov = provider.NewRateLimitedProvider(prov, cfg.Provider.RequestsPerSecond, cfg.Provider.Burst)
	}

	return provider.WrapProvider(prov), nil
}
