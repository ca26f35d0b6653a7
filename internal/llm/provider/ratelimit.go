package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a Provider with a client-side token bucket so a
// burst of concurrent generations cannot exceed the upstream's request rate.
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewRateLimitedProvider wraps a provider with a requests-per-second limit
// and burst size.
func NewRateLimitedProvider(provider Provider, rps float64, burst int) *RateLimitedProvider {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name returns the underlying provider name
func (p *RateLimitedProvider) Name() string {
	return p.provider.Name()
}

// Generate waits for a rate limiter token, then delegates
func (p *RateLimitedProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return p.provider.Generate(ctx, req)
}
