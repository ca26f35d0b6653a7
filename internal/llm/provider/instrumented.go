package provider

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/predictgate-dev/predictgate/internal/observability"
	pkgobs "github.com/predictgate-dev/predictgate/pkg/observability"
)

// InstrumentedProvider wraps a Provider with tracing and metrics.
// Every call gets an OpenTelemetry span carrying model, duration, and token
// attributes, plus Prometheus counters for call outcome and token usage.
type InstrumentedProvider struct {
	provider Provider
	enabled  bool
}

// NewInstrumentedProvider wraps a provider with automatic observability
func NewInstrumentedProvider(provider Provider, enabled bool) *InstrumentedProvider {
	return &InstrumentedProvider{
		provider: provider,
		enabled:  enabled,
	}
}

// Name returns the underlying provider name
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// Generate delegates to the wrapped provider with instrumentation
func (p *InstrumentedProvider) Generate(ctx context.Context, request GenerateRequest) (*GenerateResponse, error) {
	if !p.enabled {
		return p.provider.Generate(ctx, request)
	}

	ctx, span := observability.StartSpanWithOtel(ctx, fmt.Sprintf("llm.%s.generate", p.provider.Name()),
		trace.WithAttributes(
			attribute.String("llm.provider", p.provider.Name()),
			attribute.String("llm.model", request.Model),
			attribute.Float64("llm.temperature", request.Temperature),
			attribute.Int("llm.max_tokens", request.MaxTokens),
			attribute.Int("llm.messages_count", len(request.Messages)),
		),
	)
	defer span.End()

	startTime := time.Now()
	response, err := p.provider.Generate(ctx, request)
	duration := time.Since(startTime)

	span.SetAttributes(
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
		attribute.Bool("llm.success", err == nil),
	)

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("llm.error", err.Error()))
		pkgobs.RecordProviderCall(p.provider.Name(), "error", duration)
		return nil, err
	}

	pkgobs.RecordProviderCall(p.provider.Name(), "success", duration)

	if response != nil {
		span.SetAttributes(
			attribute.Int64("llm.usage.input_tokens", response.Usage.InputTokens),
			attribute.Int64("llm.usage.output_tokens", response.Usage.OutputTokens),
			attribute.Int64("llm.usage.total_tokens", response.Usage.TotalTokens),
			attribute.String("llm.finish_reason", response.FinishReason),
		)
		pkgobs.RecordProviderTokens(p.provider.Name(), response.Usage.InputTokens, response.Usage.OutputTokens)
	}

	return response, nil
}

// WrapProvider wraps a provider with instrumentation if not already wrapped
func WrapProvider(provider Provider) Provider {
	if _, ok := provider.(*InstrumentedProvider); ok {
		return provider
	}
	return NewInstrumentedProvider(provider, true)
}
