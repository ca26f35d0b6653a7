package provider

import (
	"context"
	"sync"
)

type mockStep struct {
	resp *GenerateResponse
	err  error
}

// MockProvider is a scripted provider for testing. Queued responses and
// errors are consumed in order; once the script is exhausted, a canned
// success response is returned.
type MockProvider struct {
	name string

	mu    sync.Mutex
	steps []mockStep
	index int

	// Calls records every request received
	Calls []GenerateRequest
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

// QueueResponse appends a successful response to the script
func (p *MockProvider) QueueResponse(resp *GenerateResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, mockStep{resp: resp})
}

// QueueError appends a failure to the script
func (p *MockProvider) QueueError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, mockStep{err: err})
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return p.name
}

// Generate returns the next scripted response or error
func (p *MockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, req)

	if p.index >= len(p.steps) {
		return &GenerateResponse{Content: "mock response", FinishReason: "stop"}, nil
	}

	step := p.steps[p.index]
	p.index++

	if step.err != nil {
		return nil, step.err
	}
	return step.resp, nil
}

// CallCount returns the number of Generate calls received
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
