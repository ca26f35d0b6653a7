package provider

import (
	"fmt"
	"sync"
)

// FactoryFunc creates a provider from configuration
type FactoryFunc func(config map[string]any) (Provider, error)

// Registry manages LLM provider factories
type Registry struct {
	factories map[string]FactoryFunc
	mu        sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FactoryFunc),
	}
}

// RegisterFactory registers a provider factory
func (r *Registry) RegisterFactory(name string, factory FactoryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New creates a provider by name
func (r *Registry) New(name string, config map[string]any) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider '%s' not found", name)
	}

	return factory(config)
}

// Has checks if a provider factory is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered provider names
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// Global registry
var globalRegistry = NewRegistry()

// RegisterFactory registers a provider factory globally
func RegisterFactory(name string, factory FactoryFunc) {
	globalRegistry.RegisterFactory(name, factory)
}

// New creates a provider from the global registry
func New(name string, config map[string]any) (Provider, error) {
	return globalRegistry.New(name, config)
}

// Has checks if a provider factory exists in the global registry
func Has(name string) bool {
	return globalRegistry.Has(name)
}

// List returns all registered provider names from the global registry
func List() []string {
	return globalRegistry.List()
}
