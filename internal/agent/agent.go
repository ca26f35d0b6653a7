// Package agent holds the catalog of generation agents: named model
// personas with a system prompt, a user-prompt template, and provider
// settings. The pipeline resolves every request's agentId against this
// catalog before any quota or provider work happens.
package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrAgentNotFound is returned when an agent id is not in the registry
var ErrAgentNotFound = errors.New("agent not found")

// OutputKind is the response payload kind an agent produces.
type OutputKind string

const (
	OutputText    OutputKind = "text"
	OutputCommand OutputKind = "command"
)

// Definition describes a generation agent.
type Definition struct {
	// ID is the unique agent identifier used in prediction requests.
	ID string `yaml:"id"`

	// Name is a human-readable label.
	Name string `yaml:"name,omitempty"`

	// Provider selects the model provider ("openai", "gemini", ...).
	// Empty means the gateway's default provider.
	Provider string `yaml:"provider,omitempty"`

	// Model is the model identifier passed to the provider.
	Model string `yaml:"model,omitempty"`

	// SystemPrompt is sent as the system message on every generation.
	SystemPrompt string `yaml:"system_prompt,omitempty"`

	// PromptTemplate is the user-prompt template. Placeholders of the form
	// {{name}} are replaced with request variables.
	PromptTemplate string `yaml:"prompt_template"`

	// MemoryEnabled includes prior thread messages in the provider call.
	MemoryEnabled bool `yaml:"memory_enabled,omitempty"`

	// OutputKind is the response kind of messages this agent produces
	// (default: text).
	OutputKind OutputKind `yaml:"output_kind,omitempty"`

	// Temperature for generation (0.0-2.0).
	Temperature float64 `yaml:"temperature,omitempty"`

	// MaxTokens caps generation length (0 = provider default).
	MaxTokens int `yaml:"max_tokens,omitempty"`
}

// Validate checks that the definition is usable.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("agent id is required")
	}
	if d.PromptTemplate == "" {
		return fmt.Errorf("agent %s: prompt_template is required", d.ID)
	}
	return nil
}

// RenderPrompt substitutes {{name}} placeholders in the prompt template with
// request variables. Placeholders without a matching variable are left
// intact so the omission is visible downstream.
func (d *Definition) RenderPrompt(variables map[string]string) string {
	prompt := d.PromptTemplate
	for name, value := range variables {
		prompt = strings.ReplaceAll(prompt, "{{"+name+"}}", value)
	}
	return prompt
}

// ResponseKind returns the output kind, defaulting to text.
func (d *Definition) ResponseKind() OutputKind {
	if d.OutputKind == "" {
		return OutputText
	}
	return d.OutputKind
}

// Registry is a thread-safe catalog of agent definitions.
type Registry struct {
	agents map[string]*Definition
	mu     sync.RWMutex
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*Definition),
	}
}

// Register adds or replaces a definition.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[def.ID] = def
	return nil
}

// Get retrieves a definition by id.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %q: %w", id, ErrAgentNotFound)
	}
	return def, nil
}

// Has checks if an agent is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// List returns all registered agent ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// Load registers all definitions, failing on the first invalid one.
func (r *Registry) Load(defs []*Definition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
