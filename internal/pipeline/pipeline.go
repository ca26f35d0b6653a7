// Package pipeline implements the quota-gated prediction pipeline: validate,
// admit against the user's token budget, generate through the provider with
// retries, persist to the session thread, and publish session-scoped events.
//
// Submission is fire-and-forget: Submit returns a synchronous receipt and the
// result arrives on the event bus. Generation is never cancelled by a
// disconnected subscriber; it completes, persists, and charges quota
// regardless.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/predictgate-dev/predictgate/internal/agent"
	"github.com/predictgate-dev/predictgate/internal/llm/provider"
	"github.com/predictgate-dev/predictgate/pkg/backoff"
	"github.com/predictgate-dev/predictgate/pkg/bus"
	"github.com/predictgate-dev/predictgate/pkg/observability"
	"github.com/predictgate-dev/predictgate/pkg/quota"
	"github.com/predictgate-dev/predictgate/pkg/thread"
)

// Topics for prediction events.
const (
	TopicPredictionAdded       = "prediction-added"
	TopicTextPredictionAdded   = "text-prediction-added"
	TopicVisualPredictionAdded = "visual-prediction-added"
	TopicAudioAdded            = "audio-added"
)

// EventType classifies pipeline events.
type EventType string

const (
	// EventReceived is published when a request is admitted.
	EventReceived EventType = "RECEIVED"
	// EventData is reserved for incremental output.
	EventData EventType = "DATA"
	// EventSuccess carries the completed generation's message.
	EventSuccess EventType = "SUCCESS"
	// EventError carries the error-kind message of a failed generation.
	EventError EventType = "ERROR"
)

// Event is the bus payload for one pipeline state change. Events are
// ephemeral; a subscriber that was not connected at publish time never sees
// them.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	AgentID   string          `json:"agentId"`
	Type      EventType       `json:"type"`
	Message   *thread.Message `json:"message,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Auth is the caller identity attached to a request.
type Auth struct {
	UserID string
}

// Request is a transient prediction request.
type Request struct {
	SessionID string
	AgentID   string
	Variables map[string]string
	Auth      Auth
}

// Receipt is the synchronous response to a submission.
type Receipt struct {
	Accepted bool
	Reason   string
	// EventID correlates the submission with its RECEIVED event.
	EventID string
}

// ErrValidation is returned for requests missing required fields.
var ErrValidation = errors.New("invalid prediction request")

// Config tunes the pipeline.
type Config struct {
	// MaxConcurrentGenerations bounds in-flight provider calls (default 8).
	MaxConcurrentGenerations int

	// GenerationTimeout bounds one generation including retries (default 2m).
	GenerationTimeout time.Duration

	// Backoff configures the provider retry wrapper.
	Backoff backoff.Config
}

func (c Config) normalized() Config {
	if c.MaxConcurrentGenerations <= 0 {
		c.MaxConcurrentGenerations = 8
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = 2 * time.Minute
	}
	return c
}

// Pipeline orchestrates prediction requests.
type Pipeline struct {
	cfg      Config
	bus      *bus.Bus[Event]
	threads  thread.Store
	ledger   *quota.Ledger
	provider provider.Provider
	agents   *agent.Registry

	sem chan struct{}
	wg  sync.WaitGroup
}

// New creates a pipeline.
func New(cfg Config, eventBus *bus.Bus[Event], threads thread.Store, ledger *quota.Ledger, prov provider.Provider, agents *agent.Registry) *Pipeline {
	cfg = cfg.normalized()
	return &Pipeline{
		cfg:      cfg,
		bus:      eventBus,
		threads:  threads,
		ledger:   ledger,
		provider: prov,
		agents:   agents,
		sem:      make(chan struct{}, cfg.MaxConcurrentGenerations),
	}
}

// Submit validates and admits a request. It returns synchronously; on
// acceptance the generation proceeds in the background and its outcome is
// published on the event bus scoped to the request's session.
func (p *Pipeline) Submit(ctx context.Context, req Request) (Receipt, error) {
	if req.SessionID == "" {
		return p.reject(req, "sessionId is required"), fmt.Errorf("sessionId is required: %w", ErrValidation)
	}
	if req.AgentID == "" {
		return p.reject(req, "agentId is required"), fmt.Errorf("agentId is required: %w", ErrValidation)
	}
	if req.Auth.UserID == "" {
		return p.reject(req, "caller identity is required"), fmt.Errorf("caller identity is required: %w", ErrValidation)
	}

	def, err := p.agents.Get(req.AgentID)
	if err != nil {
		return p.reject(req, fmt.Sprintf("unknown agent %q", req.AgentID)),
			fmt.Errorf("unknown agent %q: %w", req.AgentID, ErrValidation)
	}

	if err := p.ledger.CheckAndReserve(ctx, req.Auth.UserID); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			observability.RecordQuotaRejection()
			observability.RecordPrediction(req.AgentID, "rejected_quota")
			return Receipt{Accepted: false, Reason: "token quota exceeded"}, err
		}
		return Receipt{Accepted: false, Reason: "quota check failed"}, err
	}

	eventID := uuid.New().String()

	p.wg.Add(1)
	go p.generate(eventID, req, def)

	return Receipt{Accepted: true, EventID: eventID}, nil
}

func (p *Pipeline) reject(req Request, reason string) Receipt {
	observability.RecordPrediction(req.AgentID, "rejected_validation")
	return Receipt{Accepted: false, Reason: reason}
}

// generate runs one admitted generation to completion. It is detached from
// the submitter's context: the only deadline is the pipeline's own.
func (p *Pipeline) generate(eventID string, req Request, def *agent.Definition) {
	defer p.wg.Done()

	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	observability.GenerationStarted()
	defer observability.GenerationFinished()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.GenerationTimeout)
	defer cancel()

	p.publish(Event{
		ID:        eventID,
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
		Type:      EventReceived,
		CreatedAt: time.Now().UTC(),
	})

	userPrompt := def.RenderPrompt(req.Variables)

	userMsg := thread.NewUserMessage(req.Auth.UserID, userPrompt)
	if err := p.threads.Append(ctx, req.SessionID, userMsg); err != nil {
		log.Printf("pipeline: append user message for session %s: %v", req.SessionID, err)
	}

	messages, err := p.buildMessages(ctx, req.SessionID, def, userPrompt)
	if err != nil {
		log.Printf("pipeline: load history for session %s: %v", req.SessionID, err)
	}

	resp, err := backoff.Execute(ctx, p.cfg.Backoff, func(ctx context.Context) (*provider.GenerateResponse, error) {
		return p.provider.Generate(ctx, provider.GenerateRequest{
			Messages:    messages,
			Model:       def.Model,
			Temperature: def.Temperature,
			MaxTokens:   def.MaxTokens,
		})
	})
	if err != nil {
		p.completeFailure(ctx, eventID, req, def, err)
		return
	}

	p.completeSuccess(ctx, eventID, req, def, resp)
	observability.RecordPredictionDuration(req.AgentID, time.Since(start))
}

// buildMessages assembles the provider conversation: system prompt, prior
// thread history when the agent has memory enabled, then the rendered user
// prompt. The user message just appended for this request is excluded from
// the history to avoid sending it twice.
func (p *Pipeline) buildMessages(ctx context.Context, sessionID string, def *agent.Definition, userPrompt string) ([]provider.Message, error) {
	var messages []provider.Message

	if def.SystemPrompt != "" {
		messages = append(messages, provider.Message{Role: "system", Content: def.SystemPrompt})
	}

	var histErr error
	if def.MemoryEnabled {
		history, err := p.threads.Read(ctx, sessionID)
		if err != nil {
			histErr = err
		} else {
			if n := len(history); n > 0 {
				history = history[:n-1]
			}
			for _, msg := range history {
				role := "user"
				if msg.Author.Kind == thread.AuthorAgent {
					role = "assistant"
				}
				messages = append(messages, provider.Message{Role: role, Content: msg.Response.Body})
			}
		}
	}

	messages = append(messages, provider.Message{Role: "user", Content: userPrompt})
	return messages, histErr
}

func (p *Pipeline) completeSuccess(ctx context.Context, eventID string, req Request, def *agent.Definition, resp *provider.GenerateResponse) {
	tokens := &thread.TokenUsage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}

	msg := thread.NewAgentMessage(req.AgentID, responseKind(def), resp.Content, def.Model, tokens)

	if err := p.threads.Append(ctx, req.SessionID, msg); err != nil {
		log.Printf("pipeline: append result for session %s: %v", req.SessionID, err)
	}

	if err := p.ledger.CommitUsage(ctx, req.Auth.UserID, quota.Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}); err != nil {
		log.Printf("pipeline: commit usage for user %s: %v", req.Auth.UserID, err)
	}

	p.publish(Event{
		ID:        eventID,
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
		Type:      EventSuccess,
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	})

	observability.RecordPrediction(req.AgentID, "completed")
}

// completeFailure records a failed generation as an error-kind message so the
// conversation log reflects it, and publishes an ERROR event so the
// subscriber is not left waiting. No quota is charged.
func (p *Pipeline) completeFailure(ctx context.Context, eventID string, req Request, def *agent.Definition, genErr error) {
	log.Printf("pipeline: generation failed for session %s agent %s: %v", req.SessionID, req.AgentID, genErr)

	body := fmt.Sprintf("Generation failed: %v", genErr)
	msg := thread.NewAgentMessage(req.AgentID, thread.ResponseError, body, def.Model, nil)

	if err := p.threads.Append(ctx, req.SessionID, msg); err != nil {
		log.Printf("pipeline: append error message for session %s: %v", req.SessionID, err)
	}

	p.publish(Event{
		ID:        eventID,
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
		Type:      EventError,
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	})

	observability.RecordPrediction(req.AgentID, "failed")
}

// publish fans an event out on the generic topic and, for terminal events,
// on the output-kind topic as well.
func (p *Pipeline) publish(event Event) {
	p.bus.Publish(TopicPredictionAdded, event)

	if event.Type == EventSuccess || event.Type == EventError {
		if topic := kindTopic(event.Message); topic != "" {
			p.bus.Publish(topic, event)
		}
	}
}

func kindTopic(msg *thread.Message) string {
	if msg == nil {
		return ""
	}
	switch msg.Response.Kind {
	case thread.ResponseText, thread.ResponseError:
		return TopicTextPredictionAdded
	case thread.ResponseCommand:
		return TopicVisualPredictionAdded
	default:
		return ""
	}
}

func responseKind(def *agent.Definition) thread.ResponseKind {
	if def.ResponseKind() == agent.OutputCommand {
		return thread.ResponseCommand
	}
	return thread.ResponseText
}

// Subscribe returns a subscription delivering this session's events from the
// generic prediction topic. The subscription closes when ctx is cancelled.
func (p *Pipeline) Subscribe(ctx context.Context, sessionID string) *bus.Subscription[Event] {
	return p.bus.Subscribe(ctx, TopicPredictionAdded, func(e Event) bool {
		return e.SessionID == sessionID
	})
}

// Wait blocks until all in-flight generations have completed.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
