// Package thread provides the append-only per-session message log.
// A thread is created lazily on the first append for an unseen session id;
// there is no explicit creation step.
package thread

import (
	"time"

	"github.com/google/uuid"
)

// AuthorKind discriminates who produced a message.
type AuthorKind string

const (
	AuthorUser  AuthorKind = "user"
	AuthorAgent AuthorKind = "agent"
)

// Author identifies the single producer of a message. Exactly one of a user
// or an agent authors any well-formed message.
type Author struct {
	Kind AuthorKind `json:"kind"`
	ID   string     `json:"id"`
}

// ResponseKind is the payload type of a message body.
type ResponseKind string

const (
	ResponseText    ResponseKind = "text"
	ResponseCommand ResponseKind = "command"
	ResponseError   ResponseKind = "error"
)

// Response is the message payload.
type Response struct {
	Kind ResponseKind `json:"kind"`
	Body string       `json:"body"`
}

// TokenUsage records the token cost of producing an agent message.
type TokenUsage struct {
	InputTokens  int64 `json:"inputTokens"`
	OutputTokens int64 `json:"outputTokens"`
	TotalTokens  int64 `json:"totalTokens"`
}

// Message is a single entry in a thread. Messages are immutable once
// appended; CreatedAt is set at construction time, so within one thread
// timestamps are non-decreasing in append order.
type Message struct {
	ID        string      `json:"id"`
	Author    Author      `json:"author"`
	Response  Response    `json:"response"`
	Model     string      `json:"model,omitempty"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// NewUserMessage creates a text message authored by a user.
func NewUserMessage(userID, body string) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Author:    Author{Kind: AuthorUser, ID: userID},
		Response:  Response{Kind: ResponseText, Body: body},
		CreatedAt: time.Now().UTC(),
	}
}

// NewAgentMessage creates a message authored by an agent, carrying the model
// and token usage of the generation that produced it.
func NewAgentMessage(agentID string, kind ResponseKind, body, model string, tokens *TokenUsage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Author:    Author{Kind: AuthorAgent, ID: agentID},
		Response:  Response{Kind: kind, Body: body},
		Model:     model,
		Tokens:    tokens,
		CreatedAt: time.Now().UTC(),
	}
}
