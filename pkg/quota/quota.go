// Package quota tracks per-user token budgets and gates admission of new
// generation work. Admission is optimistic: a request is admitted whenever
// recorded usage is still below the allowance, and the actual cost of an
// admitted generation is always committed afterwards, so recorded usage may
// overshoot the allowance by at most one generation per in-flight request.
package quota

import (
	"errors"
	"time"
)

// DefaultAllowedTokens is the allowance granted to a user on first contact.
const DefaultAllowedTokens int64 = 10_000_000

// ErrQuotaExceeded is returned by admission when a user's recorded usage has
// reached their allowance.
var ErrQuotaExceeded = errors.New("token quota exceeded")

// Quota is a user's token budget and recorded usage.
// UsedTotalTokens always equals UsedInputTokens + UsedOutputTokens.
type Quota struct {
	UserID           string    `json:"userId"`
	AllowedTokens    int64     `json:"allowedTokens"`
	UsedInputTokens  int64     `json:"usedInputTokens"`
	UsedOutputTokens int64     `json:"usedOutputTokens"`
	UsedTotalTokens  int64     `json:"usedTotalTokens"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Remaining returns the tokens left before the allowance is reached.
// It can be negative after an overshooting commit.
func (q *Quota) Remaining() int64 {
	return q.AllowedTokens - q.UsedTotalTokens
}

// Exhausted reports whether recorded usage has reached the allowance.
func (q *Quota) Exhausted() bool {
	return q.UsedTotalTokens >= q.AllowedTokens
}

// Usage is the token cost of a single generation.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns the combined token count.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
