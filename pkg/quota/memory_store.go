package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process storage.
type MemoryStore struct {
	mu     sync.Mutex
	quotas map[string]*Quota
	closed bool
}

// NewMemoryStore creates an in-memory quota store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotas: make(map[string]*Quota),
	}
}

// Ensure returns the user's quota, creating it with the default allowance
// on first contact.
func (s *MemoryStore) Ensure(ctx context.Context, userID string) (*Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	q, ok := s.quotas[userID]
	if !ok {
		now := time.Now().UTC()
		q = &Quota{
			UserID:        userID,
			AllowedTokens: DefaultAllowedTokens,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.quotas[userID] = q
	}

	cp := *q
	return &cp, nil
}

// AddUsage adds the usage to the user's counters under the store lock.
func (s *MemoryStore) AddUsage(ctx context.Context, userID string, usage Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	q := s.ensureLocked(userID)
	q.UsedInputTokens += usage.InputTokens
	q.UsedOutputTokens += usage.OutputTokens
	q.UsedTotalTokens += usage.Total()
	q.UpdatedAt = time.Now().UTC()
	return nil
}

// SetUsage overwrites the user's usage counters.
func (s *MemoryStore) SetUsage(ctx context.Context, userID string, usage Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	q := s.ensureLocked(userID)
	q.UsedInputTokens = usage.InputTokens
	q.UsedOutputTokens = usage.OutputTokens
	q.UsedTotalTokens = usage.Total()
	q.UpdatedAt = time.Now().UTC()
	return nil
}

// SetAllowance overwrites the user's allowance.
func (s *MemoryStore) SetAllowance(ctx context.Context, userID string, allowed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	q := s.ensureLocked(userID)
	q.AllowedTokens = allowed
	q.UpdatedAt = time.Now().UTC()
	return nil
}

// Close marks the store closed; further operations return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func (s *MemoryStore) ensureLocked(userID string) *Quota {
	q, ok := s.quotas[userID]
	if !ok {
		now := time.Now().UTC()
		q = &Quota{
			UserID:        userID,
			AllowedTokens: DefaultAllowedTokens,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		s.quotas[userID] = q
	}
	return q
}
