package thread

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with in-process storage.
// It is the default for single-node deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string][]*Message
	closed  bool
}

// NewMemoryStore creates an in-memory thread store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string][]*Message),
	}
}

// Append adds a message to the session's thread, creating the thread on
// first use. The append happens under the store lock, so concurrent
// appends are all preserved.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.threads[sessionID] = append(s.threads[sessionID], msg)
	return nil
}

// Read returns a copy of the session's messages in append order.
func (s *MemoryStore) Read(ctx context.Context, sessionID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	msgs := s.threads[sessionID]
	out := make([]*Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Sessions returns the ids of all sessions with at least one message.
func (s *MemoryStore) Sessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close marks the store closed; further operations return ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
