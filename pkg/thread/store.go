package thread

import (
	"context"
	"errors"
)

// ErrStoreClosed is returned when operating on a closed store.
var ErrStoreClosed = errors.New("thread store is closed")

// Store abstracts thread persistence.
// Implementations must be safe for concurrent use, and Append must be an
// atomic array-append: concurrent appends to the same session must all be
// preserved, never lost to a read-modify-write race.
type Store interface {
	// Append adds a message to the session's thread, creating the thread if
	// this is the first message for the session.
	Append(ctx context.Context, sessionID string, msg *Message) error

	// Read returns all messages for a session in append order. An unknown
	// session yields an empty slice, not an error.
	Read(ctx context.Context, sessionID string) ([]*Message, error)

	// Sessions returns the ids of all sessions with at least one message.
	Sessions(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
