package quota

import (
	"context"
	"errors"
)

// ErrStoreClosed is returned when operating on a closed store.
var ErrStoreClosed = errors.New("quota store is closed")

// Store abstracts quota persistence.
// Implementations must be safe for concurrent use. AddUsage must apply its
// three counter increments atomically so that the used-total invariant holds
// under concurrent commits.
type Store interface {
	// Ensure returns the user's quota, creating it with DefaultAllowedTokens
	// and zero usage if the user has never been seen. Concurrent Ensure calls
	// for the same new user must converge on a single record.
	Ensure(ctx context.Context, userID string) (*Quota, error)

	// AddUsage atomically adds the usage to the user's counters.
	AddUsage(ctx context.Context, userID string, usage Usage) error

	// SetUsage overwrites the user's usage counters. Used by reconciliation.
	SetUsage(ctx context.Context, userID string, usage Usage) error

	// SetAllowance overwrites the user's allowance, creating the record with
	// zero usage if the user has never been seen.
	SetAllowance(ctx context.Context, userID string, allowed int64) error

	// Close releases any resources held by the store.
	Close() error
}
