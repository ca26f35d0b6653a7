package quota

import (
	"context"
	"fmt"
)

// Ledger is the admission and commit surface the request pipeline uses.
// CheckAndReserve decides admission against the recorded usage at that
// moment; CommitUsage records the true cost of an admitted generation
// unconditionally, even when the commit pushes usage past the allowance.
type Ledger struct {
	store Store
}

// NewLedger creates a ledger backed by the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// CheckAndReserve admits a new generation for the user, or returns an error
// wrapping ErrQuotaExceeded if the allowance is already spent. First-time
// users get the default allowance.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID string) error {
	q, err := l.store.Ensure(ctx, userID)
	if err != nil {
		return fmt.Errorf("check quota: %w", err)
	}

	if q.Exhausted() {
		return fmt.Errorf("user %s used %d of %d tokens: %w",
			userID, q.UsedTotalTokens, q.AllowedTokens, ErrQuotaExceeded)
	}

	return nil
}

// CommitUsage records the cost of a completed generation. It never fails on
// quota grounds: an admitted generation's cost is always booked.
func (l *Ledger) CommitUsage(ctx context.Context, userID string, usage Usage) error {
	if err := l.store.AddUsage(ctx, userID, usage); err != nil {
		return fmt.Errorf("commit usage: %w", err)
	}
	return nil
}

// GetQuota returns the user's current quota, creating it on first contact.
func (l *Ledger) GetQuota(ctx context.Context, userID string) (*Quota, error) {
	return l.store.Ensure(ctx, userID)
}

// SetAllowance overwrites the user's allowance.
func (l *Ledger) SetAllowance(ctx context.Context, userID string, allowed int64) error {
	return l.store.SetAllowance(ctx, userID, allowed)
}
