package quota

import (
	"context"
	"errors"
	"testing"
)

func TestLedger_AdmitsFirstTimeUser(t *testing.T) {
	ledger := NewLedger(NewMemoryStore())
	ctx := context.Background()

	if err := ledger.CheckAndReserve(ctx, "new-user"); err != nil {
		t.Fatalf("CheckAndReserve failed for first-time user: %v", err)
	}

	q, err := ledger.GetQuota(ctx, "new-user")
	if err != nil {
		t.Fatalf("GetQuota failed: %v", err)
	}
	if q.AllowedTokens != DefaultAllowedTokens {
		t.Errorf("AllowedTokens = %d, want %d", q.AllowedTokens, DefaultAllowedTokens)
	}
}

func TestLedger_SoftCapOvershoot(t *testing.T) {
	store := NewMemoryStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	if err := ledger.SetAllowance(ctx, "user-1", 100); err != nil {
		t.Fatalf("SetAllowance failed: %v", err)
	}
	if err := ledger.CommitUsage(ctx, "user-1", Usage{InputTokens: 50, OutputTokens: 40}); err != nil {
		t.Fatalf("CommitUsage failed: %v", err)
	}

	// 90 of 100 used: still admitted.
	if err := ledger.CheckAndReserve(ctx, "user-1"); err != nil {
		t.Fatalf("expected admission at 90/100, got %v", err)
	}

	// The admitted generation costs 15; the commit is unconditional and
	// pushes usage past the allowance.
	if err := ledger.CommitUsage(ctx, "user-1", Usage{InputTokens: 5, OutputTokens: 10}); err != nil {
		t.Fatalf("CommitUsage failed: %v", err)
	}

	q, err := ledger.GetQuota(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetQuota failed: %v", err)
	}
	if q.UsedTotalTokens != 105 {
		t.Errorf("UsedTotalTokens = %d, want 105", q.UsedTotalTokens)
	}
	if q.Remaining() != -5 {
		t.Errorf("Remaining = %d, want -5", q.Remaining())
	}

	// The next admission is rejected.
	err = ledger.CheckAndReserve(ctx, "user-1")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestLedger_RejectsAtExactAllowance(t *testing.T) {
	ledger := NewLedger(NewMemoryStore())
	ctx := context.Background()

	if err := ledger.SetAllowance(ctx, "user-1", 50); err != nil {
		t.Fatalf("SetAllowance failed: %v", err)
	}
	if err := ledger.CommitUsage(ctx, "user-1", Usage{InputTokens: 25, OutputTokens: 25}); err != nil {
		t.Fatalf("CommitUsage failed: %v", err)
	}

	// used == allowed is exhausted, not admitted.
	err := ledger.CheckAndReserve(ctx, "user-1")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("expected ErrQuotaExceeded at exact allowance, got %v", err)
	}
}

func TestLedger_CommitAfterRejectionStillBooks(t *testing.T) {
	ledger := NewLedger(NewMemoryStore())
	ctx := context.Background()

	if err := ledger.SetAllowance(ctx, "user-1", 10); err != nil {
		t.Fatalf("SetAllowance failed: %v", err)
	}
	if err := ledger.CommitUsage(ctx, "user-1", Usage{InputTokens: 10, OutputTokens: 10}); err != nil {
		t.Fatalf("CommitUsage failed: %v", err)
	}

	// Commits never fail on quota grounds.
	if err := ledger.CommitUsage(ctx, "user-1", Usage{InputTokens: 1, OutputTokens: 1}); err != nil {
		t.Fatalf("CommitUsage failed after exhaustion: %v", err)
	}

	q, err := ledger.GetQuota(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetQuota failed: %v", err)
	}
	if q.UsedTotalTokens != 22 {
		t.Errorf("UsedTotalTokens = %d, want 22", q.UsedTotalTokens)
	}
}
