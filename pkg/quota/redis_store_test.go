package quota

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) *RedisStore {
	t.Helper()

	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStoreFromClient(client, "test:")

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestRedisStore_Ensure_FirstContact(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	q, err := store.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if q.UserID != "user-1" {
		t.Errorf("UserID mismatch: got %s", q.UserID)
	}
	if q.AllowedTokens != DefaultAllowedTokens {
		t.Errorf("AllowedTokens = %d, want %d", q.AllowedTokens, DefaultAllowedTokens)
	}
	if q.UsedTotalTokens != 0 || q.UsedInputTokens != 0 || q.UsedOutputTokens != 0 {
		t.Errorf("expected zero usage, got %+v", q)
	}
	if q.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestRedisStore_Ensure_Idempotent(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	first, err := store.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	if err := store.AddUsage(ctx, "user-1", Usage{InputTokens: 10, OutputTokens: 20}); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}

	// A second Ensure must not reset an existing record.
	second, err := store.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if second.UsedTotalTokens != 30 {
		t.Errorf("UsedTotalTokens = %d, want 30", second.UsedTotalTokens)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestRedisStore_AddUsage_Invariant(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	if _, err := store.Ensure(ctx, "user-1"); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.AddUsage(ctx, "user-1", Usage{InputTokens: 3, OutputTokens: 7})
			if err != nil {
				t.Errorf("AddUsage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	q, err := store.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if q.UsedInputTokens != workers*3 {
		t.Errorf("UsedInputTokens = %d, want %d", q.UsedInputTokens, workers*3)
	}
	if q.UsedOutputTokens != workers*7 {
		t.Errorf("UsedOutputTokens = %d, want %d", q.UsedOutputTokens, workers*7)
	}
	if q.UsedTotalTokens != q.UsedInputTokens+q.UsedOutputTokens {
		t.Errorf("invariant broken: total=%d input=%d output=%d",
			q.UsedTotalTokens, q.UsedInputTokens, q.UsedOutputTokens)
	}
}

func TestRedisStore_SetUsage(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	if err := store.AddUsage(ctx, "user-1", Usage{InputTokens: 100, OutputTokens: 200}); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}

	if err := store.SetUsage(ctx, "user-1", Usage{InputTokens: 5, OutputTokens: 10}); err != nil {
		t.Fatalf("SetUsage failed: %v", err)
	}

	q, err := store.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if q.UsedInputTokens != 5 || q.UsedOutputTokens != 10 || q.UsedTotalTokens != 15 {
		t.Errorf("unexpected usage after SetUsage: %+v", q)
	}
}

func TestRedisStore_SetAllowance(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	if err := store.AddUsage(ctx, "user-1", Usage{InputTokens: 40, OutputTokens: 50}); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}

	if err := store.SetAllowance(ctx, "user-1", 100); err != nil {
		t.Fatalf("SetAllowance failed: %v", err)
	}

	q, err := store.Ensure(ctx, "user-1")
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if q.AllowedTokens != 100 {
		t.Errorf("AllowedTokens = %d, want 100", q.AllowedTokens)
	}
	// Usage counters survive an allowance change.
	if q.UsedTotalTokens != 90 {
		t.Errorf("UsedTotalTokens = %d, want 90", q.UsedTotalTokens)
	}
}

func TestRedisStore_Closed(t *testing.T) {
	store := setupMiniredis(t)
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := store.Ensure(ctx, "u"); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if err := store.AddUsage(ctx, "u", Usage{}); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
