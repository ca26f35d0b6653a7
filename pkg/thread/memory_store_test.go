package thread

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStore_AppendAndRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := NewUserMessage("user-1", "question")
	second := NewAgentMessage("oracle", ResponseError, "upstream unavailable", "gpt-4o", nil)

	if err := store.Append(ctx, "sess-1", first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, "sess-1", second); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	msgs, err := store.Read(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != first.ID || msgs[1].ID != second.ID {
		t.Errorf("append order not preserved")
	}
	if msgs[1].Response.Kind != ResponseError {
		t.Errorf("expected error response kind, got %s", msgs[1].Response.Kind)
	}
}

func TestMemoryStore_ReadCopyIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Append(ctx, "s", NewUserMessage("u", "a")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	msgs, err := store.Read(ctx, "s")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// Mutating the returned slice must not affect the store.
	msgs[0] = nil
	again, err := store.Read(ctx, "s")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if again[0] == nil {
		t.Error("Read returned a slice aliasing internal storage")
	}
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := NewUserMessage("u", fmt.Sprintf("m%d", i))
			if err := store.Append(ctx, "busy", msg); err != nil {
				t.Errorf("Append failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	msgs, err := store.Read(ctx, "busy")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(msgs) != n {
		t.Errorf("expected %d messages, got %d", n, len(msgs))
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := store.Append(ctx, "s", NewUserMessage("u", "x")); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if _, err := store.Sessions(ctx); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}
