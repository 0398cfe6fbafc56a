package ledger

import (
	"context"
	"testing"
)

func TestMemoryHeadCache(t *testing.T) {
	cache := NewMemoryHeadCache()
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "BATCH-1"); ok {
		t.Fatal("fresh cache must miss")
	}

	cache.Set(ctx, "BATCH-1", "hash-a")
	hash, ok := cache.Get(ctx, "BATCH-1")
	if !ok || hash != "hash-a" {
		t.Fatalf("expected hash-a, got %q ok=%v", hash, ok)
	}

	cache.Set(ctx, "BATCH-1", "hash-b")
	if hash, _ := cache.Get(ctx, "BATCH-1"); hash != "hash-b" {
		t.Fatalf("expected refreshed head, got %q", hash)
	}

	if _, ok := cache.Get(ctx, "BATCH-2"); ok {
		t.Fatal("keys must be independent per stream")
	}
}
