package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestShardedCache_SetAndGet(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "foo", "bar", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "foo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "bar" {
		t.Errorf("expected bar, got %v", got)
	}
}

func TestShardedCache_MissIsAnError(t *testing.T) {
	c := New(time.Minute)

	_, err := c.Get(context.Background(), "absent")
	if err == nil {
		t.Error("expected an error for a missing key")
	}
}

func TestShardedCache_PerEntryTTL(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "short", "lived", 30*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := c.Get(ctx, "short"); err != nil {
		t.Fatalf("entry should be live immediately after Set: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if _, err := c.Get(ctx, "short"); err == nil {
		t.Error("expected the entry to expire before the shard TTL")
	}
}

func TestShardedCache_LastWriterWins(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	c.Set(ctx, "k", "first", 0)
	c.Set(ctx, "k", "second", 0)

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "second" {
		t.Errorf("expected second, got %v", got)
	}
}

func TestShardedCache_Invalidate(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	c.Set(ctx, "k", "v", 0)
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected a miss after invalidation")
	}
	// Removing an absent key is not an error.
	if err := c.Invalidate(ctx, "never-set"); err != nil {
		t.Errorf("Invalidate of absent key failed: %v", err)
	}
}

func TestShardedCache_FindSimilar(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	c.SetWithEmbedding(ctx, "a", "payload-a", []float64{1, 0, 0}, 0)
	c.SetWithEmbedding(ctx, "b", "payload-b", []float64{0, 1, 0}, 0)

	got, err := c.FindSimilar(ctx, []float64{0.9, 0.1, 0}, 0.8)
	if err != nil {
		t.Fatalf("FindSimilar failed: %v", err)
	}
	if got != "payload-a" {
		t.Errorf("expected payload-a, got %v", got)
	}
}

func TestShardedCache_FindSimilarBelowThresholdMisses(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	c.SetWithEmbedding(ctx, "a", "payload-a", []float64{1, 0, 0}, 0)

	if _, err := c.FindSimilar(ctx, []float64{0, 0, 1}, 0.5); err == nil {
		t.Error("expected a miss when the best match is below threshold")
	}
}

func TestShardedCache_EmptyEmbeddingRejected(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	if err := c.SetWithEmbedding(ctx, "k", "v", nil, 0); err == nil {
		t.Error("expected an error for an empty embedding")
	}
	if _, err := c.FindSimilar(ctx, nil, 0.5); err == nil {
		t.Error("expected an error for an empty query embedding")
	}
}

func TestShardedCache_ContextCancellation(t *testing.T) {
	c := New(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected an error for a cancelled context")
	}
	if err := c.Set(ctx, "k", "v", 0); err == nil {
		t.Error("expected an error for a cancelled context")
	}
	if err := c.Invalidate(ctx, "k"); err == nil {
		t.Error("expected an error for a cancelled context")
	}
	if _, err := c.FindSimilar(ctx, []float64{1, 0}, 0.5); err == nil {
		t.Error("expected an error for a cancelled context")
	}
}

func TestShardedCache_ConcurrentAccess(t *testing.T) {
	c := New(time.Minute, WithShardCount(4))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%8)
			if err := c.Set(ctx, key, i, 0); err != nil {
				t.Errorf("Set failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%8)
			if _, err := c.Get(ctx, key); err != nil && !strings.Contains(err.Error(), "not found") {
				t.Errorf("unexpected Get error: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestCosineSimilarity(t *testing.T) {
	if got := cosineSimilarity([]float64{1, 0}, []float64{1, 0}); got < 0.999 {
		t.Errorf("identical vectors should score ~1, got %f", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal vectors should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float64{1, 0}, []float64{1, 0, 0}); got != 0 {
		t.Errorf("mismatched lengths should score 0, got %f", got)
	}
	if got := cosineSimilarity([]float64{0, 0}, []float64{1, 0}); got != 0 {
		t.Errorf("zero-norm vector should score 0, got %f", got)
	}
}
