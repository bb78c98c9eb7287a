package embedding

import (
	"context"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(2)
	if v, ok, _ := c.Get(ctx, "a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	_ = c.Set(ctx, "a", []float32{1, 2, 3})
	v, ok, err := c.Get(ctx, "a")
	if err != nil || !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v, %v", v, ok, err)
	}
	_ = c.Set(ctx, "b", []float32{4, 5})
	// a becomes most recent, so c evicts b
	_, _, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", []float32{6})
	if _, ok, _ := c.Get(ctx, "b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Error("expected a to remain after recent use")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestCacheKey(t *testing.T) {
	if CacheKey("m", "text") != CacheKey("m", "text") {
		t.Error("key should be deterministic")
	}
	if CacheKey("m1", "text") == CacheKey("m2", "text") {
		t.Error("key should depend on model")
	}
}
