package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"soup/internal/adapter/embedding"
)

func TestEmbeddingCache_LRU(t *testing.T) {
	c := NewEmbeddingCache(2, time.Minute)

	c.Put("m", "a", []float32{1})
	c.Put("m", "b", []float32{2})
	c.Get("m", "a") // a is now most recent
	c.Put("m", "c", []float32{3})

	if _, ok := c.Get("m", "b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("m", "a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if c.Size() != 2 {
		t.Errorf("expected size 2, got %d", c.Size())
	}

	if _, ok := c.Get("other-model", "a"); ok {
		t.Error("entries must be keyed by model")
	}

	c.Invalidate()
	if c.Size() != 0 {
		t.Errorf("expected empty cache after invalidate, got %d", c.Size())
	}
}

func TestEmbeddingCache_TTL(t *testing.T) {
	c := NewEmbeddingCache(10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("m", "a", []float32{1})
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("m", "a"); ok {
		t.Error("expected expired entry to miss")
	}
	if c.Size() != 0 {
		t.Errorf("expected expired entry to be dropped, got size %d", c.Size())
	}
}

func TestCachedEmbedder(t *testing.T) {
	stub := embedding.NewStubEmbedder(2, map[string][]float32{"glad": {0.95, 0.05}})
	e := NewCachedEmbedder(stub, NewEmbeddingCache(10, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := e.Embed(ctx, "glad"); err != nil {
			t.Fatal(err)
		}
	}
	if stub.Calls("glad") != 1 {
		t.Errorf("expected 1 provider call, got %d", stub.Calls("glad"))
	}
	if e.Dimension() != 2 {
		t.Errorf("expected dimension passthrough, got %d", e.Dimension())
	}

	stub.Fail("sad", errors.New("down"))
	e.Embed(ctx, "sad")
	e.Embed(ctx, "sad")
	if stub.Calls("sad") != 2 {
		t.Errorf("failures must not be cached, got %d calls", stub.Calls("sad"))
	}
}
