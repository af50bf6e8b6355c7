package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	server := miniredis.RunT(t)
	cache := NewRedisCache(RedisConfig{Addr: server.Addr(), TTL: time.Hour})
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache := newTestRedisCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "emb:m:1"); err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}

	want := []float32{0.25, -1.5, 3}
	if err := cache.Put(ctx, "emb:m:1", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, "emb:m:1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d dims, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dim %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRedisCachePutIsIdempotentUpsert(t *testing.T) {
	cache := newTestRedisCache(t)
	ctx := context.Background()

	if err := cache.Put(ctx, "emb:m:2", []float32{1}); err != nil {
		t.Fatalf("first Put() error = %v", err)
	}
	if err := cache.Put(ctx, "emb:m:2", []float32{1}); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, "emb:m:2")
	if err != nil || !ok {
		t.Fatalf("expected hit after double put, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("unexpected vector %v", got)
	}
}

func TestRedisCacheTreatsCorruptEntryAsMiss(t *testing.T) {
	server := miniredis.RunT(t)
	cache := NewRedisCache(RedisConfig{Addr: server.Addr(), TTL: time.Hour})
	defer func() { _ = cache.Close() }()

	if err := server.Set("emb:m:3", "not-json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	_, ok, err := cache.Get(context.Background(), "emb:m:3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatalf("expected corrupt entry to read as a miss")
	}
}
