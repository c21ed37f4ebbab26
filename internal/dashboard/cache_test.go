package dashboard

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	return cache, func() {
		_ = client.Close()
		mr.Close()
	}
}

func TestCacheVersionInitialises(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()

	ctx := context.Background()
	ver, err := cache.Version(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ver != 1 {
		t.Fatalf("expected initial version 1, got %d", ver)
	}
	ver, err = cache.Version(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ver != 1 {
		t.Fatalf("version must stay stable without bumps, got %d", ver)
	}
}

func TestBuildKeyEmbedsVersion(t *testing.T) {
	cache, cleanup := newTestCache(t)
	defer cleanup()

	ctx := context.Background()
	before, err := cache.BuildKey(ctx, "dashboard", "summary", "2025-01-01:2025-01-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before != "dashboard:summary:2025-01-01:2025-01-31:1" {
		t.Fatalf("unexpected key %q", before)
	}

	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("bump failed: %v", err)
	}
	after, err := cache.BuildKey(ctx, "dashboard", "summary", "2025-01-01:2025-01-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after == before {
		t.Fatalf("bump must change keys, still %q", after)
	}
}

func TestNilCacheFallsThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "dashboard", "summary", "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "dashboard:summary:x" {
		t.Fatalf("unexpected key %q", key)
	}

	calls := 0
	var out int
	loader := func(context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}
	if err := cache.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cache.FetchJSON(ctx, key, &out, loader); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("nil cache must call the loader every time, calls %d", calls)
	}
	if out != 2 {
		t.Fatalf("expected latest loader value, got %d", out)
	}

	if err := cache.Bump(ctx); err != nil {
		t.Fatalf("nil cache bump must be a no-op, got %v", err)
	}
}
