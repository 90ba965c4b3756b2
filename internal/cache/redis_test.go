// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, &RedisCache{client: client, logger: zerolog.Nop()}
}

func TestRedisCacheSetGet(t *testing.T) {
	ctx := context.Background()
	_, c := setupMiniRedis(t)

	c.Set(ctx, "k", []byte(`{"total":7}`), 5*time.Minute)

	payload, found := c.Get(ctx, "k")
	if !found {
		t.Fatal("expected cached payload")
	}
	if string(payload) != `{"total":7}` {
		t.Errorf("payload = %q", payload)
	}

	stats := c.Stats()
	if stats.Sets != 1 || stats.Hits != 1 {
		t.Errorf("stats = %+v, want one set and one hit", stats)
	}
}

func TestRedisCacheGetMissing(t *testing.T) {
	ctx := context.Background()
	_, c := setupMiniRedis(t)

	if _, found := c.Get(ctx, "nonexistent"); found {
		t.Error("expected miss")
	}
	if stats := c.Stats(); stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestRedisCacheTTL(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	c.Set(ctx, "ttl-key", []byte("v"), 100*time.Millisecond)

	if _, found := c.Get(ctx, "ttl-key"); !found {
		t.Fatal("expected value right after Set")
	}

	mr.FastForward(200 * time.Millisecond)

	if _, found := c.Get(ctx, "ttl-key"); found {
		t.Error("expected value to expire")
	}
}

func TestRedisCacheDelete(t *testing.T) {
	ctx := context.Background()
	_, c := setupMiniRedis(t)

	c.Set(ctx, "k", []byte("v"), 5*time.Minute)
	c.Delete(ctx, "k")

	if _, found := c.Get(ctx, "k"); found {
		t.Error("expected value to be deleted")
	}
}

func TestRedisCacheClear(t *testing.T) {
	ctx := context.Background()
	_, c := setupMiniRedis(t)

	c.Set(ctx, "k1", []byte("1"), 5*time.Minute)
	c.Set(ctx, "k2", []byte("2"), 5*time.Minute)
	c.Set(ctx, "k3", []byte("3"), 5*time.Minute)

	if stats := c.Stats(); stats.CurrentSize != 3 {
		t.Fatalf("size = %d, want 3", stats.CurrentSize)
	}

	c.Clear(ctx)

	if stats := c.Stats(); stats.CurrentSize != 0 {
		t.Errorf("size after Clear = %d, want 0", stats.CurrentSize)
	}
	if _, found := c.Get(ctx, "k1"); found {
		t.Error("k1 survived Clear")
	}
}

func TestRedisCacheHealthCheck(t *testing.T) {
	ctx := context.Background()
	mr, c := setupMiniRedis(t)

	if err := c.HealthCheck(ctx); err != nil {
		t.Errorf("expected healthy redis, got %v", err)
	}

	mr.Close()

	if err := c.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail after shutdown")
	}
}
