package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

type sample struct {
	Name  string `json:"name"`
	Turns int    `json:"turns"`
}

func TestMemoryCacheRoundTripAndExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "context:call-1", sample{Name: "a", Turns: 2}, 300*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got sample
	ok, err := c.Get(ctx, "context:call-1", &got)
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got.Turns != 2 {
		t.Fatalf("unexpected value %+v", got)
	}

	now = now.Add(301 * time.Second)
	ok, _ = c.Get(ctx, "context:call-1", &got)
	if ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be swept")
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "a", 1, 0)
	_ = c.Set(ctx, "b", 2, 0)
	if err := c.Delete(ctx, "a", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var v int
	if ok, _ := c.Get(ctx, "a", &v); ok {
		t.Fatalf("expected a to be evicted")
	}
	if ok, _ := c.Get(ctx, "b", &v); !ok || v != 2 {
		t.Fatalf("expected b to survive, got %d", v)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("VOXA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VOXA_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, RedisOptions{Addr: addr, KeyPrefix: "voxa-test:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := c.Set(ctx, "k", sample{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got sample
	if ok, err := c.Get(ctx, "k", &got); err != nil || !ok || got.Name != "x" {
		t.Fatalf("get: ok=%v err=%v got=%+v", ok, err, got)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := c.Get(ctx, "k", &got); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestNewRedisCacheRequiresAddr(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), RedisOptions{}); err == nil {
		t.Fatalf("expected not configured error")
	}
}
