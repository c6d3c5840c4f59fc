package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type profile struct {
	Ticker    string  `json:"ticker"`
	MarketCap float64 `json:"market_cap"`
}

func TestMemoryCacheGetDecodesJSON(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	if err := mc.Set(ctx, "p:ACME", `{"ticker":"ACME","market_cap":1.5e9}`, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var p profile
	if err := mc.Get(ctx, "p:ACME", &p); err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Ticker != "ACME" || p.MarketCap != 1.5e9 {
		t.Fatalf("got %+v", p)
	}

	var raw string
	if err := mc.Get(ctx, "p:ACME", &raw); err != nil || raw == "" {
		t.Fatalf("raw get: %q %v", raw, err)
	}
	if err := mc.Get(ctx, "p:NOPE", &p); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("miss err=%v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, "short", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	var v string
	if err := mc.Get(ctx, "short", &v); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expired entry returned %q err=%v", v, err)
	}
}

func TestMemoryCacheDeleteByPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	_ = mc.Set(ctx, GenerateKeyWithParams("signals:list", "ACME", "", false, 50), "a", time.Minute)
	_ = mc.Set(ctx, GenerateKeyWithParams("signals:list", "", "BUY", true, 10), "b", time.Minute)
	_ = mc.Set(ctx, GenerateKey("profile", "ACME"), "c", time.Minute)

	if err := mc.DeleteByPattern(ctx, BuildPattern("signals:")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := mc.Exists(ctx, "signals:list:ACME:-:false:50", "signals:list:-:BUY:true:10"); ok {
		t.Fatalf("signal keys survived")
	}
	if ok, _ := mc.Exists(ctx, "profile:ACME"); !ok {
		t.Fatalf("unrelated key removed")
	}
	if err := mc.DeleteByPattern(ctx, "[bad"); err == nil {
		t.Fatalf("expected error for malformed pattern")
	}
}

func TestMemoryCacheLocks(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	if ok, _ := mc.TryLock(ctx, "lock:a", time.Minute); !ok {
		t.Fatalf("first lock refused")
	}
	if ok, _ := mc.TryLock(ctx, "lock:a", time.Minute); ok {
		t.Fatalf("second lock granted")
	}
	// filling the cache must not evict the lock
	_ = mc.Set(ctx, "x", "1", time.Minute)
	_ = mc.Set(ctx, "y", "2", time.Minute)
	_ = mc.Set(ctx, "z", "3", time.Minute)
	if ok, _ := mc.TryLock(ctx, "lock:a", time.Minute); ok {
		t.Fatalf("lock evicted under pressure")
	}
	_ = mc.Unlock(ctx, "lock:a")
	if ok, _ := mc.TryLock(ctx, "lock:a", time.Minute); !ok {
		t.Fatalf("lock not released")
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	got := GenerateKeyWithParams("signals:list", "", "BUY", 5)
	if got != "signals:list:-:BUY:5" {
		t.Fatalf("key=%s", got)
	}
}
