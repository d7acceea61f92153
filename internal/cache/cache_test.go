package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCacheBasicOperations(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key-1", []byte("value-1"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value-1" {
		t.Errorf("got %q, want value-1", val)
	}

	if err := c.Delete(ctx, "key-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	val, err = c.Get(ctx, "key-1")
	if err != nil || val != nil {
		t.Errorf("expected miss after delete, got (%q, %v)", val, err)
	}
}

func TestLRUCacheMissReturnsNil(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	val, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil on miss, got %q", val)
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	val, err := c.Get(ctx, "short")
	if err != nil || val != nil {
		t.Errorf("expected expiry, got (%q, %v)", val, err)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		c.Set(ctx, k, []byte(k), time.Minute)
	}

	// Touch "a" so "b" is the oldest.
	c.Get(ctx, "a")
	c.Set(ctx, "d", []byte("d"), time.Minute)

	if val, _ := c.Get(ctx, "b"); val != nil {
		t.Error("expected b to be evicted")
	}
	if val, _ := c.Get(ctx, "a"); val == nil {
		t.Error("expected a to survive eviction")
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("stats = (%d, %d), want (3, 3)", size, capacity)
	}
}

func TestLRUCacheResultRoundTrip(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	res := &domain.Result{
		CaseID:    "case-cache",
		Decision:  domain.DecisionApproved,
		RiskScore: 7,
		Metrics: domain.Metrics{
			DTI:            domain.DefinedRatio(0.30),
			LTV:            domain.DefinedRatio(0.667),
			ReservesMonths: domain.UndefinedRatio(),
		},
		Conditions: []string{},
		Reasons:    []string{},
	}

	if err := c.SetResult(ctx, "case-cache", res, time.Minute); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}

	got, err := c.GetResult(ctx, "case-cache")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected cached result")
	}
	if got.Decision != domain.DecisionApproved || got.RiskScore != 7 {
		t.Errorf("got %s/%d", got.Decision, got.RiskScore)
	}
	if got.Metrics.ReservesMonths.Defined() {
		t.Error("undefined ratio did not survive the cache round trip")
	}
}

func TestLRUCacheResultMiss(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()

	res, err := c.GetResult(context.Background(), "absent")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil on miss, got %+v", res)
	}
}

func TestLRUCacheCounter(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "submissions", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("counter = %d, want %d", got, want)
		}
	}
}

func TestLRUCacheCounterWindowReset(t *testing.T) {
	c := NewLRUCache(10)
	defer c.Close()
	ctx := context.Background()

	c.IncrementCounter(ctx, "win", 10*time.Millisecond)
	c.IncrementCounter(ctx, "win", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	got, err := c.IncrementCounter(ctx, "win", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if got != 1 {
		t.Errorf("counter = %d, want 1 after window reset", got)
	}
}

func TestNewCacheFactory(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "bogus"}); err == nil {
		t.Error("expected error for unsupported cache type")
	}
}
