package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock returns a controllable time source for tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func newTestCache(capacity int, ttl time.Duration, opts ...Option[string]) (*Cache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(capacity, ttl, opts...)
	c.now = clock.Now
	return c, clock
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("key1", "value one")

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != "value one" {
		t.Errorf("got %q, want %q", got, "value one")
	}
}

func TestCache_Miss(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	if _, ok := c.Get("missing"); ok {
		t.Error("expected cache miss")
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	c, clock := newTestCache(10, 5*time.Minute)
	c.Set("key1", "value")

	clock.Advance(5 * time.Minute)
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("entry exactly at ttl should still be served")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache miss after ttl")
	}
	if c.Len() != 0 {
		t.Errorf("stale entry should be removed on lookup, len = %d", c.Len())
	}
}

func TestCache_ValidatorRejectsDegenerateValues(t *testing.T) {
	c, _ := newTestCache(10, time.Minute, WithValidator(func(v string) bool { return len(v) >= 10 }))

	c.Set("short", "too short")
	if _, ok := c.Get("short"); ok {
		t.Error("short value should not be cached")
	}
	c.Set("long", "long enough value")
	if _, ok := c.Get("long"); !ok {
		t.Error("valid value should be cached")
	}
}

func TestCache_BulkEvictsOldestHalf(t *testing.T) {
	c, clock := newTestCache(4, time.Hour)
	for i := 0; i < 4; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
		clock.Advance(time.Second)
	}
	if c.Len() != 4 {
		t.Fatalf("len = %d, want 4", c.Len())
	}

	c.Set("k4", "v")
	if c.Len() != 2 {
		t.Fatalf("len after overflow = %d, want 2", c.Len())
	}
	for _, k := range []string{"k0", "k1", "k2"} {
		if _, ok := c.Get(k); ok {
			t.Errorf("expected %s to be evicted", k)
		}
	}
	for _, k := range []string{"k3", "k4"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected %s to survive", k)
		}
	}
}

func TestCache_OverwriteRefreshesInsertionOrder(t *testing.T) {
	c, clock := newTestCache(2, time.Hour)
	c.Set("a", "1")
	clock.Advance(time.Second)
	c.Set("b", "2")
	clock.Advance(time.Second)
	c.Set("a", "3") // a is now the newest

	c.Set("c", "4") // overflow: keep 1
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted once c arrives")
	}
	if v, ok := c.Get("c"); !ok || v != "4" {
		t.Errorf("expected c to survive, got %q %v", v, ok)
	}
}

func TestCache_NeverExceedsCapacity(t *testing.T) {
	c, _ := newTestCache(100, time.Hour)
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
		if c.Len() > 100 {
			t.Fatalf("len %d exceeds capacity after insert %d", c.Len(), i)
		}
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be deleted")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("len after clear = %d", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](50, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-%d", g, i)
				c.Set(key, i)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 50 {
		t.Errorf("len %d exceeds capacity", c.Len())
	}
}
