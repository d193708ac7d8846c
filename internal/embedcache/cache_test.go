package embedcache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/embedcache"
)

func newTestCache(t *testing.T, ttl time.Duration) *embedcache.Cache {
	t.Helper()
	return embedcache.New(config.CacheConfig{
		Enabled:       true,
		TTL:           ttl,
		SweepInterval: 0, // sweeps driven by the tests
	})
}

func TestPutThenGet(t *testing.T) {
	c := newTestCache(t, time.Hour)

	h := embedcache.HashText("list my notes")
	vec := []float64{0.1, 0.2, 0.3}
	c.Put(h, vec)

	got, found := c.Get(h)
	if !found {
		t.Fatal("Get() after Put() should find the entry")
	}
	if len(got) != 3 || got[0] != 0.1 || got[2] != 0.3 {
		t.Errorf("Get() = %v, want %v", got, vec)
	}
}

func TestGet_CopiesOnPut(t *testing.T) {
	c := newTestCache(t, time.Hour)

	vec := []float64{1, 2, 3}
	c.Put("h", vec)
	vec[0] = 99 // caller mutation must not corrupt the cached value

	got, found := c.Get("h")
	if !found {
		t.Fatal("Get() should find the entry")
	}
	if got[0] != 1 {
		t.Errorf("cached vector mutated by caller: got[0] = %v, want 1", got[0])
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, 20*time.Millisecond)

	c.Put("h", []float64{1})
	if _, found := c.Get("h"); !found {
		t.Fatal("entry should be present before TTL")
	}

	time.Sleep(40 * time.Millisecond)

	if _, found := c.Get("h"); found {
		t.Error("entry should be absent after TTL elapses")
	}
}

func TestSweepCountsEvicted(t *testing.T) {
	c := newTestCache(t, 20*time.Millisecond)

	c.Put("a", []float64{1})
	c.Put("b", []float64{2})
	time.Sleep(40 * time.Millisecond)

	if evicted := c.Sweep(); evicted != 2 {
		t.Errorf("Sweep() = %d, want 2", evicted)
	}
	if evicted := c.Sweep(); evicted != 0 {
		t.Errorf("second Sweep() = %d, want 0", evicted)
	}
}

func TestMissDoesNotEvictConcurrentPut(t *testing.T) {
	c := newTestCache(t, time.Hour)

	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("h%d", i)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Get(key)
		}()
		go func() {
			defer wg.Done()
			c.Put(key, []float64{1})
		}()
		wg.Wait()

		if _, found := c.Get(key); !found {
			t.Fatalf("entry %q dropped by a concurrent miss", key)
		}
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Put("a", []float64{1})
	c.Put("b", []float64{2})

	if n := c.Clear("a"); n != 1 {
		t.Errorf("Clear(a) = %d, want 1", n)
	}
	if n := c.Clear("missing"); n != 0 {
		t.Errorf("Clear(missing) = %d, want 0", n)
	}
	if n := c.Clear(""); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
	if _, found := c.Get("b"); found {
		t.Error("entry should be gone after full clear")
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Put("a", []float64{1})
	c.Get("a")       // hit
	c.Get("missing") // miss

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Stats() hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("Stats().HitRate = %v, want 0.5", stats.HitRate)
	}
	if stats.Size != 1 {
		t.Errorf("Stats().Size = %d, want 1", stats.Size)
	}
	if !stats.Enabled {
		t.Error("Stats().Enabled should be true")
	}
}

func TestDisabledCacheNeverHits(t *testing.T) {
	c := embedcache.New(config.CacheConfig{Enabled: false, TTL: time.Hour})

	c.Put("h", []float64{1})
	if _, found := c.Get("h"); found {
		t.Error("disabled cache should never return entries")
	}
}

func TestHashTextStable(t *testing.T) {
	if embedcache.HashText("abc") != embedcache.HashText("abc") {
		t.Error("HashText should be deterministic")
	}
	if embedcache.HashText("abc") == embedcache.HashText("abd") {
		t.Error("HashText should differ for different inputs")
	}
}
