// Package embedcache provides the TTL-bounded content-hash → vector cache
// that fronts the embedding backend.
//
// Entries older than the TTL are treated as absent regardless of physical
// presence: reads report them as misses and the periodic sweep removes
// them. Hit/miss counters are tracked for the cache admin endpoint.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/pkg/models"
)

// Cache is a thread-safe TTL vector cache. Writes are last-writer-wins; a
// Put either fully replaces an entry or leaves the previous one intact, so
// readers never observe a partial vector.
type Cache struct {
	store   *gocache.Cache
	ttl     time.Duration
	sweep   time.Duration
	enabled bool

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates an embedding cache from configuration. Call Start to begin
// the periodic sweep.
func New(cfg config.CacheConfig) *Cache {
	// The library janitor is disabled; Sweep runs on our own schedule so
	// evicted counts can be reported.
	return &Cache{
		store:   gocache.New(cfg.TTL, 0),
		ttl:     cfg.TTL,
		sweep:   cfg.SweepInterval,
		enabled: cfg.Enabled,
	}
}

// HashText returns the stable content hash used as a cache key.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for a content hash. Expired entries are
// treated as absent; physical removal is left to the sweep so a miss can
// never race a concurrent Put and delete its fresh entry.
func (c *Cache) Get(hash string) ([]float64, bool) {
	if !c.enabled {
		return nil, false
	}
	v, found := c.store.Get(hash)
	if !found {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return v.([]float64), true
}

// Put stores a vector under a content hash, replacing any previous entry.
func (c *Cache) Put(hash string, vector []float64) {
	if !c.enabled || len(vector) == 0 {
		return
	}
	// Copy so later caller mutations can't corrupt the cached value.
	cp := make([]float64, len(vector))
	copy(cp, vector)
	c.store.Set(hash, cp, gocache.DefaultExpiration)
}

// Sweep removes all expired entries and returns the count evicted.
func (c *Cache) Sweep() int {
	before := c.store.ItemCount()
	c.store.DeleteExpired()
	evicted := before - c.store.ItemCount()
	if evicted < 0 {
		evicted = 0
	}
	return evicted
}

// Clear removes one entry when hash is non-empty, or every entry otherwise.
// Returns the number of entries removed.
func (c *Cache) Clear(hash string) int {
	if hash != "" {
		if _, found := c.store.Get(hash); found {
			c.store.Delete(hash)
			return 1
		}
		return 0
	}
	n := len(c.store.Items())
	c.store.Flush()
	return n
}

// Stats returns the observability snapshot.
func (c *Cache) Stats() models.CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	rate := 0.0
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return models.CacheStats{
		Size:       len(c.store.Items()),
		Hits:       hits,
		Misses:     misses,
		HitRate:    rate,
		TTLSeconds: int(c.ttl.Seconds()),
		Enabled:    c.enabled,
	}
}

// Start runs the periodic sweep until ctx is cancelled.
func (c *Cache) Start(ctx context.Context) {
	if !c.enabled || c.sweep <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if evicted := c.Sweep(); evicted > 0 {
					log.Debug().Int("evicted", evicted).Msg("Embedding cache sweep")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
