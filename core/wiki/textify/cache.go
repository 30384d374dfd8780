package textify

import (
	"strconv"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/adalundhe/wikisearch/core/page"
)

const (
	defaultNumCounters = 1e6 // counters for the admission policy
	defaultMaxCost     = 256 << 20
	defaultBufferItems = 64
)

// CacheConfig configures the textify cache. Cost is measured in bytes of
// plain text.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func applyDefaults(config *CacheConfig) CacheConfig {
	cfg := CacheConfig{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
	}
	if config == nil {
		return cfg
	}
	if config.NumCounters > 0 {
		cfg.NumCounters = config.NumCounters
	}
	if config.MaxCost > 0 {
		cfg.MaxCost = config.MaxCost
	}
	if config.BufferItems > 0 {
		cfg.BufferItems = config.BufferItems
	}
	return cfg
}

// Cache memoizes Textify per page revision, keyed by page id and last
// change time, so unchanged pages are not re-parsed on every reindex.
type Cache struct {
	cache  *ristretto.Cache
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a textify cache. A nil config uses defaults.
func NewCache(config *CacheConfig) (*Cache, error) {
	cfg := applyDefaults(config)
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{cache: cache}, nil
}

func cacheKey(p page.Page) string {
	return strconv.FormatInt(p.ID, 10) + "@" + strconv.FormatInt(p.Updated.UnixNano(), 10)
}

// Textify returns the plain text of p, from cache when p is unchanged.
func (c *Cache) Textify(p page.Page) string {
	key := cacheKey(p)
	if v, ok := c.cache.Get(key); ok {
		if text, ok := v.(string); ok {
			c.hits.Add(1)
			return text
		}
	}
	c.misses.Add(1)

	text := Textify(p.Text)
	c.cache.Set(key, text, int64(len(text))+1)
	return text
}

// Wait blocks until pending writes are visible to Get.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Stats returns the hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the cache.
func (c *Cache) Close() {
	c.cache.Close()
}
