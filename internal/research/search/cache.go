package search

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"deepresearch/internal/server/ports"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 15 * time.Minute
)

type cacheEntry struct {
	results  []ports.RawResult
	storedAt time.Time
}

// CachingSearcher memoizes successful searches by normalized query. Errors
// are never cached.
type CachingSearcher struct {
	delegate ports.Searcher
	cache    *lru.Cache[string, cacheEntry]
	ttl      time.Duration
	now      func() time.Time
}

var _ ports.Searcher = (*CachingSearcher)(nil)

// NewCachingSearcher wraps delegate with an LRU result cache. Zero values
// fall back to the defaults.
func NewCachingSearcher(delegate ports.Searcher, maxSize int, ttl time.Duration) ports.Searcher {
	if maxSize <= 0 {
		maxSize = defaultCacheMaxSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](maxSize)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return delegate
	}
	return &CachingSearcher{delegate: delegate, cache: cache, ttl: ttl, now: time.Now}
}

func (c *CachingSearcher) Search(ctx context.Context, query string) ([]ports.RawResult, error) {
	key := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if entry, ok := c.cache.Get(key); ok {
		if c.now().Sub(entry.storedAt) < c.ttl {
			return append([]ports.RawResult(nil), entry.results...), nil
		}
		c.cache.Remove(key)
	}

	results, err := c.delegate.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cacheEntry{
		results:  append([]ports.RawResult(nil), results...),
		storedAt: c.now(),
	})
	return results, nil
}

// Len reports the number of cached queries.
func (c *CachingSearcher) Len() int {
	return c.cache.Len()
}
