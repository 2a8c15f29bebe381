package api

import (
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// Response kinds held by the cache. Stats are kept per kind.
const (
	kindClusters = "clusters"
	kindTiles    = "tiles"
)

// ResponseCache holds rendered cluster and tile responses, least recently
// used first out, each for a fixed TTL. Safe for concurrent use.
type ResponseCache struct {
	mu    sync.Mutex
	lru   *lru.Cache
	max   int
	ttl   time.Duration
	now   func() time.Time
	kinds map[string]*kindCounters
}

type cachedResponse struct {
	kind        string
	contentType string
	body        []byte
	expires     time.Time
}

type kindCounters struct {
	entries int
	hits    int64
	misses  int64
}

// KindStats reports one response kind.
type KindStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// CacheStats is the /api/cache/stats payload.
type CacheStats struct {
	Entries    int                  `json:"entries"`
	MaxEntries int                  `json:"max_entries"`
	Hits       int64                `json:"hits"`
	Misses     int64                `json:"misses"`
	HitRate    float64              `json:"hit_rate"`
	Kinds      map[string]KindStats `json:"kinds"`
}

// NewResponseCache creates a cache of up to maxEntries responses kept for
// ttl.
func NewResponseCache(maxEntries int, ttl time.Duration) *ResponseCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &ResponseCache{
		lru:   lru.New(maxEntries),
		max:   maxEntries,
		ttl:   ttl,
		now:   time.Now,
		kinds: map[string]*kindCounters{kindClusters: {}, kindTiles: {}},
	}
	c.lru.OnEvicted = func(_ lru.Key, v interface{}) {
		c.counters(v.(*cachedResponse).kind).entries--
	}
	return c
}

// clustersKey identifies a clusters response by its sorted query string.
func clustersKey(q url.Values) string {
	return kindClusters + "?" + q.Encode()
}

// tileKey identifies one tile of a layer.
func tileKey(layer string, z, x, y int) string {
	return kindTiles + "/" + layer + "/" + strconv.Itoa(z) + "/" + strconv.Itoa(x) + "/" + strconv.Itoa(y)
}

func (c *ResponseCache) counters(kind string) *kindCounters {
	k, ok := c.kinds[kind]
	if !ok {
		k = &kindCounters{}
		c.kinds[kind] = k
	}
	return k
}

// Get returns the body and content type cached under key. Expired entries
// are dropped and count as misses.
func (c *ResponseCache) Get(kind, key string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		c.counters(kind).misses++
		return nil, "", false
	}
	resp := v.(*cachedResponse)
	if c.now().After(resp.expires) {
		c.lru.Remove(key)
		c.counters(kind).misses++
		return nil, "", false
	}
	c.counters(kind).hits++
	return resp.body, resp.contentType, true
}

// Put stores a response under key.
func (c *ResponseCache) Put(kind, key, contentType string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Get(key); ok {
		c.lru.Remove(key)
	}
	c.lru.Add(key, &cachedResponse{
		kind:        kind,
		contentType: contentType,
		body:        body,
		expires:     c.now().Add(c.ttl),
	})
	c.counters(kind).entries++
}

// Stats returns totals and per-kind counters.
func (c *ResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := CacheStats{
		Entries:    c.lru.Len(),
		MaxEntries: c.max,
		Kinds:      make(map[string]KindStats, len(c.kinds)),
	}
	for kind, k := range c.kinds {
		out.Kinds[kind] = KindStats{Entries: k.entries, Hits: k.hits, Misses: k.misses}
		out.Hits += k.hits
		out.Misses += k.misses
	}
	if total := out.Hits + out.Misses; total > 0 {
		out.HitRate = float64(out.Hits) / float64(total)
	}
	return out
}
