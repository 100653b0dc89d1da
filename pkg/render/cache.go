// Package render memoizes display encodings of stored versions.
//
// Entries are keyed by version id. A version id always names the same array,
// so an entry can only become wrong by being deleted; the stack reports those
// ids through its eviction hook and the cache drops them.
package render

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/observability"
	"github.com/aretw0/strata/pkg/raster"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxEntries bounds the cache when no size is configured.
const DefaultMaxEntries = 64

// Kind selects the encoding of a cache entry.
type Kind string

const (
	// KindPNG is the full-size 8-bit PNG.
	KindPNG Kind = "png"
	// KindThumbnail is the JPEG thumbnail.
	KindThumbnail Kind = "thumbnail"
)

// LoadFunc fetches the array behind a version.
type LoadFunc func(ctx context.Context, id domain.VersionID) (*raster.Array, error)

type key struct {
	id   domain.VersionID
	kind Kind
}

type entry struct {
	key  key
	data []byte
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	MaxEntries int   `json:"max_entries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
}

// Cache is a bounded LRU of encoded images. It is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[key]*list.Element
	lru        *list.List
	generation uint64
	maxEntries int

	flight  singleflight.Group
	metrics *observability.Metrics

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of cached encodings.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithMetrics reports hits, misses, evictions and render time.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[key]*list.Element),
		lru:        list.New(),
		maxEntries: DefaultMaxEntries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached PNG of id.
func (c *Cache) Get(id domain.VersionID) ([]byte, bool) {
	return c.get(key{id, KindPNG})
}

// Put stores the PNG of id.
func (c *Cache) Put(id domain.VersionID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key{id, KindPNG}, data)
}

func (c *Cache) get(k key) ([]byte, bool) {
	c.mu.Lock()
	el, ok := c.entries[k]
	if ok {
		c.lru.MoveToFront(el)
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		c.metrics.CacheMiss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	return el.Value.(*entry).data, true
}

func (c *Cache) putLocked(k key, data []byte) {
	if el, ok := c.entries[k]; ok {
		el.Value.(*entry).data = data
		c.lru.MoveToFront(el)
		return
	}
	c.entries[k] = c.lru.PushFront(&entry{key: k, data: data})

	for c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
		c.evictions.Add(1)
		c.metrics.CacheEviction()
	}
}

// Invalidate drops every encoding of ids.
func (c *Cache) Invalidate(ids ...domain.VersionID) {
	if len(ids) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	for _, id := range ids {
		for _, kind := range []Kind{KindPNG, KindThumbnail} {
			if el, ok := c.entries[key{id, kind}]; ok {
				c.lru.Remove(el)
				delete(c.entries, key{id, kind})
			}
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.entries = make(map[key]*list.Element)
	c.lru.Init()
}

// GetOrRender returns the PNG of id, encoding it from load on a miss.
// Concurrent misses for the same id share one load and encode.
func (c *Cache) GetOrRender(ctx context.Context, id domain.VersionID, load LoadFunc) ([]byte, error) {
	return c.getOrEncode(ctx, key{id, KindPNG}, load, raster.EncodePNG)
}

// Thumbnail returns the JPEG thumbnail of id, encoding it from load on a miss.
func (c *Cache) Thumbnail(ctx context.Context, id domain.VersionID, load LoadFunc) ([]byte, error) {
	return c.getOrEncode(ctx, key{id, KindThumbnail}, load, raster.Thumbnail)
}

func (c *Cache) getOrEncode(ctx context.Context, k key, load LoadFunc, encode func(*raster.Array) ([]byte, error)) ([]byte, error) {
	if data, ok := c.get(k); ok {
		return data, nil
	}

	v, err, _ := c.flight.Do(string(k.kind)+"/"+string(k.id), func() (interface{}, error) {
		c.mu.Lock()
		gen := c.generation
		c.mu.Unlock()

		start := time.Now()
		a, err := load(ctx, k.id)
		if err != nil {
			return nil, err
		}
		data, err := encode(a)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s of %s: %w", k.kind, k.id, err)
		}
		c.metrics.ObserveRender(string(k.kind), time.Since(start))

		c.mu.Lock()
		// Skip the insert if the version was invalidated while we rendered.
		if c.generation == gen {
			c.putLocked(k, data)
		}
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Len returns the number of cached encodings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries:    c.Len(),
		MaxEntries: c.maxEntries,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
	}
}

// EvictionHook adapts Invalidate to stack.WithEvictionHook.
func (c *Cache) EvictionHook() func([]domain.VersionID) {
	return func(ids []domain.VersionID) {
		c.Invalidate(ids...)
	}
}
