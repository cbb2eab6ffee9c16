// Package tiles serves shaded and basemap raster tiles with an in-memory
// LRU cache in front of both.
package tiles

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TileCache is a concurrent-safe LRU cache for encoded tiles with TTL
// expiration.
type TileCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front=newest, back=oldest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
	evictions  atomic.Int64
}

type tileCacheEntry struct {
	key       string
	data      []byte
	createdAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
	HitRate    float64 `json:"hit_rate"`
}

// NewTileCache creates a TileCache with the given capacity and TTL. A
// non-positive capacity is treated as 1.
func NewTileCache(maxEntries int, ttl time.Duration) *TileCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &TileCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

func tileKey(layer string, z, x, y int) string {
	return fmt.Sprintf("%s/%d/%d/%d", layer, z, x, y)
}

// Get retrieves a cached tile. Returns nil on miss or expiration.
func (c *TileCache) Get(layer string, z, x, y int) []byte {
	key := tileKey(layer, z, x, y)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil
	}

	entry := el.Value.(*tileCacheEntry)
	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		c.misses.Add(1)
		return nil
	}

	c.order.MoveToFront(el)
	c.hits.Add(1)
	return entry.data
}

// Put stores a tile, evicting the least recently used entry at capacity.
func (c *TileCache) Put(layer string, z, x, y int, data []byte) {
	key := tileKey(layer, z, x, y)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = &tileCacheEntry{key: key, data: data, createdAt: time.Now()}
		c.order.MoveToFront(el)
		return
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*tileCacheEntry).key)
		c.evictions.Add(1)
	}

	c.entries[key] = c.order.PushFront(&tileCacheEntry{key: key, data: data, createdAt: time.Now()})
}

// Invalidate removes every entry of layer.
func (c *TileCache) Invalidate(layer string) {
	prefix := layer + "/"

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(el)
			delete(c.entries, key)
		}
	}
}

// Stats returns cache performance statistics.
func (c *TileCache) Stats() CacheStats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		Evictions:  c.evictions.Load(),
		HitRate:    hitRate,
	}
}
