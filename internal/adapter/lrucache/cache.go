// Package lrucache implements the decision cache port as a bounded,
// TTL-aware LRU guarded by a single mutex. All state transitions (LRU
// order, counters, size) happen under the lock, so concurrent Get/Put
// from many request handlers cannot corrupt eviction decisions.
package lrucache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/eleanor-project/eleanor/internal/domain/decision"
	"github.com/eleanor-project/eleanor/internal/port/decisioncache"
)

// DefaultCapacity bounds the cache when no capacity is configured.
const DefaultCapacity = 4096

type entry struct {
	key       string
	value     *decision.Aggregated
	expiresAt time.Time
}

// Cache is a mutex-guarded LRU with per-entry TTL. Entries are owned
// exclusively by the cache: values are deep-copied on the way in and out.
type Cache struct {
	mu        sync.Mutex
	capacity  int
	order     *list.List // front = most recently used
	items     map[string]*list.Element
	hits      uint64
	misses    uint64
	evictions uint64
	now       func() time.Time // for testing
}

// New creates a cache holding at most capacity decisions. Non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func cacheKey(caseFP, configFP string) string {
	return caseFP + "|" + configFP
}

// Get returns a copy of the cached decision, if present and unexpired.
// Expired entries are removed and counted as misses.
func (c *Cache) Get(_ context.Context, caseFP, configFP string) (*decision.Aggregated, bool, error) {
	key := cacheKey(caseFP, configFP)

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	ent := el.Value.(*entry)
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.value.Clone(), true, nil
}

// Put stores a copy of the decision under (caseFP, configFP) with the
// given TTL, evicting the least recently used entry on capacity pressure.
func (c *Cache) Put(_ context.Context, caseFP, configFP string, d *decision.Aggregated, ttl time.Duration) error {
	key := cacheKey(caseFP, configFP)
	stored := d.Clone()
	stored.FromCache = false

	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry)
		ent.value = stored
		ent.expiresAt = expires
		c.order.MoveToFront(el)
		return nil
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	el := c.order.PushFront(&entry{key: key, value: stored, expiresAt: expires})
	c.items[key] = el
	return nil
}

// InvalidateAll discards every entry. Hit/miss/eviction counters survive
// so operators can still see effectiveness across invalidations.
func (c *Cache) InvalidateAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() decisioncache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return decisioncache.Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
	}
}

// removeLocked must be called with c.mu held.
func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.items, ent.key)
}

var _ decisioncache.Cache = (*Cache)(nil)
