// Package cache provides a bounded in-memory LRU cache with per-entry TTL.
// The lifecycle service uses it to memoize Candlepin-name lookups.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is the list element payload.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// LRUCache is a thread-safe cache that evicts the least recently used entry
// once maxSize is reached. Expired entries are dropped lazily on Get.
type LRUCache[K comparable, V any] struct {
	mu      sync.Mutex
	order   *list.List
	items   map[K]*list.Element
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries for ttl each.
// maxSize below 1 is raised to 1; a non-positive ttl defaults to one minute.
func NewLRUCache[K comparable, V any](maxSize int, ttl time.Duration) *LRUCache[K, V] {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &LRUCache[K, V]{
		order:   list.New(),
		items:   make(map[K]*list.Element, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.now().After(e.expiresAt) {
		c.removeElement(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[K, V])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.maxSize {
		if oldest := c.order.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
}

// Invalidate removes key.
func (c *LRUCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// InvalidateFunc removes every entry for which match returns true.
func (c *LRUCache[K, V]) InvalidateFunc(match func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*entry[K, V])
		if match(e.key, e.value) {
			c.removeElement(el)
			removed++
		}
		el = next
	}
	return removed
}

// InvalidateAll empties the cache.
func (c *LRUCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[K]*list.Element, c.maxSize)
}

// Size returns the number of entries, including expired ones not yet dropped.
func (c *LRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// removeElement must be called with c.mu held.
func (c *LRUCache[K, V]) removeElement(el *list.Element) {
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	c.order.Remove(el)
}
