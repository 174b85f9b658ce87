// Package cache provides a bounded, TTL-based in-memory cache used for chat
// answers and GitHub API results.
//
// Entries expire lazily: Get treats anything older than the TTL as absent and
// removes it. There is no background sweep. When an insert pushes the cache
// over capacity, the oldest entries (by insertion time) are evicted in one pass
// until only capacity/2 remain, so the following capacity/2 inserts do not
// evict at all.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Validator reports whether a value is worth caching. Set silently drops
// values for which it returns false.
type Validator[V any] func(V) bool

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// Cache is a thread-safe key/value store with TTL expiry and capacity-triggered
// bulk eviction.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	valid    Validator[V]
	items    map[string]*list.Element
	// order holds entries oldest first; re-inserting a key moves it to the back.
	order *list.List
	now   func() time.Time
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithValidator rejects degenerate values on Set.
func WithValidator[V any](fn Validator[V]) Option[V] {
	return func(c *Cache[V]) { c.valid = fn }
}

// New creates a cache holding at most capacity entries for ttl each.
// A capacity below 2 is raised to 2 so that bulk eviction always keeps at
// least one entry.
func New[V any](capacity int, ttl time.Duration, opts ...Option[V]) *Cache[V] {
	if capacity < 2 {
		capacity = 2
	}
	c := &Cache[V]{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key, or false if it is missing or stale.
// A stale entry is removed.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := elem.Value.(*entry[V])
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.removeElement(elem)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. Values rejected by the validator are dropped.
func (c *Cache[V]) Set(key string, value V) {
	if c.valid != nil && !c.valid(value) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[V])
		e.value = value
		e.insertedAt = now
		c.order.MoveToBack(elem)
		return
	}

	c.items[key] = c.order.PushBack(&entry[V]{key: key, value: value, insertedAt: now})
	if c.order.Len() > c.capacity {
		c.evictOldest(c.capacity / 2)
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of entries, including stale ones not yet looked up.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// evictOldest must be called with c.mu held.
func (c *Cache[V]) evictOldest(keep int) {
	for c.order.Len() > keep {
		c.removeElement(c.order.Front())
	}
}

func (c *Cache[V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry[V]).key)
}
