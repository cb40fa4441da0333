package cache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/mqtt2influxdb/errors"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// LRU is a fixed-capacity map that drops the least recently used key when
// a new key does not fit. It is safe for concurrent use.
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front is most recently used
	onEvict  func(K, V)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewLRU creates a cache holding at most capacity keys. onEvict, when not
// nil, receives every entry dropped to make room, after the lock is released.
func NewLRU[K comparable, V any](capacity int, onEvict func(K, V)) (*LRU[K, V], error) {
	if capacity < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: capacity must be positive, got %d", errors.ErrInvalidConfig, capacity),
			"cache", "NewLRU", "check capacity")
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		onEvict:  onEvict,
	}, nil
}

// Get returns the value for key and marks it most recently used
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*entry[K, V]).value, true
}

// Add stores value under key and reports whether another key was evicted
func (c *LRU[K, V]) Add(key K, value V) bool {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return false
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	var oldest *entry[K, V]
	if c.order.Len() > c.capacity {
		oldest = c.unlink(c.order.Back())
	}
	c.mu.Unlock()

	if oldest == nil {
		return false
	}
	c.evictions.Add(1)
	if c.onEvict != nil {
		c.onEvict(oldest.key, oldest.value)
	}
	return true
}

// Remove deletes key without calling onEvict
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if ok {
		c.unlink(el)
	}
	return ok
}

// Purge drops every entry without calling onEvict. Counters are kept.
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
	c.order.Init()
}

func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys lists the keys, most recently used first
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Stats is a point-in-time view of the cache counters
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Len       int    `json:"len"`
	Capacity  int    `json:"capacity"`
}

// HitRatio is hits over lookups, 0 before the first lookup
func (s Stats) HitRatio() float64 {
	lookups := s.Hits + s.Misses
	if lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(lookups)
}

func (c *LRU[K, V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Len:       c.Len(),
		Capacity:  c.capacity,
	}
}

// unlink must be called with mu held
func (c *LRU[K, V]) unlink(el *list.Element) *entry[K, V] {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
	return e
}
