// Package ttlcache implements the bounded, time-limited, insertion-ordered
// cache shared across filesystem-adapter callbacks (spec §3/§4.2), grounded
// on the list+map LRU shape of perkeep's pkg/lru, adapted to insertion-order
// eviction with an explicit TTL and a reader-writer lock.
package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	insertion time.Time
}

// Cache is a generic, size-bounded, TTL-checked cache safe for concurrent
// use by many callers. Eviction on overflow always removes the
// oldest-inserted entry (spec §3 cache entry invariant 2), not the
// least-recently-read one.
type Cache[K comparable, V any] struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	order *list.List // of *entry[K,V], front = newest insertion
	index map[K]*list.Element
}

// New creates a cache holding at most maxSize entries, each valid for ttl
// after insertion.
func New[K comparable, V any](maxSize int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		order:   list.New(),
		index:   make(map[K]*list.Element),
	}
}

// Put inserts or refreshes k. If the cache is full and k is new, the
// oldest-inserted entry is evicted first (spec §4.2). A repeated key is
// moved to the front so a hot key isn't evicted prematurely, per the
// recommendation in spec §4.2 (this doesn't affect correctness, only which
// key gets evicted next).
func (c *Cache[K, V]) Put(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize <= 0 {
		return
	}

	now := c.now()
	if el, ok := c.index[k]; ok {
		el.Value.(*entry[K, V]).value = v
		el.Value.(*entry[K, V]).insertion = now
		c.order.MoveToFront(el)
		return
	}

	if len(c.index) >= c.maxSize {
		c.evictOldestLocked()
	}

	el := c.order.PushFront(&entry[K, V]{key: k, value: v, insertion: now})
	c.index[k] = el
}

// TryGet returns the cached value for k if present and not expired. Expired
// entries are not proactively removed (spec §4.2 permits this).
func (c *Cache[K, V]) TryGet(k K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	el, ok := c.index[k]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[K, V])
	if c.now().Sub(e.insertion) >= c.ttl {
		return zero, false
	}
	return e.value, true
}

// Erase removes k if present.
func (c *Cache[K, V]) Erase(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[k]; ok {
		c.order.Remove(el)
		delete(c.index, k)
	}
}

// Len reports the current entry count, expired or not.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// note: must hold c.mu for writing.
func (c *Cache[K, V]) evictOldestLocked() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.order.Remove(oldest)
	delete(c.index, oldest.Value.(*entry[K, V]).key)
}
