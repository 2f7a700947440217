package ergodic

import (
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// stamped pairs a cached value with the time its TTL counts from.
type stamped[V any] struct {
	val   V
	stamp time.Time
}

// historyCache is a simplelru cache whose entries also expire once their
// stamp is older than a TTL. Expiry is swept against the caller's clock
// rather than a background timer. It is not safe for concurrent use; the
// owner guards it.
type historyCache[K comparable, V any] struct {
	lru     *simplelru.LRU[K, stamped[V]]
	ttl     time.Duration
	evicted []K
}

func newHistoryCache[K comparable, V any](capacity int, ttl time.Duration) *historyCache[K, V] {
	c := &historyCache[K, V]{ttl: ttl}
	// NewLRU only rejects a non-positive size.
	c.lru, _ = simplelru.NewLRU[K, stamped[V]](max(capacity, 1), func(key K, _ stamped[V]) {
		c.evicted = append(c.evicted, key)
	})
	return c
}

// drain returns the keys removed since the last drain.
func (c *historyCache[K, V]) drain() []K {
	out := c.evicted
	c.evicted = nil
	return out
}

// get returns the value for key and marks it recently used.
func (c *historyCache[K, V]) get(key K) (V, bool) {
	e, ok := c.lru.Get(key)
	return e.val, ok
}

// peek returns the value for key without changing its recency.
func (c *historyCache[K, V]) peek(key K) (V, bool) {
	e, ok := c.lru.Peek(key)
	return e.val, ok
}

// put inserts or updates key with a new stamp and returns any keys evicted
// to stay within capacity.
func (c *historyCache[K, V]) put(key K, val V, stamp time.Time) []K {
	c.lru.Add(key, stamped[V]{val: val, stamp: stamp})
	return c.drain()
}

// expire removes entries whose stamp is older than the TTL and returns
// their keys, least recently used first.
func (c *historyCache[K, V]) expire(now time.Time) []K {
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && now.Sub(e.stamp) > c.ttl {
			c.lru.Remove(key)
		}
	}
	return c.drain()
}

// values returns every value, most recently used first.
func (c *historyCache[K, V]) values() []V {
	keys := c.lru.Keys()
	out := make([]V, 0, len(keys))
	for _, key := range slices.Backward(keys) {
		if e, ok := c.lru.Peek(key); ok {
			out = append(out, e.val)
		}
	}
	return out
}

func (c *historyCache[K, V]) len() int {
	return c.lru.Len()
}

func (c *historyCache[K, V]) clear() {
	c.lru.Purge()
	c.evicted = nil
}
