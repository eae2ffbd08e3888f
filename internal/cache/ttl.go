// Package cache provides the bounded TTL cache used by the schema registry,
// the tenant lookup and the remote-config clients, plus a cached HTTP client
// built on it.
//
// A lookup failure is cached too, under a separate (shorter) TTL, so a dead
// upstream is retried at a bounded rate instead of on every payload.
package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

type entry[V any] struct {
	value    V
	negative bool
	expires  time.Time
}

// TTL is a bounded LRU cache with per-entry expiry. Negative entries expire
// after the shorter NoneTTL. The clock is injected so expiry is testable.
type TTL[K comparable, V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[K, entry[V]]
	clock   clock.Clock
	ttl     time.Duration
	noneTTL time.Duration
}

// NewTTL builds a cache holding up to size entries. noneTTL bounds negative
// entries; pass 0 to reuse ttl.
func NewTTL[K comparable, V any](size int, ttl, noneTTL time.Duration, clk clock.Clock) *TTL[K, V] {
	if noneTTL <= 0 {
		noneTTL = ttl
	}
	if clk == nil {
		clk = clock.New()
	}
	entries, err := lru.New[K, entry[V]](size)
	if err != nil {
		panic(err)
	}
	return &TTL[K, V]{entries: entries, clock: clk, ttl: ttl, noneTTL: noneTTL}
}

// Get returns the cached value for key. negative reports a cached failure;
// ok is false when the key is absent or expired.
func (c *TTL[K, V]) Get(key K) (value V, negative, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries.Get(key)
	if !found {
		return value, false, false
	}
	if !c.clock.Now().Before(e.expires) {
		c.entries.Remove(key)
		return value, false, false
	}
	return e.value, e.negative, true
}

// Set stores a successful lookup.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, entry[V]{value: value, expires: c.clock.Now().Add(c.ttl)})
}

// SetNegative records a failed lookup under the shorter TTL.
func (c *TTL[K, V]) SetNegative(key K) {
	var zero V
	c.SetNegativeValue(key, zero)
}

// SetNegativeValue records a failed lookup that still carries a value, so
// callers can replay the reason for the failure until the entry expires.
func (c *TTL[K, V]) SetNegativeValue(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, entry[V]{value: value, negative: true, expires: c.clock.Now().Add(c.noneTTL)})
}

// Len returns the number of stored entries, expired ones included.
func (c *TTL[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}
