// Package cache implements the two-level element cache: a Global layer shared
// by every session of one graph, and a Hierarchical session layer over it
// whose writes stay private until Commit promotes them.
//
// Invariants:
//   - Values are immutable element states; the cache stores and returns them
//     by reference and never copies or merges them.
//   - Promotion is last-write-wins per key. Two sessions promoting the same key
//     concurrently leave exactly one of the two values, never a mix.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/orneryd/graphsession/pkg/metrics"
)

// DefaultCapacity is used when a Global cache is created with capacity <= 0.
const DefaultCapacity = 100_000

// Global is the long-lived layer shared across sessions. It is bounded by an
// LRU policy and safe for concurrent use.
type Global[K comparable, V any] struct {
	name string
	lru  *lru.Cache[K, V]

	mu     sync.RWMutex
	closed bool
}

// NewGlobal creates a global layer holding at most capacity entries.
func NewGlobal[K comparable, V any](name string, capacity int) (*Global[K, V], error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[K, V](capacity)
	if err != nil {
		return nil, err
	}
	return &Global[K, V]{name: name, lru: c}, nil
}

// Name returns the metrics name of the cache.
func (g *Global[K, V]) Name() string { return g.name }

// Get returns the value for k.
func (g *Global[K, V]) Get(k K) (V, bool) {
	return g.lru.Get(k)
}

// Peek returns the value for k without touching recency.
func (g *Global[K, V]) Peek(k K) (V, bool) {
	return g.lru.Peek(k)
}

// Put stores v under k, replacing any previous value. A closed cache ignores
// writes.
func (g *Global[K, V]) Put(k K, v V) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return
	}
	if evicted := g.lru.Add(k, v); evicted {
		metrics.CacheEvictionsTotal.WithLabelValues(g.name, "capacity").Inc()
	}
}

// Remove evicts keys.
func (g *Global[K, V]) Remove(keys ...K) {
	for _, k := range keys {
		if g.lru.Remove(k) {
			metrics.CacheEvictionsTotal.WithLabelValues(g.name, "deleted").Inc()
		}
	}
}

// Len returns the number of cached entries.
func (g *Global[K, V]) Len() int {
	return g.lru.Len()
}

// Keys returns the cached keys, oldest first.
func (g *Global[K, V]) Keys() []K {
	return g.lru.Keys()
}

// Purge drops every entry.
func (g *Global[K, V]) Purge() {
	g.lru.Purge()
}

// Close purges the cache and makes later writes no-ops.
func (g *Global[K, V]) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.lru.Purge()
}
