package cache

import (
	"sync"

	"github.com/orneryd/graphsession/pkg/metrics"
)

// Hierarchical is one session's private layer over a Global cache.
//
// Reads fall through to the parent; Put and Remove touch only the local layer
// until Commit copies the local entries into the parent. It is safe for
// concurrent use by the goroutines of one session.
type Hierarchical[K comparable, V any] struct {
	parent *Global[K, V]

	mu    sync.RWMutex
	local map[K]V
}

// NewHierarchical returns an empty session layer over parent.
func NewHierarchical[K comparable, V any](parent *Global[K, V]) *Hierarchical[K, V] {
	return &Hierarchical[K, V]{parent: parent, local: make(map[K]V)}
}

// Parent returns the global layer.
func (h *Hierarchical[K, V]) Parent() *Global[K, V] { return h.parent }

// Get returns the local value for k if present, else the global one.
func (h *Hierarchical[K, V]) Get(k K) (V, bool) {
	h.mu.RLock()
	v, ok := h.local[k]
	h.mu.RUnlock()
	if ok {
		metrics.CacheLookupsTotal.WithLabelValues(h.parent.name, "local").Inc()
		return v, true
	}
	if v, ok = h.parent.Get(k); ok {
		metrics.CacheLookupsTotal.WithLabelValues(h.parent.name, "global").Inc()
		return v, true
	}
	metrics.CacheLookupsTotal.WithLabelValues(h.parent.name, "none").Inc()
	return v, false
}

// Local returns the value for k in the local layer only.
func (h *Hierarchical[K, V]) Local(k K) (V, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.local[k]
	return v, ok
}

// Put writes v to the local layer.
func (h *Hierarchical[K, V]) Put(k K, v V) {
	h.mu.Lock()
	h.local[k] = v
	h.mu.Unlock()
}

// Remove deletes k from the local layer.
func (h *Hierarchical[K, V]) Remove(k K) {
	h.mu.Lock()
	delete(h.local, k)
	h.mu.Unlock()
}

// RemoveFromParent evicts keys from the global layer directly, so a session
// that never held them locally cannot read a stale value.
func (h *Hierarchical[K, V]) RemoveFromParent(keys ...K) {
	h.parent.Remove(keys...)
}

// Len returns the number of local entries.
func (h *Hierarchical[K, V]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.local)
}

// Commit promotes every local entry into the global layer and empties the
// local layer. It returns the number of promoted entries.
func (h *Hierarchical[K, V]) Commit() int {
	h.mu.Lock()
	pending := h.local
	h.local = make(map[K]V, len(pending))
	h.mu.Unlock()

	for k, v := range pending {
		h.parent.Put(k, v)
	}
	if n := len(pending); n > 0 {
		metrics.CachePromotionsTotal.WithLabelValues(h.parent.name).Add(float64(n))
	}
	return len(pending)
}

// Clear discards the local layer. The global layer is untouched.
func (h *Hierarchical[K, V]) Clear() {
	h.mu.Lock()
	h.local = make(map[K]V)
	h.mu.Unlock()
}
