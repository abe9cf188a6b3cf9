package scope

import (
	"sync"
	"sync/atomic"

	"github.com/orneryd/graphsession/pkg/element"
)

// Element is one entry of a scope's working set: an id plus the dual state
// holder for it. The id changes once, when a transient element is inserted.
type Element[S State[S]] struct {
	seq    uint64
	holder *element.DualStateHolder[S]

	mu sync.RWMutex
	id element.ID

	// last commit pass that visited this element
	epoch atomic.Uint64
}

func newElement[S State[S]](seq uint64, id element.ID, initial *element.StateHolder[S]) *Element[S] {
	return &Element[S]{seq: seq, id: id, holder: element.NewDualStateHolder(initial)}
}

// ID returns the element id.
func (e *Element[S]) ID() element.ID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.id
}

func (e *Element[S]) setID(id element.ID) {
	e.mu.Lock()
	e.id = id
	e.mu.Unlock()
}

// State returns the current sync state.
func (e *Element[S]) State() element.SyncState {
	return e.holder.Current().State()
}

// Value returns the current element state.
func (e *Element[S]) Value() S {
	return e.holder.Current().Value()
}

// Committed returns the last committed holder.
func (e *Element[S]) Committed() *element.StateHolder[S] {
	return e.holder.Committed()
}

// Current returns the current holder.
func (e *Element[S]) Current() *element.StateHolder[S] {
	return e.holder.Current()
}

// Removed reports whether the element was deleted in this session.
func (e *Element[S]) Removed() bool {
	return e.State().Removed()
}

// claim marks the element as visited by commit pass epoch. It returns false if
// this or a later pass already visited it.
func (e *Element[S]) claim(epoch uint64) bool {
	for {
		seen := e.epoch.Load()
		if seen >= epoch {
			return false
		}
		if e.epoch.CompareAndSwap(seen, epoch) {
			return true
		}
	}
}
