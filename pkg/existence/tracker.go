// Package existence tracks which element ids of a class exist, so that "all
// ids" and "all ids with label X" can be answered without a remote scan once
// the class has been loaded exhaustively.
//
// A root Tracker is shared by every session of a graph. Each session works on
// an overlay whose local additions and removals stay private until Commit
// folds them into the root.
package existence

import (
	"sync"

	"github.com/orneryd/graphsession/pkg/element"
)

type idSet = map[element.ID]struct{}

// Tracker is an id set with a completeness flag, overlaid by a local diff.
// All methods are safe for concurrent use. Locks are always taken overlay
// first, then parent.
type Tracker struct {
	parent *Tracker

	mu       sync.RWMutex
	baseline idSet
	complete bool
	added    idSet
	removed  idSet

	// tombstones holds ids removed by committed diffs while the baseline was
	// incomplete, so a snapshot loaded before the removal cannot bring them
	// back. Persistent ids are never reused.
	tombstones idSet
}

// NewTracker returns an empty root tracker. Nothing is known until
// CompleteLoad is called.
func NewTracker() *Tracker {
	return &Tracker{baseline: make(idSet), added: make(idSet), removed: make(idSet)}
}

// Overlay returns a session tracker layered over t.
func (t *Tracker) Overlay() *Tracker {
	o := NewTracker()
	o.parent = t
	return o
}

// Selector returns baseline ∪ added ∖ removed. When no complete baseline is
// available, it returns false: the caller must ask the remote store, since an
// empty result would not be exhaustive.
func (t *Tracker) Selector() ([]element.ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	// A complete parent is kept current by every committed diff, so it wins
	// over this overlay's own snapshot.
	var (
		base []element.ID
		ok   bool
	)
	if t.parent != nil {
		base, ok = t.parent.Selector()
	}
	if !ok {
		if !t.complete {
			return nil, false
		}
		base = make([]element.ID, 0, len(t.baseline))
		for id := range t.baseline {
			base = append(base, id)
		}
	}

	out := make([]element.ID, 0, len(base)+len(t.added))
	seen := make(idSet, len(base)+len(t.added))
	for _, id := range base {
		if _, gone := t.removed[id]; gone {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for id := range t.added {
		if _, dup := seen[id]; !dup {
			out = append(out, id)
		}
	}
	element.SortIDs(out)
	return out, true
}

// Complete reports whether Selector can answer without the remote store.
func (t *Tracker) Complete() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.complete {
		return true
	}
	return t.parent != nil && t.parent.Complete()
}

// LocalCreation records that id was created in this session. Creating an id
// whose removal is pending retracts the removal.
func (t *Tracker) LocalCreation(id element.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.removed[id]; ok {
		delete(t.removed, id)
		return
	}
	t.added[id] = struct{}{}
}

// LocalRemoval records that id was removed in this session. Removing an id
// that was only ever a local addition retracts the addition.
func (t *Tracker) LocalRemoval(id element.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.added[id]; ok {
		delete(t.added, id)
		return
	}
	t.removed[id] = struct{}{}
}

// CompleteLoad replaces the baseline with an exhaustively loaded id set and
// marks it complete. Ids with a pending local addition are left to the diff.
func (t *Tracker) CompleteLoad(ids []element.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	base := make(idSet, len(ids))
	for _, id := range ids {
		if _, pending := t.added[id]; pending {
			continue
		}
		base[id] = struct{}{}
	}
	t.baseline = base
	t.complete = true
	t.tombstones = nil
}

// Rename replaces a pending transient id with the persistent id it received.
func (t *Tracker) Rename(from, to element.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.added[from]; ok {
		delete(t.added, from)
		t.added[to] = struct{}{}
	}
	if _, ok := t.removed[from]; ok {
		delete(t.removed, from)
		t.removed[to] = struct{}{}
	}
}

// Commit folds the local diff into the baseline. An overlay pushes its
// loaded snapshot, completeness and diff into its parent and starts over
// empty. The snapshot only fills in a parent that is still incomplete; it is
// merged with what the parent learned meanwhile and never replaces it.
func (t *Tracker) Commit() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.parent != nil {
		var loaded idSet
		if t.complete {
			loaded = t.baseline
		}
		t.parent.absorb(loaded, t.added, t.removed)
		t.baseline = make(idSet)
		t.complete = false
	} else {
		t.applyDiff(t.added, t.removed)
	}
	t.added = make(idSet)
	t.removed = make(idSet)
}

// Rollback drops the local diff. A loaded baseline is remote truth and is
// kept.
func (t *Tracker) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.added = make(idSet)
	t.removed = make(idSet)
}

// Pending returns the sizes of the local diff.
func (t *Tracker) Pending() (added, removed int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.added), len(t.removed)
}

func (t *Tracker) absorb(loaded, added, removed idSet) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if loaded != nil && !t.complete {
		for id := range loaded {
			if _, gone := t.tombstones[id]; !gone {
				t.baseline[id] = struct{}{}
			}
		}
		t.complete = true
		t.tombstones = nil
	}
	t.applyDiff(added, removed)
}

// applyDiff must be called with t.mu held.
func (t *Tracker) applyDiff(added, removed idSet) {
	for id := range added {
		t.baseline[id] = struct{}{}
		delete(t.tombstones, id)
	}
	for id := range removed {
		delete(t.baseline, id)
		if !t.complete {
			if t.tombstones == nil {
				t.tombstones = make(idSet)
			}
			t.tombstones[id] = struct{}{}
		}
	}
}
