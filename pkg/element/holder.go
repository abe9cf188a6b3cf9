package element

import "sync"

// Value is implemented by immutable element states. Equal must be a value
// comparison; holders rely on it to avoid dirtying an element with an
// unchanged value.
type Value[S any] interface {
	Equal(other S) bool
}

// StateHolder pairs an immutable element state with its sync state.
// Holders are never mutated; every transition returns a new holder, or the
// receiver itself when nothing changed.
type StateHolder[S Value[S]] struct {
	state SyncState
	value S
}

// NewStateHolder returns a holder for value in state.
func NewStateHolder[S Value[S]](state SyncState, value S) *StateHolder[S] {
	return &StateHolder[S]{state: state, value: value}
}

// State returns the sync state.
func (h *StateHolder[S]) State() SyncState { return h.state }

// Value returns the element state.
func (h *StateHolder[S]) Value() S { return h.value }

// Modify returns a holder carrying v. If v equals the held value the receiver
// is returned unchanged, so callers can detect a no-op by identity.
func (h *StateHolder[S]) Modify(v S) *StateHolder[S] {
	if h.value.Equal(v) {
		return h
	}
	return &StateHolder[S]{state: h.state.AsModified(), value: v}
}

// Delete returns a holder in the deleted (or discarded) state.
func (h *StateHolder[S]) Delete() *StateHolder[S] {
	return &StateHolder[S]{state: h.state.AsDeleted(), value: h.value}
}

// Synced returns a holder carrying v whose state reflects a completed commit.
func (h *StateHolder[S]) Synced(v S) *StateHolder[S] {
	return &StateHolder[S]{state: h.state.AsSynchronized(), value: v}
}

// DualStateHolder keeps the last committed holder of one element next to the
// current one. All methods are safe for concurrent use; operations on one
// holder are linearized.
type DualStateHolder[S Value[S]] struct {
	mu        sync.Mutex
	committed *StateHolder[S]
	current   *StateHolder[S]
}

// NewDualStateHolder seeds both sides with initial. A transient element has
// nothing to roll back to, so its committed side starts out discarded.
func NewDualStateHolder[S Value[S]](initial *StateHolder[S]) *DualStateHolder[S] {
	committed := initial
	if initial.state == Transient {
		committed = &StateHolder[S]{state: Discarded, value: initial.value}
	}
	return &DualStateHolder[S]{committed: committed, current: initial}
}

// Current returns the current holder.
func (d *DualStateHolder[S]) Current() *StateHolder[S] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Committed returns the last committed holder.
func (d *DualStateHolder[S]) Committed() *StateHolder[S] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed
}

// Snapshot returns both holders read atomically.
func (d *DualStateHolder[S]) Snapshot() (committed, current *StateHolder[S]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed, d.current
}

// Update applies fn to the current value. It reports whether the current
// holder changed. Removed elements cannot be updated.
func (d *DualStateHolder[S]) Update(fn func(S) (S, error)) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current.state.Removed() {
		return false, ErrDeleted
	}
	next, err := fn(d.current.value)
	if err != nil {
		return false, err
	}
	h := d.current.Modify(next)
	if h == d.current {
		return false, nil
	}
	d.current = h
	return true, nil
}

// Delete marks the current holder deleted and returns the value it held.
func (d *DualStateHolder[S]) Delete() (S, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current.state.Removed() {
		var zero S
		return zero, ErrDeleted
	}
	d.current = d.current.Delete()
	return d.current.value, nil
}

// Commit calls f with the committed and current holders and, if it succeeds,
// re-baselines: current becomes current.Synced(result) and committed becomes
// that same holder. f runs under this holder's lock only, which serializes it
// against other operations on the same element. On error nothing changes.
func (d *DualStateHolder[S]) Commit(f func(committed, current *StateHolder[S]) (S, error)) (*StateHolder[S], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := f(d.committed, d.current)
	if err != nil {
		return d.current, err
	}
	d.current = d.current.Synced(v)
	d.committed = d.current
	return d.current, nil
}

// Rollback discards the current holder in favour of the committed one.
func (d *DualStateHolder[S]) Rollback() *StateHolder[S] {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.current = d.committed
	return d.current
}

// Rebase rewrites the value on both sides without touching sync states. It is
// used to fold in facts that do not constitute a local change, such as an
// edge id assigned by the remote store.
func (d *DualStateHolder[S]) Rebase(fn func(S) S) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	changed := false
	if v := fn(d.committed.value); !d.committed.value.Equal(v) {
		same := d.committed == d.current
		d.committed = &StateHolder[S]{state: d.committed.state, value: v}
		if same {
			d.current = d.committed
			return true
		}
		changed = true
	}
	if v := fn(d.current.value); !d.current.value.Equal(v) {
		d.current = &StateHolder[S]{state: d.current.state, value: v}
		changed = true
	}
	return changed
}
