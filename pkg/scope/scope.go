// Package scope implements the per-session working set of graph elements of
// one kind. A Scope serves reads from its working set, then the session cache,
// then the remote store; it keeps every mutation in memory and defers all
// remote writes to Commit.
//
// Lock order: Scope.mu is never held while calling the remote handler or while
// holding an element's holder lock. A commit pass holds one element's holder
// lock for the duration of that element's remote call and nothing else.
package scope

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/orneryd/graphsession/pkg/cache"
	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/existence"
	"github.com/orneryd/graphsession/pkg/metrics"
)

// Options configures a Scope.
type Options[S State[S]] struct {
	// Kind names the element kind in errors, logs and metrics ("vertex").
	Kind string
	// Handler reaches the remote store. Required.
	Handler RemoteElementHandler[S]
	// Statements builds commit commands. Required.
	Statements StatementFactory[S]
	// Cache is the session layer of the two-level cache. Optional.
	Cache *cache.Hierarchical[int64, S]
	// Existence is the session's tracker registry for this kind. Optional;
	// a private one is used when nil.
	Existence *existence.Registry
	// Rebind rewrites the value of a transient element right before its
	// insert, e.g. to replace transient endpoint ids. Optional.
	Rebind func(S) S
	Logger zerolog.Logger
}

// Scope is the working set {id -> element} for one element kind within one
// session. It is safe for concurrent use.
type Scope[S State[S]] struct {
	kind       string
	handler    RemoteElementHandler[S]
	statements StatementFactory[S]
	cache      *cache.Hierarchical[int64, S]
	existence  *existence.Registry
	rebind     func(S) S
	log        zerolog.Logger

	mu       sync.RWMutex
	elements map[element.ID]*Element[S]
	renamed  map[element.ID]element.ID
	seq      uint64

	epoch atomic.Uint64
}

// New creates an empty scope.
func New[S State[S]](opts Options[S]) (*Scope[S], error) {
	if opts.Handler == nil {
		return nil, errors.New("scope: remote handler is required")
	}
	if opts.Statements == nil {
		return nil, errors.New("scope: statement factory is required")
	}
	kind := opts.Kind
	if kind == "" {
		kind = "element"
	}
	reg := opts.Existence
	if reg == nil {
		reg = existence.NewRegistry()
	}
	return &Scope[S]{
		kind:       kind,
		handler:    opts.Handler,
		statements: opts.Statements,
		cache:      opts.Cache,
		existence:  reg,
		rebind:     opts.Rebind,
		log:        opts.Logger.With().Str("component", "scope").Str("kind", kind).Logger(),
		elements:   make(map[element.ID]*Element[S]),
		renamed:    make(map[element.ID]element.ID),
	}, nil
}

// Kind returns the element kind name.
func (s *Scope[S]) Kind() string { return s.kind }

// Existence returns the scope's tracker registry.
func (s *Scope[S]) Existence() *existence.Registry { return s.existence }

// Add inserts a locally created element in the transient state.
func (s *Scope[S]) Add(value S) *Element[S] {
	id := element.NewTransientID()

	s.mu.Lock()
	s.seq++
	e := newElement(s.seq, id, element.NewStateHolder(element.Transient, value))
	s.elements[id] = e
	s.mu.Unlock()

	s.existence.Created(id, value.Labels())
	return e
}

// Resolve maps a transient id that has since been inserted to its persistent
// id. Other ids are returned unchanged.
func (s *Scope[S]) Resolve(id element.ID) element.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(id)
}

func (s *Scope[S]) resolveLocked(id element.ID) element.ID {
	if to, ok := s.renamed[id]; ok {
		return to
	}
	return id
}

// Renamed returns a copy of every transient-to-persistent id change made by
// commits of this scope.
func (s *Scope[S]) Renamed() map[element.ID]element.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.renamed)
}

// Get returns the working-set element for id, including removed ones.
func (s *Scope[S]) Get(id element.ID) (*Element[S], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elements[s.resolveLocked(id)]
	return e, ok
}

// Len returns the working-set size.
func (s *Scope[S]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// Elements returns the working set in insertion order.
func (s *Scope[S]) Elements() []*Element[S] {
	s.mu.RLock()
	out := make([]*Element[S], 0, len(s.elements))
	for _, e := range s.elements {
		out = append(out, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Element[S]) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

// GetOrLoad resolves ids against the working set, then the cache, then the
// remote store in one batched call. Elements removed in this session and ids
// unknown remotely are omitted. The result follows the order of ids.
func (s *Scope[S]) GetOrLoad(ctx context.Context, ids ...element.ID) ([]*Element[S], error) {
	resolved := make([]element.ID, len(ids))
	var missing []element.ID
	seen := make(map[element.ID]struct{})

	s.mu.RLock()
	for i, id := range ids {
		id = s.resolveLocked(id)
		resolved[i] = id
		if _, ok := s.elements[id]; ok || !id.IsPersistent() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	s.mu.RUnlock()

	if len(missing) > 0 {
		if err := s.load(ctx, missing); err != nil {
			return nil, err
		}
	}

	out := make([]*Element[S], 0, len(resolved))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range resolved {
		e, ok := s.elements[id]
		if !ok || e.Removed() {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// GetOrLoadOne is GetOrLoad for one id. It returns ErrNotFound when the id
// does not resolve and element.ErrDeleted when it was removed in this session.
func (s *Scope[S]) GetOrLoadOne(ctx context.Context, id element.ID) (*Element[S], error) {
	if e, ok := s.Get(id); ok {
		if e.Removed() {
			return nil, element.ErrDeleted
		}
		return e, nil
	}
	found, err := s.GetOrLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s %s: %w", s.kind, id, ErrNotFound)
	}
	return found[0], nil
}

func (s *Scope[S]) load(ctx context.Context, ids []element.ID) error {
	remote := ids[:0:0]
	for _, id := range ids {
		if s.cache != nil {
			if v, ok := s.cache.Get(id.Value()); ok {
				s.adopt(id, v)
				continue
			}
		}
		remote = append(remote, id)
	}
	if len(remote) == 0 {
		return nil
	}

	start := time.Now()
	values, err := s.handler.GetAll(ctx, remote)
	s.observe("get_all", start, err)
	if err != nil {
		return fmt.Errorf("load %d %s elements: %w", len(remote), s.kind, err)
	}
	for _, id := range remote {
		v, ok := values[id]
		if !ok {
			continue
		}
		s.adopt(id, v)
		if s.cache != nil {
			s.cache.Put(id.Value(), v)
		}
	}
	s.log.Debug().Int("requested", len(remote)).Int("found", len(values)).Msg("loaded elements")
	return nil
}

// adopt adds a synchronous element unless another goroutine got there first.
func (s *Scope[S]) adopt(id element.ID, v S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elements[id]; ok {
		return
	}
	s.seq++
	s.elements[id] = newElement(s.seq, id, element.NewStateHolder(element.Synchronous, v))
}

// GetOrLoadByLabel returns every element carrying any of labels, or every
// element when labels is empty. Candidate ids come from the existence
// trackers when they are complete, otherwise from one remote id query per
// label whose result completes the tracker.
func (s *Scope[S]) GetOrLoadByLabel(ctx context.Context, labels ...string) ([]*Element[S], error) {
	classes := labels
	if len(classes) == 0 {
		classes = []string{existence.AllClass}
	}

	candidates := make(map[element.ID]struct{})
	for _, class := range classes {
		ids, err := s.IDs(ctx, class)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			candidates[id] = struct{}{}
		}
	}

	ordered := make([]element.ID, 0, len(candidates))
	for id := range candidates {
		ordered = append(ordered, id)
	}
	element.SortIDs(ordered)

	found, err := s.GetOrLoad(ctx, ordered...)
	if err != nil || len(labels) == 0 {
		return found, err
	}
	// a cached or loaded state may disagree with a stale tracker entry
	out := found[:0]
	for _, e := range found {
		if hasAny(e.Value().Labels(), labels) {
			out = append(out, e)
		}
	}
	return out, nil
}

// IDs returns the ids of class, including this session's uncommitted changes.
func (s *Scope[S]) IDs(ctx context.Context, class string) ([]element.ID, error) {
	tracker := s.existence.Tracker(class)
	if ids, ok := tracker.Selector(); ok {
		metrics.TrackerFastPathTotal.WithLabelValues(s.kind, "hit").Inc()
		return ids, nil
	}
	metrics.TrackerFastPathTotal.WithLabelValues(s.kind, "miss").Inc()

	start := time.Now()
	remote, err := s.handler.QueryIDs(ctx, Filter{Label: class})
	s.observe("query_ids", start, err)
	if err != nil {
		return nil, fmt.Errorf("query %s ids (label %q): %w", s.kind, class, err)
	}
	tracker.CompleteLoad(remote)
	ids, _ := tracker.Selector()
	return ids, nil
}

// Update applies fn to the current value of the working-set element id.
func (s *Scope[S]) Update(id element.ID, fn func(S) (S, error)) error {
	e, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%s %s: %w", s.kind, id, ErrNotFound)
	}
	before := e.Value().Labels()
	changed, err := e.holder.Update(fn)
	if err != nil || !changed {
		return err
	}
	if after := e.Value().Labels(); !slices.Equal(before, after) {
		s.existence.Relabeled(e.ID(), before, after)
	}
	return nil
}

// Delete marks the working-set element id deleted and returns its last value.
func (s *Scope[S]) Delete(id element.ID) (S, error) {
	e, ok := s.Get(id)
	if !ok {
		var zero S
		return zero, fmt.Errorf("%s %s: %w", s.kind, id, ErrNotFound)
	}
	v, err := e.holder.Delete()
	if err != nil {
		return v, err
	}
	s.existence.Removed(e.ID(), v.Labels())
	return v, nil
}

// Rebase rewrites both sides of an element without changing its sync state,
// refreshing the cache when the element is synchronous.
func (s *Scope[S]) Rebase(id element.ID, fn func(S) S) bool {
	e, ok := s.Get(id)
	if !ok {
		return false
	}
	if !e.holder.Rebase(fn) {
		return false
	}
	if h := e.Current(); h.State() == element.Synchronous && s.cache != nil {
		if id := e.ID(); id.IsPersistent() {
			s.cache.Put(id.Value(), h.Value())
		}
	}
	return true
}

// Commit walks the working set in insertion order and brings every element
// in sync with the remote store: build the owed command, execute it,
// re-baseline. Each element is committed at most once per call. The first
// failure stops the pass and is returned as a *CommitError; elements before it
// stay committed.
func (s *Scope[S]) Commit(ctx context.Context) error {
	epoch := s.epoch.Add(1)
	var committed int
	for _, e := range s.Elements() {
		if !e.claim(epoch) {
			continue
		}
		if err := s.commitElement(ctx, e); err != nil {
			s.log.Warn().Err(err).Int("committed", committed).Msg("commit stopped")
			return err
		}
		committed++
	}
	s.log.Debug().Int("elements", committed).Msg("committed")
	return nil
}

func (s *Scope[S]) commitElement(ctx context.Context, e *Element[S]) error {
	id := e.ID()
	newID := id
	var action element.Action

	h, err := e.holder.Commit(func(committed, current *element.StateHolder[S]) (S, error) {
		action = current.State().Action()
		value := current.Value()
		if action == element.ActionNone {
			return value, nil
		}
		if action == element.ActionInsert && s.rebind != nil {
			value = s.rebind(value)
			current = element.NewStateHolder(current.State(), value)
		}

		cmd, ok := s.statements.Statement(id, committed, current)
		if !ok {
			if action == element.ActionInsert {
				return value, ErrNoStatement
			}
			return value, nil
		}

		start := time.Now()
		var err error
		switch action {
		case element.ActionInsert:
			var assigned element.ID
			assigned, err = s.handler.Create(ctx, cmd, value)
			if err == nil && !assigned.IsPersistent() {
				err = fmt.Errorf("%w: insert returned id %s", ErrMalformedResult, assigned)
			}
			newID = assigned
		case element.ActionUpdate:
			err = s.handler.Update(ctx, cmd, id, committed.Value(), value)
		case element.ActionDelete:
			err = s.handler.Delete(ctx, cmd, id)
		}
		s.observe(action.String(), start, err)
		return value, err
	})
	if err != nil {
		metrics.CommitFailuresTotal.WithLabelValues(s.kind, action.String()).Inc()
		return &CommitError{Kind: s.kind, ID: id, Action: action, Err: err}
	}
	metrics.CommitActionsTotal.WithLabelValues(s.kind, action.String()).Inc()

	s.settle(e, id, newID, h)
	return nil
}

// settle updates the working set, trackers and cache after one element
// committed.
func (s *Scope[S]) settle(e *Element[S], oldID, newID element.ID, h *element.StateHolder[S]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.State() == element.Discarded {
		delete(s.elements, oldID)
		if oldID.IsPersistent() && s.cache != nil {
			s.cache.Remove(oldID.Value())
			s.cache.RemoveFromParent(oldID.Value())
		}
		return
	}

	if newID != oldID {
		e.setID(newID)
		delete(s.elements, oldID)
		s.elements[newID] = e
		s.renamed[oldID] = newID
		s.existence.Rename(oldID, newID)
	}
	if s.cache != nil && newID.IsPersistent() {
		s.cache.Put(newID.Value(), h.Value())
	}
}

// Rollback reverts every element to its committed state and drops those that
// never existed remotely. The session cache layer and tracker diffs are
// discarded.
func (s *Scope[S]) Rollback() {
	// Holder locks can be held across a remote call by a concurrent Commit,
	// so they are never taken under s.mu.
	var discarded []*Element[S]
	for _, e := range s.Elements() {
		if h := e.holder.Rollback(); h.State() == element.Discarded {
			discarded = append(discarded, e)
		}
	}
	if len(discarded) > 0 {
		s.mu.Lock()
		for _, e := range discarded {
			if cur, ok := s.elements[e.ID()]; ok && cur == e {
				delete(s.elements, e.ID())
			}
		}
		s.mu.Unlock()
	}

	s.existence.Rollback()
	if s.cache != nil {
		s.cache.Clear()
	}
	s.log.Debug().Msg("rolled back")
}

// Flush empties the working set without touching remote state.
func (s *Scope[S]) Flush() {
	s.mu.Lock()
	s.elements = make(map[element.ID]*Element[S])
	s.renamed = make(map[element.ID]element.ID)
	s.mu.Unlock()
}

func (s *Scope[S]) observe(op string, start time.Time, err error) {
	metrics.RemoteCallDuration.WithLabelValues(s.kind, op).Observe(time.Since(start).Seconds())
	metrics.RemoteCallsTotal.WithLabelValues(s.kind, op, metrics.Result(err)).Inc()
}

func hasAny(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
