package existence

import (
	"sort"
	"sync"

	"github.com/orneryd/graphsession/pkg/element"
)

// AllClass is the class key for "every element of this kind".
const AllClass = ""

// Registry holds one Tracker per class ("" for all ids, otherwise a label)
// for one element kind. A root registry is shared; Overlay derives a session
// registry whose trackers overlay the root's.
type Registry struct {
	parent *Registry

	mu       sync.Mutex
	trackers map[string]*Tracker
}

// NewRegistry returns an empty root registry.
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*Tracker)}
}

// Overlay returns a session registry over r.
func (r *Registry) Overlay() *Registry {
	return &Registry{parent: r, trackers: make(map[string]*Tracker)}
}

// Tracker returns the tracker for class, creating it on first use.
func (r *Registry) Tracker(class string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trackers[class]; ok {
		return t
	}
	var t *Tracker
	if r.parent != nil {
		t = r.parent.Tracker(class).Overlay()
	} else {
		t = NewTracker()
	}
	r.trackers[class] = t
	return t
}

// Classes returns the classes with a tracker, sorted.
func (r *Registry) Classes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	classes := make([]string, 0, len(r.trackers))
	for c := range r.trackers {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}

// Created records a local creation in the all-class and each label class.
func (r *Registry) Created(id element.ID, labels []string) {
	r.Tracker(AllClass).LocalCreation(id)
	for _, l := range labels {
		r.Tracker(l).LocalCreation(id)
	}
}

// Removed records a local removal in the all-class and each label class.
func (r *Registry) Removed(id element.ID, labels []string) {
	r.Tracker(AllClass).LocalRemoval(id)
	for _, l := range labels {
		r.Tracker(l).LocalRemoval(id)
	}
}

// Relabeled moves id between label classes.
func (r *Registry) Relabeled(id element.ID, from, to []string) {
	old := make(map[string]struct{}, len(from))
	for _, l := range from {
		old[l] = struct{}{}
	}
	for _, l := range to {
		if _, ok := old[l]; ok {
			delete(old, l)
			continue
		}
		r.Tracker(l).LocalCreation(id)
	}
	for l := range old {
		r.Tracker(l).LocalRemoval(id)
	}
}

// Rename applies a transient-to-persistent id change to every tracker.
func (r *Registry) Rename(from, to element.ID) {
	for _, t := range r.snapshot() {
		t.Rename(from, to)
	}
}

// Commit commits every tracker.
func (r *Registry) Commit() {
	for _, t := range r.snapshot() {
		t.Commit()
	}
}

// Rollback rolls back every tracker.
func (r *Registry) Rollback() {
	for _, t := range r.snapshot() {
		t.Rollback()
	}
}

func (r *Registry) snapshot() []*Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts := make([]*Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		ts = append(ts, t)
	}
	return ts
}
