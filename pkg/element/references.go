package element

import (
	"slices"
)

// Direction selects the incident edges of a vertex.
type Direction uint8

const (
	Out Direction = iota + 1
	In
	Both
)

func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	case Both:
		return "both"
	default:
		return "invalid"
	}
}

// ParseDirection accepts "out", "in" and "both".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "out", "OUT":
		return Out, nil
	case "in", "IN":
		return In, nil
	case "both", "BOTH":
		return Both, nil
	}
	return 0, ErrInvalidDirection
}

type idSet map[ID]struct{}

// References is what a session knows about the edges incident to one vertex
// in one direction.
//
// knownLabels == nil means the set of labels with edges is itself unknown;
// a non-nil knownLabels means exactly those labels have edges. A label
// present in edges always carries a complete id set for that label, possibly
// empty, which is different from a label that was never queried.
//
// References are immutable. The With* methods return the receiver itself
// when the change is a no-op.
type References struct {
	knownLabels map[string]struct{}
	edges       map[string]idSet
}

var emptyReferences = &References{edges: map[string]idSet{}}

// NewReferences returns references with nothing known.
func NewReferences() *References {
	return emptyReferences
}

// NewResolvedReferences returns references that know the full edge map m,
// the same as NewReferences().WithAllResolvedEdges(m).
func NewResolvedReferences(m map[string][]ID) *References {
	return NewReferences().WithAllResolvedEdges(m)
}

// Get returns the known edge ids for label, sorted, and whether the label has
// been resolved.
func (r *References) Get(label string) ([]ID, bool) {
	set, ok := r.edges[label]
	if !ok {
		return nil, false
	}
	return sortedIDs(set), true
}

// Lookup is Get plus the inference that a label outside a fully known label
// set has no edges.
func (r *References) Lookup(label string) ([]ID, bool) {
	if ids, ok := r.Get(label); ok {
		return ids, true
	}
	if r.knownLabels != nil {
		if _, ok := r.knownLabels[label]; !ok {
			return nil, true
		}
	}
	return nil, false
}

// AllKnown reports whether every label with edges is known.
func (r *References) AllKnown() bool {
	return r.knownLabels != nil
}

// KnownLabels returns the fully known label set, or false when unknown.
func (r *References) KnownLabels() ([]string, bool) {
	if r.knownLabels == nil {
		return nil, false
	}
	labels := make([]string, 0, len(r.knownLabels))
	for l := range r.knownLabels {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels, true
}

// All returns every known edge id when all labels are known.
func (r *References) All() ([]ID, bool) {
	if r.knownLabels == nil {
		return nil, false
	}
	all := make(idSet)
	for l := range r.knownLabels {
		for id := range r.edges[l] {
			all[id] = struct{}{}
		}
	}
	return sortedIDs(all), true
}

// WithNewEdge records a locally created edge. It only extends knowledge that
// already exists: a label that was never resolved stays unresolved.
func (r *References) WithNewEdge(label string, id ID) *References {
	if set, ok := r.edges[label]; ok {
		if _, has := set[id]; has {
			return r
		}
		next := r.cloneEdges()
		grown := cloneSet(set)
		grown[id] = struct{}{}
		next[label] = grown
		known := r.knownLabels
		if known != nil {
			if _, ok := known[label]; !ok {
				known = cloneLabels(known)
				known[label] = struct{}{}
			}
		}
		return &References{knownLabels: known, edges: next}
	}
	if r.knownLabels == nil {
		return r
	}
	next := r.cloneEdges()
	next[label] = idSet{id: {}}
	known := cloneLabels(r.knownLabels)
	known[label] = struct{}{}
	return &References{knownLabels: known, edges: next}
}

// WithAllResolvedEdges replaces all knowledge with m, the result of an
// unfiltered query.
func (r *References) WithAllResolvedEdges(m map[string][]ID) *References {
	known := make(map[string]struct{}, len(m))
	edges := make(map[string]idSet, len(m))
	for l, ids := range m {
		known[l] = struct{}{}
		edges[l] = toSet(ids)
	}
	return &References{knownLabels: known, edges: edges}
}

// WithPartialResolvedEdges merges the complete edge sets of the labels in m.
// Whether other labels exist stays unknown unless it was already known.
func (r *References) WithPartialResolvedEdges(m map[string][]ID) *References {
	if len(m) == 0 {
		return r
	}
	edges := r.cloneEdges()
	for l, ids := range m {
		edges[l] = toSet(ids)
	}
	known := r.knownLabels
	if known != nil {
		known = cloneLabels(known)
		for l := range m {
			known[l] = struct{}{}
		}
	}
	return &References{knownLabels: known, edges: edges}
}

// WithRemovedEdges drops ids from every label.
func (r *References) WithRemovedEdges(ids []ID) *References {
	var next map[string]idSet
	for l, set := range r.edges {
		var filtered idSet
		for _, id := range ids {
			if _, ok := set[id]; !ok {
				continue
			}
			if filtered == nil {
				filtered = cloneSet(set)
			}
			delete(filtered, id)
		}
		if filtered == nil {
			continue
		}
		if next == nil {
			next = r.cloneEdges()
		}
		next[l] = filtered
	}
	if next == nil {
		return r
	}
	return &References{knownLabels: r.knownLabels, edges: next}
}

// WithRenamedEdges replaces edge ids according to renames, typically
// transient ids that received persistent ones.
func (r *References) WithRenamedEdges(renames map[ID]ID) *References {
	var next map[string]idSet
	for l, set := range r.edges {
		var renamed idSet
		for id := range set {
			to, ok := renames[id]
			if !ok {
				continue
			}
			if renamed == nil {
				renamed = cloneSet(set)
			}
			delete(renamed, id)
			renamed[to] = struct{}{}
		}
		if renamed == nil {
			continue
		}
		if next == nil {
			next = r.cloneEdges()
		}
		next[l] = renamed
	}
	if next == nil {
		return r
	}
	return &References{knownLabels: r.knownLabels, edges: next}
}

// Equal compares knowledge, not identity.
func (r *References) Equal(other *References) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	if (r.knownLabels == nil) != (other.knownLabels == nil) || len(r.knownLabels) != len(other.knownLabels) {
		return false
	}
	for l := range r.knownLabels {
		if _, ok := other.knownLabels[l]; !ok {
			return false
		}
	}
	if len(r.edges) != len(other.edges) {
		return false
	}
	for l, set := range r.edges {
		o, ok := other.edges[l]
		if !ok || len(o) != len(set) {
			return false
		}
		for id := range set {
			if _, ok := o[id]; !ok {
				return false
			}
		}
	}
	return true
}

func (r *References) cloneEdges() map[string]idSet {
	next := make(map[string]idSet, len(r.edges)+1)
	for l, set := range r.edges {
		next[l] = set
	}
	return next
}

func cloneSet(s idSet) idSet {
	c := make(idSet, len(s)+1)
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

func cloneLabels(s map[string]struct{}) map[string]struct{} {
	c := make(map[string]struct{}, len(s)+1)
	for l := range s {
		c[l] = struct{}{}
	}
	return c
}

func toSet(ids []ID) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func sortedIDs(s idSet) []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	SortIDs(ids)
	return ids
}

// SortIDs orders ids persistent first, then by value.
func SortIDs(ids []ID) {
	slices.SortFunc(ids, CompareIDs)
}

// CompareIDs orders by kind, then value.
func CompareIDs(a, b ID) int {
	if a.kind != b.kind {
		return int(a.kind) - int(b.kind)
	}
	switch {
	case a.value < b.value:
		return -1
	case a.value > b.value:
		return 1
	}
	return 0
}
