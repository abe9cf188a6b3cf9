package element

import (
	"slices"
)

// Vertex is the immutable state of one vertex: its labels, properties and the
// adjacency references for both directions. Unchanged fields are shared
// between a vertex and the values derived from it.
type Vertex struct {
	labels []string
	props  Properties
	in     *References
	out    *References
}

// NewVertex returns the state of a vertex created locally. It has no edges
// yet, which is fully known.
func NewVertex(labels []string, props map[string]any) *Vertex {
	known := NewResolvedReferences(nil)
	return &Vertex{labels: normalizeLabels(labels), props: Properties(props), in: known, out: known}
}

// RemoteVertex returns the state of a vertex read from the remote store.
// Nothing is known about its edges.
func RemoteVertex(labels []string, props map[string]any) *Vertex {
	return &Vertex{labels: normalizeLabels(labels), props: Properties(props), in: NewReferences(), out: NewReferences()}
}

// Labels returns the sorted label set. The slice must not be modified.
func (v *Vertex) Labels() []string { return v.labels }

// HasLabel reports whether the vertex carries label.
func (v *Vertex) HasLabel(label string) bool {
	_, ok := slices.BinarySearch(v.labels, label)
	return ok
}

// Properties returns the property map. It must not be modified.
func (v *Vertex) Properties() Properties { return v.props }

// Property returns one property value.
func (v *Vertex) Property(key string) (any, bool) {
	val, ok := v.props[key]
	return val, ok
}

// References returns the adjacency references for Out or In.
func (v *Vertex) References(dir Direction) *References {
	if dir == In {
		return v.in
	}
	return v.out
}

// WithLabels returns v with its label set replaced.
func (v *Vertex) WithLabels(labels []string) *Vertex {
	normalized := normalizeLabels(labels)
	if slices.Equal(normalized, v.labels) {
		return v
	}
	next := *v
	next.labels = normalized
	return &next
}

// WithProperty returns v with key set to value.
func (v *Vertex) WithProperty(key string, value any) *Vertex {
	props := v.props.With(key, value)
	if props.Equal(v.props) {
		return v
	}
	next := *v
	next.props = props
	return &next
}

// WithoutProperty returns v without key.
func (v *Vertex) WithoutProperty(key string) *Vertex {
	if _, ok := v.props[key]; !ok {
		return v
	}
	next := *v
	next.props = v.props.Without(key)
	return &next
}

// WithProperties returns v with the whole property map replaced.
func (v *Vertex) WithProperties(props map[string]any) *Vertex {
	if v.props.Equal(props) {
		return v
	}
	next := *v
	next.props = Properties(props)
	return &next
}

// WithReferences returns v with the references for dir replaced. Both is not
// a valid direction here.
func (v *Vertex) WithReferences(dir Direction, refs *References) *Vertex {
	switch dir {
	case Out:
		if refs == v.out {
			return v
		}
		next := *v
		next.out = refs
		return &next
	case In:
		if refs == v.in {
			return v
		}
		next := *v
		next.in = refs
		return &next
	}
	panic(ErrInvalidDirection)
}

// MapReferences applies fn to both directions.
func (v *Vertex) MapReferences(fn func(*References) *References) *Vertex {
	return v.WithReferences(Out, fn(v.out)).WithReferences(In, fn(v.in))
}

// Equal compares labels, properties and adjacency knowledge.
func (v *Vertex) Equal(other *Vertex) bool {
	if v == other {
		return true
	}
	if v == nil || other == nil {
		return false
	}
	return v.SameContent(other) && v.in.Equal(other.in) && v.out.Equal(other.out)
}

// SameContent compares only what the remote store persists: labels and
// properties.
func (v *Vertex) SameContent(other *Vertex) bool {
	return slices.Equal(v.labels, other.labels) && v.props.Equal(other.props)
}

func normalizeLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l != "" {
			out = append(out, l)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
