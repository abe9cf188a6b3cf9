package element

// Edge is the immutable state of one edge.
type Edge struct {
	label string
	props Properties
	out   ID
	in    ID
}

// NewEdge returns the state of an edge from out to in.
func NewEdge(label string, out, in ID, props map[string]any) *Edge {
	return &Edge{label: label, props: Properties(props), out: out, in: in}
}

// Label returns the edge label.
func (e *Edge) Label() string { return e.label }

// Labels returns the label as a one-element slice.
func (e *Edge) Labels() []string { return []string{e.label} }

// Out returns the id of the vertex the edge starts at.
func (e *Edge) Out() ID { return e.out }

// In returns the id of the vertex the edge ends at.
func (e *Edge) In() ID { return e.in }

// Endpoint returns Out or In.
func (e *Edge) Endpoint(dir Direction) ID {
	if dir == In {
		return e.in
	}
	return e.out
}

// Properties returns the property map. It must not be modified.
func (e *Edge) Properties() Properties { return e.props }

// Property returns one property value.
func (e *Edge) Property(key string) (any, bool) {
	val, ok := e.props[key]
	return val, ok
}

// WithProperty returns e with key set to value.
func (e *Edge) WithProperty(key string, value any) *Edge {
	props := e.props.With(key, value)
	if props.Equal(e.props) {
		return e
	}
	next := *e
	next.props = props
	return &next
}

// WithoutProperty returns e without key.
func (e *Edge) WithoutProperty(key string) *Edge {
	if _, ok := e.props[key]; !ok {
		return e
	}
	next := *e
	next.props = e.props.Without(key)
	return &next
}

// WithEndpoints returns e attached to different vertex ids.
func (e *Edge) WithEndpoints(out, in ID) *Edge {
	if out == e.out && in == e.in {
		return e
	}
	next := *e
	next.out, next.in = out, in
	return &next
}

// Equal compares label, properties and endpoints.
func (e *Edge) Equal(other *Edge) bool {
	if e == other {
		return true
	}
	if e == nil || other == nil {
		return false
	}
	return e.label == other.label && e.out == other.out && e.in == other.in && e.props.Equal(other.props)
}
