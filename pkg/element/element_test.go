package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_KindDistinguishesEquality(t *testing.T) {
	p := Persistent(1)
	tr := ID{kind: KindTransient, value: 1}

	assert.NotEqual(t, p, tr)
	assert.Equal(t, p, Persistent(1))

	m := map[ID]string{p: "persistent", tr: "transient"}
	assert.Len(t, m, 2)
}

func TestID_TransientUnique(t *testing.T) {
	seen := make(map[ID]struct{})
	for i := 0; i < 1000; i++ {
		id := NewTransientID()
		require.True(t, id.IsTransient())
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestID_StringRoundTrip(t *testing.T) {
	for _, id := range []ID{Persistent(42), NewTransientID()} {
		parsed, err := ParseID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
	_, err := ParseID("nope")
	assert.Error(t, err)
	assert.Equal(t, "<nil>", ID{}.String())
}

func TestVertex_WithersShareUnchangedFields(t *testing.T) {
	v := RemoteVertex([]string{"B", "A", "A"}, map[string]any{"name": "ada"})
	assert.Equal(t, []string{"A", "B"}, v.Labels())
	assert.True(t, v.HasLabel("A"))
	assert.False(t, v.HasLabel("C"))

	assert.Same(t, v, v.WithProperty("name", "ada"))
	assert.Same(t, v, v.WithoutProperty("missing"))
	assert.Same(t, v, v.WithLabels([]string{"A", "B"}))

	w := v.WithProperty("age", 36)
	require.NotSame(t, v, w)
	assert.Same(t, v.References(Out), w.References(Out))
	_, ok := v.Property("age")
	assert.False(t, ok, "original must not see the new property")
}

func TestVertex_SameContentIgnoresReferences(t *testing.T) {
	v := RemoteVertex([]string{"A"}, nil)
	w := v.WithReferences(Out, NewResolvedReferences(map[string][]ID{"x": {Persistent(1)}}))

	assert.True(t, v.SameContent(w))
	assert.False(t, v.Equal(w))
}

func TestVertex_NewHasKnownEmptyAdjacency(t *testing.T) {
	v := NewVertex([]string{"A"}, nil)
	ids, ok := v.References(Out).Lookup("knows")
	assert.True(t, ok)
	assert.Empty(t, ids)

	r := RemoteVertex([]string{"A"}, nil)
	_, ok = r.References(In).Lookup("knows")
	assert.False(t, ok)
}

func TestEdge_Withers(t *testing.T) {
	out, in := NewTransientID(), Persistent(3)
	e := NewEdge("knows", out, in, map[string]any{"since": 2001})

	assert.Equal(t, []string{"knows"}, e.Labels())
	assert.Equal(t, out, e.Endpoint(Out))
	assert.Equal(t, in, e.Endpoint(In))
	assert.Same(t, e, e.WithProperty("since", 2001))
	assert.Same(t, e, e.WithEndpoints(out, in))

	moved := e.WithEndpoints(Persistent(1), in)
	assert.Equal(t, Persistent(1), moved.Out())
	assert.False(t, e.Equal(moved))
	assert.True(t, e.Equal(NewEdge("knows", out, in, map[string]any{"since": 2001})))
}

func TestProperties(t *testing.T) {
	p := Properties{"a": 1}
	q := p.With("b", []int{1, 2})
	assert.Len(t, p, 1)
	assert.Len(t, q, 2)
	assert.True(t, q.Equal(Properties{"a": 1, "b": []int{1, 2}}))
	assert.Equal(t, []string{"a", "b"}, q.Keys())
	assert.Equal(t, p, q.Without("b"))
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"out": Out, "IN": In, "both": Both} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}
