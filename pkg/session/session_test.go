package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/scope"
	"github.com/orneryd/graphsession/pkg/store"
)

// counting wraps a remote handler and counts calls per operation. fail, when
// set, is returned from Create.
type counting[S any] struct {
	scope.RemoteElementHandler[S]

	mu    sync.Mutex
	calls map[string]int
	fail  atomic.Pointer[error]
}

func newCounting[S any](h scope.RemoteElementHandler[S]) *counting[S] {
	return &counting[S]{RemoteElementHandler: h, calls: make(map[string]int)}
}

func (c *counting[S]) inc(op string) {
	c.mu.Lock()
	c.calls[op]++
	c.mu.Unlock()
}

func (c *counting[S]) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *counting[S]) GetAll(ctx context.Context, ids []element.ID) (map[element.ID]S, error) {
	c.inc("get_all")
	return c.RemoteElementHandler.GetAll(ctx, ids)
}

func (c *counting[S]) Create(ctx context.Context, cmd *scope.Command, state S) (element.ID, error) {
	c.inc("create")
	if err := c.fail.Load(); err != nil {
		return element.ID{}, *err
	}
	return c.RemoteElementHandler.Create(ctx, cmd, state)
}

func (c *counting[S]) Update(ctx context.Context, cmd *scope.Command, id element.ID, committed, current S) error {
	c.inc("update")
	return c.RemoteElementHandler.Update(ctx, cmd, id, committed, current)
}

func (c *counting[S]) Delete(ctx context.Context, cmd *scope.Command, id element.ID) error {
	c.inc("delete")
	return c.RemoteElementHandler.Delete(ctx, cmd, id)
}

func (c *counting[S]) QueryIDs(ctx context.Context, f scope.Filter) ([]element.ID, error) {
	c.inc("query_ids")
	return c.RemoteElementHandler.QueryIDs(ctx, f)
}

type fixture struct {
	store    *store.Store
	vertices *counting[*element.Vertex]
	edges    *counting[*element.Edge]
	graph    *Graph
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:    st,
		vertices: newCounting[*element.Vertex](st.Vertices()),
		edges:    newCounting[*element.Edge](st.Edges()),
	}
	f.graph, err = Open(Options{
		Vertices: f.vertices,
		Edges:    f.edges,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { f.graph.Close() })
	return f
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	s, err := f.graph.NewSession()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func (f *fixture) remoteVertex(t *testing.T, labels []string, props map[string]any) element.ID {
	t.Helper()
	id, err := f.store.CreateVertex(context.Background(), labels, props)
	require.NoError(t, err)
	return element.Persistent(int64(id))
}

func (f *fixture) remoteEdge(t *testing.T, label string, out, in element.ID) element.ID {
	t.Helper()
	id, err := f.store.CreateEdge(context.Background(), label, uint64(out.Value()), uint64(in.Value()), nil)
	require.NoError(t, err)
	return element.Persistent(int64(id))
}

func TestOpen_RequiresHandlers(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestLoadModifyCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.remoteVertex(t, []string{"Person"}, map[string]any{"name": "ada"})

	s := f.session(t)
	require.NoError(t, s.SetVertexProperty(ctx, id, "name", "grace"))
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 1, f.vertices.count("update"))

	recs, err := f.store.GetVertices(ctx, []uint64{uint64(id.Value())})
	require.NoError(t, err)
	assert.Equal(t, "grace", recs[uint64(id.Value())].Properties["name"])

	cached, ok := f.graph.VertexCache().Peek(id.Value())
	require.True(t, ok, "committed state is promoted")
	name, _ := cached.Property("name")
	assert.Equal(t, "grace", name)

	other := f.session(t)
	v, err := other.Vertex(ctx, id)
	require.NoError(t, err)
	name, _ = v.Property("name")
	assert.Equal(t, "grace", name)
	assert.Equal(t, 1, f.vertices.count("get_all"), "second session reads the global cache")
}

func TestCreateThenDeleteNeverReachesStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)

	id := s.AddVertex([]string{"Tmp"}, nil)
	require.NoError(t, s.DeleteVertex(ctx, id))
	require.NoError(t, s.Commit(ctx))

	assert.Zero(t, f.vertices.count("create"))
	assert.Zero(t, f.vertices.count("delete"))
	n, _, err := f.store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewEdgeBetweenNewVertices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)

	a := s.AddVertex([]string{"Person"}, map[string]any{"name": "a"})
	b := s.AddVertex([]string{"Person"}, map[string]any{"name": "b"})
	e, err := s.AddEdge(ctx, "KNOWS", a, b, map[string]any{"since": 2020})
	require.NoError(t, err)
	require.True(t, e.IsTransient())

	out, err := s.Edges(ctx, a, element.Out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, e, out[0].ID)

	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 2, f.vertices.count("create"))
	assert.Equal(t, 1, f.edges.count("create"))
	assert.Zero(t, f.vertices.count("update"), "adjacency-only changes owe no command")

	pa, pb, pe := s.Resolve(a), s.Resolve(b), s.Resolve(e)
	require.True(t, pa.IsPersistent())
	require.True(t, pe.IsPersistent())

	edge, err := s.Edge(ctx, pe)
	require.NoError(t, err)
	assert.Equal(t, pa, edge.Out(), "endpoints were rebound to persistent ids")
	assert.Equal(t, pb, edge.In())

	va, err := s.Vertex(ctx, pa)
	require.NoError(t, err)
	ids, ok := va.References(element.Out).Get("KNOWS")
	require.True(t, ok)
	assert.Equal(t, []element.ID{pe}, ids, "adjacency holds the persistent edge id")

	other := f.session(t)
	got, err := other.Edges(ctx, pa, element.Out, "KNOWS")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pe, got[0].ID)
	assert.Zero(t, f.edges.count("query_ids"), "adjacency came from the promoted vertex")
}

func TestRemoteAdjacencyResolvedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.remoteVertex(t, []string{"Person"}, nil)
	b := f.remoteVertex(t, []string{"Person"}, nil)
	c := f.remoteVertex(t, []string{"City"}, nil)
	knows := f.remoteEdge(t, "KNOWS", a, b)
	lives := f.remoteEdge(t, "LIVES_IN", a, c)

	s := f.session(t)
	got, err := s.Edges(ctx, a, element.Out, "KNOWS")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, knows, got[0].ID)
	assert.Equal(t, 1, f.edges.count("query_ids"))

	_, err = s.Edges(ctx, a, element.Out, "KNOWS")
	require.NoError(t, err)
	assert.Equal(t, 1, f.edges.count("query_ids"), "resolved label is cached")

	all, err := s.Edges(ctx, a, element.Out)
	require.NoError(t, err)
	assert.ElementsMatch(t, []element.ID{knows, lives}, []element.ID{all[0].ID, all[1].ID})
	assert.Equal(t, 2, f.edges.count("query_ids"))

	_, err = s.Edges(ctx, a, element.Out, "LIVES_IN", "OWNS")
	require.NoError(t, err)
	assert.Equal(t, 2, f.edges.count("query_ids"), "fully known adjacency answers every label")

	in, err := s.Edges(ctx, b, element.In)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, knows, in[0].ID)
}

func TestEdgesMergesLocalAdditionsIntoUnknownAdjacency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.remoteVertex(t, []string{"Person"}, nil)
	b := f.remoteVertex(t, []string{"Person"}, nil)
	existing := f.remoteEdge(t, "KNOWS", a, b)

	s := f.session(t)
	c := s.AddVertex([]string{"Person"}, nil)
	added, err := s.AddEdge(ctx, "KNOWS", a, c, nil)
	require.NoError(t, err)

	got, err := s.Edges(ctx, a, element.Out, "KNOWS")
	require.NoError(t, err)
	ids := []element.ID{}
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []element.ID{existing, added}, ids)
}

func TestDeleteEdgeUpdatesAdjacency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.remoteVertex(t, []string{"Person"}, nil)
	b := f.remoteVertex(t, []string{"Person"}, nil)
	e := f.remoteEdge(t, "KNOWS", a, b)

	s := f.session(t)
	_, err := s.Edges(ctx, a, element.Both)
	require.NoError(t, err)

	require.NoError(t, s.DeleteEdge(ctx, e))
	assert.ErrorIs(t, s.DeleteEdge(ctx, e), element.ErrDeleted)
	got, err := s.Edges(ctx, a, element.Out)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Commit(ctx))
	_, edges, err := f.store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, edges)
	_, ok := f.graph.EdgeCache().Peek(e.Value())
	assert.False(t, ok)
}

func TestDeleteVertexDeletesIncidentEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.remoteVertex(t, []string{"Person"}, nil)
	b := f.remoteVertex(t, []string{"Person"}, nil)
	f.remoteEdge(t, "KNOWS", a, b)
	f.remoteEdge(t, "KNOWS", b, a)

	s := f.session(t)
	require.NoError(t, s.DeleteVertex(ctx, a))

	_, err := s.Vertex(ctx, a)
	assert.ErrorIs(t, err, element.ErrDeleted)
	got, err := s.Edges(ctx, b, element.Both)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Commit(ctx))
	vertices, edges, err := f.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, vertices)
	assert.Zero(t, edges)
}

func TestAddEdgeEndpointErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)

	a := s.AddVertex(nil, nil)
	_, err := s.AddEdge(ctx, "X", a, element.Persistent(404), nil)
	assert.ErrorIs(t, err, scope.ErrNotFound)

	b := s.AddVertex(nil, nil)
	require.NoError(t, s.DeleteVertex(ctx, b))
	_, err = s.AddEdge(ctx, "X", a, b, nil)
	assert.ErrorIs(t, err, element.ErrDeleted)
}

func TestRollback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.remoteVertex(t, []string{"Person"}, map[string]any{"name": "ada"})

	s := f.session(t)
	require.NoError(t, s.SetVertexProperty(ctx, id, "name", "changed"))
	tmp := s.AddVertex([]string{"Person"}, nil)
	require.NoError(t, s.Rollback())

	v, err := s.Vertex(ctx, id)
	require.NoError(t, err)
	name, _ := v.Property("name")
	assert.Equal(t, "ada", name)
	_, err = s.Vertex(ctx, tmp)
	assert.ErrorIs(t, err, scope.ErrNotFound)

	require.NoError(t, s.Commit(ctx))
	assert.Zero(t, f.vertices.count("update")+f.vertices.count("create"))
}

func TestCommitFailureKeepsEarlierWork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t)

	a := s.AddVertex([]string{"Person"}, nil)
	b := s.AddVertex([]string{"Person"}, nil)
	_, err := s.AddEdge(ctx, "KNOWS", a, b, nil)
	require.NoError(t, err)

	boom := errors.New("remote unavailable")
	f.edges.fail.Store(&boom)
	err = s.Commit(ctx)
	require.ErrorIs(t, err, boom)
	var ce *scope.CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "edge", ce.Kind)

	vertices, edges, err := f.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, vertices, "vertices committed before the failure stay committed")
	assert.Zero(t, edges)

	f.edges.fail.Store(nil)
	require.NoError(t, s.Commit(ctx))
	_, edges, err = f.store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, edges)
	assert.Equal(t, 2, f.vertices.count("create"), "vertices are not inserted twice")
}

func TestVerticesByLabelSharesTrackers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remoteVertex(t, []string{"Person"}, nil)
	f.remoteVertex(t, []string{"City"}, nil)

	s := f.session(t)
	people, err := s.VerticesByLabel(ctx, "Person")
	require.NoError(t, err)
	assert.Len(t, people, 1)
	s.AddVertex([]string{"Person"}, nil)
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, 1, f.vertices.count("query_ids"))

	other := f.session(t)
	people, err = other.VerticesByLabel(ctx, "Person")
	require.NoError(t, err)
	assert.Len(t, people, 2)
	assert.Equal(t, 1, f.vertices.count("query_ids"), "answered from the promoted tracker")
}

func TestCommitDoesNotHideVerticesCommittedMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remoteVertex(t, []string{"Person"}, nil)

	a := f.session(t)
	all, err := a.VerticesByLabel(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	b := f.session(t)
	b.AddVertex([]string{"City"}, nil)
	require.NoError(t, b.Commit(ctx))
	require.NoError(t, a.Commit(ctx))

	vertices, _, err := f.store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, vertices)

	c := f.session(t)
	all, err = c.VerticesByLabel(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.graph.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Commit(ctx), ErrClosed)
	_, err = s.Vertex(ctx, element.Persistent(1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, s.AddVertex(nil, nil).IsZero())

	require.NoError(t, f.graph.Close())
	_, err = f.graph.NewSession()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentSessionsPromoteLastWriteWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.remoteVertex(t, []string{"Counter"}, map[string]any{"writer": -1})

	const sessions = 200
	var eg errgroup.Group
	for i := 0; i < sessions; i++ {
		eg.Go(func() error {
			s, err := f.graph.NewSession()
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.SetVertexProperty(ctx, id, "writer", i); err != nil {
				return err
			}
			return s.Commit(ctx)
		})
	}
	require.NoError(t, eg.Wait())

	cached, ok := f.graph.VertexCache().Peek(id.Value())
	require.True(t, ok)
	writer, _ := cached.Property("writer")
	w, ok := writer.(int)
	require.True(t, ok, fmt.Sprintf("unexpected value %v", writer))
	assert.GreaterOrEqual(t, w, 0)
	assert.Less(t, w, sessions)
}
