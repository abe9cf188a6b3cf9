package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orneryd/graphsession/pkg/cache"
	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/existence"
	"github.com/orneryd/graphsession/pkg/metrics"
	"github.com/orneryd/graphsession/pkg/scope"
)

// Entry pairs an element id with the element's current state.
type Entry[S any] struct {
	ID    element.ID
	Value S
}

// Session is one unit of work. Reads are served from the session's working
// sets, then the cache, then the remote store; writes stay local until
// Commit. A Session may be used from several goroutines.
type Session struct {
	id    uuid.UUID
	graph *Graph
	log   zerolog.Logger

	vertexCache     *cache.Hierarchical[int64, *element.Vertex]
	edgeCache       *cache.Hierarchical[int64, *element.Edge]
	vertexExistence *existence.Registry
	edgeExistence   *existence.Registry

	vertices *scope.Scope[*element.Vertex]
	edges    *scope.Scope[*element.Edge]

	// commitMu serializes Commit and Rollback against each other.
	commitMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

func newSession(g *Graph) (*Session, error) {
	s := &Session{
		id:              uuid.New(),
		graph:           g,
		vertexCache:     cache.NewHierarchical(g.vertexCache),
		edgeCache:       cache.NewHierarchical(g.edgeCache),
		vertexExistence: g.vertexExistence.Overlay(),
		edgeExistence:   g.edgeExistence.Overlay(),
	}
	s.log = g.opts.Logger.With().Str("component", "session").Str("session", s.id.String()).Logger()

	var err error
	s.vertices, err = scope.New(scope.Options[*element.Vertex]{
		Kind:       "vertex",
		Handler:    g.opts.Vertices,
		Statements: g.opts.VertexStatements,
		Cache:      s.vertexCache,
		Existence:  s.vertexExistence,
		Logger:     s.log,
	})
	if err != nil {
		return nil, err
	}
	s.edges, err = scope.New(scope.Options[*element.Edge]{
		Kind:       "edge",
		Handler:    g.opts.Edges,
		Statements: g.opts.EdgeStatements,
		Cache:      s.edgeCache,
		Existence:  s.edgeExistence,
		Rebind:     s.bindEndpoints,
		Logger:     s.log,
	})
	if err != nil {
		return nil, err
	}

	metrics.SessionsActive.Inc()
	s.log.Debug().Msg("session opened")
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Resolve returns the persistent id a vertex or edge received when a
// transient id was inserted, or id itself.
func (s *Session) Resolve(id element.ID) element.ID {
	if to := s.vertices.Resolve(id); to != id {
		return to
	}
	return s.edges.Resolve(id)
}

func (s *Session) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// bindEndpoints replaces transient endpoint ids with the persistent ids the
// vertices received earlier in the same commit.
func (s *Session) bindEndpoints(e *element.Edge) *element.Edge {
	return e.WithEndpoints(s.vertices.Resolve(e.Out()), s.vertices.Resolve(e.In()))
}

// ============================================================================
// Vertices
// ============================================================================

// AddVertex creates a vertex locally and returns its transient id. A session
// that is already closed returns the zero id.
func (s *Session) AddVertex(labels []string, props map[string]any) element.ID {
	if s.ensureOpen() != nil {
		return element.ID{}
	}
	return s.vertices.Add(element.NewVertex(labels, props)).ID()
}

// Vertex returns the current state of one vertex.
func (s *Session) Vertex(ctx context.Context, id element.ID) (*element.Vertex, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	e, err := s.vertices.GetOrLoadOne(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Value(), nil
}

// Vertices returns the vertices among ids that exist, in the order of ids.
func (s *Session) Vertices(ctx context.Context, ids ...element.ID) ([]Entry[*element.Vertex], error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	found, err := s.vertices.GetOrLoad(ctx, ids...)
	if err != nil {
		return nil, err
	}
	return entries(found), nil
}

// VerticesByLabel returns every vertex carrying any of labels, or every
// vertex when no label is given.
func (s *Session) VerticesByLabel(ctx context.Context, labels ...string) ([]Entry[*element.Vertex], error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	found, err := s.vertices.GetOrLoadByLabel(ctx, labels...)
	if err != nil {
		return nil, err
	}
	return entries(found), nil
}

// UpdateVertex replaces the state of a vertex with fn's result.
func (s *Session) UpdateVertex(ctx context.Context, id element.ID, fn func(*element.Vertex) (*element.Vertex, error)) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	e, err := s.vertices.GetOrLoadOne(ctx, id)
	if err != nil {
		return err
	}
	return s.vertices.Update(e.ID(), fn)
}

// SetVertexProperty sets one property of a vertex.
func (s *Session) SetVertexProperty(ctx context.Context, id element.ID, key string, value any) error {
	return s.UpdateVertex(ctx, id, func(v *element.Vertex) (*element.Vertex, error) {
		return v.WithProperty(key, value), nil
	})
}

// SetVertexLabels replaces the label set of a vertex.
func (s *Session) SetVertexLabels(ctx context.Context, id element.ID, labels ...string) error {
	return s.UpdateVertex(ctx, id, func(v *element.Vertex) (*element.Vertex, error) {
		return v.WithLabels(labels), nil
	})
}

// DeleteVertex deletes a vertex and every edge attached to it.
func (s *Session) DeleteVertex(ctx context.Context, id element.ID) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	e, err := s.vertices.GetOrLoadOne(ctx, id)
	if err != nil {
		return err
	}
	incident, err := s.Edges(ctx, e.ID(), element.Both)
	if err != nil {
		return fmt.Errorf("delete vertex %s: %w", id, err)
	}
	for _, edge := range incident {
		if err := s.DeleteEdge(ctx, edge.ID); err != nil && !errors.Is(err, element.ErrDeleted) {
			return fmt.Errorf("delete vertex %s: %w", id, err)
		}
	}
	_, err = s.vertices.Delete(e.ID())
	return err
}

// ============================================================================
// Edges
// ============================================================================

// AddEdge creates an edge from out to in locally and returns its transient id.
// Both endpoints must exist and not be deleted.
func (s *Session) AddEdge(ctx context.Context, label string, out, in element.ID, props map[string]any) (element.ID, error) {
	if err := s.ensureOpen(); err != nil {
		return element.ID{}, err
	}
	from, err := s.vertices.GetOrLoadOne(ctx, out)
	if err != nil {
		return element.ID{}, fmt.Errorf("edge source: %w", err)
	}
	to, err := s.vertices.GetOrLoadOne(ctx, in)
	if err != nil {
		return element.ID{}, fmt.Errorf("edge target: %w", err)
	}

	id := s.edges.Add(element.NewEdge(label, from.ID(), to.ID(), props)).ID()
	if err := s.linkEdge(from.ID(), element.Out, label, id); err != nil {
		return element.ID{}, err
	}
	if err := s.linkEdge(to.ID(), element.In, label, id); err != nil {
		return element.ID{}, err
	}
	return id, nil
}

func (s *Session) linkEdge(vertex element.ID, dir element.Direction, label string, edge element.ID) error {
	return s.vertices.Update(vertex, func(v *element.Vertex) (*element.Vertex, error) {
		return v.WithReferences(dir, v.References(dir).WithNewEdge(label, edge)), nil
	})
}

// Edge returns the current state of one edge.
func (s *Session) Edge(ctx context.Context, id element.ID) (*element.Edge, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	e, err := s.edges.GetOrLoadOne(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.Value(), nil
}

// EdgesByLabel returns every edge with any of labels, or every edge when no
// label is given.
func (s *Session) EdgesByLabel(ctx context.Context, labels ...string) ([]Entry[*element.Edge], error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	found, err := s.edges.GetOrLoadByLabel(ctx, labels...)
	if err != nil {
		return nil, err
	}
	return entries(found), nil
}

// SetEdgeProperty sets one property of an edge.
func (s *Session) SetEdgeProperty(ctx context.Context, id element.ID, key string, value any) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	e, err := s.edges.GetOrLoadOne(ctx, id)
	if err != nil {
		return err
	}
	return s.edges.Update(e.ID(), func(edge *element.Edge) (*element.Edge, error) {
		return edge.WithProperty(key, value), nil
	})
}

// DeleteEdge deletes an edge and drops it from its endpoints' adjacency.
func (s *Session) DeleteEdge(ctx context.Context, id element.ID) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	e, err := s.edges.GetOrLoadOne(ctx, id)
	if err != nil {
		return err
	}
	edge, err := s.edges.Delete(e.ID())
	if err != nil {
		return err
	}

	// endpoints deleted in this session need no adjacency update
	endpoints, err := s.vertices.GetOrLoad(ctx, edge.Out(), edge.In())
	if err != nil {
		return err
	}
	removed := []element.ID{e.ID()}
	for _, v := range endpoints {
		err := s.vertices.Update(v.ID(), func(v *element.Vertex) (*element.Vertex, error) {
			return v.MapReferences(func(r *element.References) *element.References {
				return r.WithRemovedEdges(removed)
			}), nil
		})
		if err != nil && !errors.Is(err, element.ErrDeleted) {
			return err
		}
	}
	return nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Commit writes every local change to the remote store: vertices first, so
// new edges can bind to persistent endpoints, then edges. It then renames
// transient edge ids held in vertex adjacency, promotes the existence
// trackers and finally the cache layers.
//
// On failure the elements committed before the failing one stay committed
// and their cache entries are still promoted; the rest keep their local
// changes, so Commit may be retried or the session rolled back.
func (s *Session) Commit(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	start := time.Now()
	err := s.commit(ctx)
	s.renameEdgeReferences()

	vertices := s.vertexCache.Commit()
	edges := s.edgeCache.Commit()
	metrics.SessionOutcomesTotal.WithLabelValues("commit", metrics.Result(err)).Inc()

	if err != nil {
		s.log.Warn().Err(err).Msg("commit failed")
		return err
	}
	s.log.Debug().
		Dur("took", time.Since(start)).
		Int("vertices_promoted", vertices).
		Int("edges_promoted", edges).
		Msg("committed")
	return nil
}

func (s *Session) commit(ctx context.Context) error {
	if err := s.vertices.Commit(ctx); err != nil {
		return err
	}
	if err := s.edges.Commit(ctx); err != nil {
		return err
	}
	s.vertexExistence.Commit()
	s.edgeExistence.Commit()
	return nil
}

// renameEdgeReferences rewrites transient edge ids in vertex adjacency to
// the persistent ids the edges received. It is a rebase: no remote command is
// owed for it.
func (s *Session) renameEdgeReferences() {
	renamed := s.edges.Renamed()
	if len(renamed) == 0 {
		return
	}
	for _, e := range s.vertices.Elements() {
		s.vertices.Rebase(e.ID(), func(v *element.Vertex) *element.Vertex {
			return v.MapReferences(func(r *element.References) *element.References {
				return r.WithRenamedEdges(renamed)
			})
		})
	}
}

// Rollback discards every uncommitted change.
func (s *Session) Rollback() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.edges.Rollback()
	s.vertices.Rollback()
	metrics.SessionOutcomesTotal.WithLabelValues("rollback", "ok").Inc()
	s.log.Debug().Msg("rolled back")
	return nil
}

// Close ends the session without touching the remote store. Uncommitted
// changes are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.vertices.Flush()
	s.edges.Flush()
	s.vertexCache.Clear()
	s.edgeCache.Clear()
	metrics.SessionsActive.Dec()
	s.log.Debug().Msg("session closed")
	return nil
}

func entries[S scope.State[S]](found []*scope.Element[S]) []Entry[S] {
	out := make([]Entry[S], len(found))
	for i, e := range found {
		out[i] = Entry[S]{ID: e.ID(), Value: e.Value()}
	}
	return out
}
