// Package session is the entry point a traversal engine uses: a Graph owns
// the state shared by every session (global cache layers, root existence
// trackers, the remote handlers), and a Session is one unit of work over it
// with its own working sets, cache layers and tracker overlays.
//
// Example:
//
//	g, err := session.Open(session.Options{
//		Vertices: st.Vertices(),
//		Edges:    st.Edges(),
//	})
//	if err != nil {
//		return err
//	}
//	defer g.Close()
//
//	s, err := g.NewSession()
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	alice := s.AddVertex([]string{"Person"}, map[string]any{"name": "alice"})
//	bob := s.AddVertex([]string{"Person"}, map[string]any{"name": "bob"})
//	if _, err := s.AddEdge(ctx, "KNOWS", alice, bob, nil); err != nil {
//		return err
//	}
//	return s.Commit(ctx)
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/orneryd/graphsession/pkg/cache"
	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/existence"
	"github.com/orneryd/graphsession/pkg/scope"
	"github.com/orneryd/graphsession/pkg/statement"
)

// ErrClosed is returned by operations on a closed Graph or Session.
var ErrClosed = errors.New("session: closed")

// Options configures a Graph.
type Options struct {
	// Vertices and Edges reach the remote store. Required.
	Vertices scope.RemoteElementHandler[*element.Vertex]
	Edges    scope.RemoteElementHandler[*element.Edge]

	// VertexStatements and EdgeStatements default to the Cypher factories.
	VertexStatements scope.StatementFactory[*element.Vertex]
	EdgeStatements   scope.StatementFactory[*element.Edge]

	// VertexCacheCapacity and EdgeCacheCapacity bound the global cache
	// layers. Zero means cache.DefaultCapacity.
	VertexCacheCapacity int
	EdgeCacheCapacity   int

	Logger zerolog.Logger
}

// Graph is the shared handle sessions are created from. It is safe for
// concurrent use.
type Graph struct {
	opts Options
	log  zerolog.Logger

	vertexCache *cache.Global[int64, *element.Vertex]
	edgeCache   *cache.Global[int64, *element.Edge]

	vertexExistence *existence.Registry
	edgeExistence   *existence.Registry

	mu     sync.RWMutex
	closed bool
}

// Open creates a Graph.
func Open(opts Options) (*Graph, error) {
	if opts.Vertices == nil || opts.Edges == nil {
		return nil, errors.New("session: vertex and edge handlers are required")
	}
	if opts.VertexStatements == nil {
		opts.VertexStatements = statement.Vertices()
	}
	if opts.EdgeStatements == nil {
		opts.EdgeStatements = statement.Edges()
	}
	if opts.VertexCacheCapacity == 0 {
		opts.VertexCacheCapacity = cache.DefaultCapacity
	}
	if opts.EdgeCacheCapacity == 0 {
		opts.EdgeCacheCapacity = cache.DefaultCapacity
	}

	vc, err := cache.NewGlobal[int64, *element.Vertex]("vertex", opts.VertexCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("vertex cache: %w", err)
	}
	ec, err := cache.NewGlobal[int64, *element.Edge]("edge", opts.EdgeCacheCapacity)
	if err != nil {
		return nil, fmt.Errorf("edge cache: %w", err)
	}

	return &Graph{
		opts:            opts,
		log:             opts.Logger.With().Str("component", "graph").Logger(),
		vertexCache:     vc,
		edgeCache:       ec,
		vertexExistence: existence.NewRegistry(),
		edgeExistence:   existence.NewRegistry(),
	}, nil
}

// VertexCache returns the global vertex cache layer.
func (g *Graph) VertexCache() *cache.Global[int64, *element.Vertex] { return g.vertexCache }

// EdgeCache returns the global edge cache layer.
func (g *Graph) EdgeCache() *cache.Global[int64, *element.Edge] { return g.edgeCache }

// NewSession starts a unit of work.
func (g *Graph) NewSession() (*Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, ErrClosed
	}
	return newSession(g)
}

// Close drops the shared caches. Sessions still open keep working against
// the remote store, but new sessions cannot be created.
func (g *Graph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.vertexCache.Close()
	g.edgeCache.Close()
	g.log.Info().Msg("graph closed")
	return nil
}
