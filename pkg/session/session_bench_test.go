package session

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/store"
)

func benchGraph(b *testing.B) (*Graph, func()) {
	b.Helper()
	st, err := store.OpenInMemory()
	if err != nil {
		b.Fatal(err)
	}
	g, err := Open(Options{Vertices: st.Vertices(), Edges: st.Edges(), Logger: zerolog.Nop()})
	if err != nil {
		st.Close()
		b.Fatal(err)
	}
	return g, func() {
		g.Close()
		st.Close()
	}
}

func BenchmarkSession_Vertex_GlobalCacheHit(b *testing.B) {
	g, done := benchGraph(b)
	defer done()
	ctx := context.Background()

	seed, err := g.NewSession()
	if err != nil {
		b.Fatal(err)
	}
	id := seed.AddVertex([]string{"Person"}, map[string]any{"name": "alice"})
	if err := seed.Commit(ctx); err != nil {
		b.Fatal(err)
	}
	id = seed.Resolve(id)
	seed.Close()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := g.NewSession()
		if err != nil {
			b.Fatal(err)
		}
		if _, err := s.Vertex(ctx, id); err != nil {
			b.Fatal(err)
		}
		s.Close()
	}
}

func BenchmarkSession_Edges_ResolvedAdjacency(b *testing.B) {
	g, done := benchGraph(b)
	defer done()
	ctx := context.Background()

	seed, err := g.NewSession()
	if err != nil {
		b.Fatal(err)
	}
	hub := seed.AddVertex([]string{"Hub"}, nil)
	for i := 0; i < 100; i++ {
		spoke := seed.AddVertex([]string{"Spoke"}, map[string]any{"n": i})
		if _, err := seed.AddEdge(ctx, "LINKS", hub, spoke, nil); err != nil {
			b.Fatal(err)
		}
	}
	if err := seed.Commit(ctx); err != nil {
		b.Fatal(err)
	}
	hub = seed.Resolve(hub)
	seed.Close()

	s, err := g.NewSession()
	if err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	// Warm the references.
	edges, err := s.Edges(ctx, hub, element.Out, "LINKS")
	if err != nil {
		b.Fatal(err)
	}
	if len(edges) != 100 {
		b.Fatalf("unexpected edge count: %d", len(edges))
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		edges, err := s.Edges(ctx, hub, element.Out, "LINKS")
		if err != nil {
			b.Fatal(err)
		}
		if len(edges) != 100 {
			b.Fatalf("unexpected edge count: %d", len(edges))
		}
	}
}

func BenchmarkSession_AddVertexCommit(b *testing.B) {
	g, done := benchGraph(b)
	defer done()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s, err := g.NewSession()
		if err != nil {
			b.Fatal(err)
		}
		s.AddVertex([]string{"Person"}, map[string]any{"n": i})
		if err := s.Commit(ctx); err != nil {
			b.Fatal(err)
		}
		s.Close()
	}
}
