package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/session"
	"github.com/orneryd/graphsession/pkg/store"
)

func newStressCmd() *cobra.Command {
	stressCmd := &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent sessions against one shared vertex",
		Long: `Every session loads the same vertex, overwrites its "writer" property,
adds a visitor vertex with an edge to it and commits. Afterwards the global
cache must hold one writer's value and every edge must be visible.`,
		RunE: runStress,
	}
	stressCmd.Flags().Int("sessions", 200, "Number of sessions")
	stressCmd.Flags().Int("concurrency", 0, "Sessions in flight at once (0 = 4x CPUs)")
	return stressCmd
}

func runStress(cmd *cobra.Command, args []string) error {
	sessions, _ := cmd.Flags().GetInt("sessions")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if sessions <= 0 {
		return fmt.Errorf("--sessions must be positive, got %d", sessions)
	}
	if concurrency <= 0 {
		concurrency = 4 * runtime.NumCPU()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := openApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	res, err := stress(ctx, a.graph, a.store, sessions, concurrency)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"stress: %d sessions in %s (%.0f/s), winner=%d, visitors=%d\n",
		sessions, res.elapsed.Round(time.Millisecond),
		float64(sessions)/res.elapsed.Seconds(), res.winner, res.visitors)
	return nil
}

type stressResult struct {
	elapsed  time.Duration
	winner   int
	visitors int
}

// stress runs n sessions against one hub vertex and checks that the global
// cache ends up with one of the written values and that every committed edge
// is visible to a fresh session.
func stress(ctx context.Context, g *session.Graph, st *store.Store, n, concurrency int) (stressResult, error) {
	hub, err := seedVertex(ctx, g, []string{"Hub"}, map[string]any{"writer": -1})
	if err != nil {
		return stressResult{}, fmt.Errorf("seed hub: %w", err)
	}
	// Promotion is last-write-wins and does not merge known references, so
	// the hub is reloaded from the store with its adjacency unknown.
	g.VertexCache().Remove(hub.Value())

	start := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			return visit(egCtx, g, hub, i)
		})
	}
	if err := eg.Wait(); err != nil {
		return stressResult{}, err
	}
	res := stressResult{elapsed: time.Since(start)}

	cached, ok := g.VertexCache().Peek(hub.Value())
	if !ok {
		return res, fmt.Errorf("hub %s missing from the global cache", hub)
	}
	w, _ := cached.Property("writer")
	winner, ok := w.(int)
	if !ok || winner < 0 || winner >= n {
		return res, fmt.Errorf("global cache holds writer %v, want one of 0..%d", w, n-1)
	}
	res.winner = winner

	reader, err := g.NewSession()
	if err != nil {
		return res, err
	}
	defer reader.Close()
	edges, err := reader.Edges(ctx, hub, element.In, "VISITED")
	if err != nil {
		return res, err
	}
	if len(edges) != n {
		return res, fmt.Errorf("hub has %d incoming VISITED edges, want %d", len(edges), n)
	}
	res.visitors = len(edges)

	vertices, stored, err := st.Counts(ctx)
	if err != nil {
		return res, err
	}
	if stored < n || vertices < n+1 {
		return res, fmt.Errorf("store holds %d vertices and %d edges, want at least %d and %d", vertices, stored, n+1, n)
	}
	return res, nil
}

func visit(ctx context.Context, g *session.Graph, hub element.ID, i int) error {
	s, err := g.NewSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetVertexProperty(ctx, hub, "writer", i); err != nil {
		return fmt.Errorf("session %d: %w", i, err)
	}
	visitor := s.AddVertex([]string{"Visitor"}, map[string]any{"n": i})
	if _, err := s.AddEdge(ctx, "VISITED", visitor, hub, nil); err != nil {
		return fmt.Errorf("session %d: %w", i, err)
	}
	if err := s.Commit(ctx); err != nil {
		return fmt.Errorf("session %d: %w", i, err)
	}
	return nil
}
