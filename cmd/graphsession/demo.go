package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/session"
	"github.com/orneryd/graphsession/pkg/store"
)

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through load-modify-commit, create-then-delete and new-edge scenarios",
		Long: `Runs three short scenarios against the store and prints what each session
observed. The store is in memory unless --data-dir is given.`,
		RunE: runDemo,
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("data-dir") {
		cfg.Store.InMemory = true
	}
	a, err := openApp(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	return runScenarios(ctx, a.graph, a.store, cmd.OutOrStdout())
}

func runScenarios(ctx context.Context, g *session.Graph, st *store.Store, out io.Writer) error {
	if err := demoLoadModifyCommit(ctx, g, out); err != nil {
		return fmt.Errorf("load-modify-commit: %w", err)
	}
	if err := demoCreateThenDelete(ctx, g, st, out); err != nil {
		return fmt.Errorf("create-then-delete: %w", err)
	}
	if err := demoNewEdge(ctx, g, out); err != nil {
		return fmt.Errorf("new edge: %w", err)
	}
	return nil
}

// seedVertex commits a vertex in its own session and returns its persistent id.
func seedVertex(ctx context.Context, g *session.Graph, labels []string, props map[string]any) (element.ID, error) {
	s, err := g.NewSession()
	if err != nil {
		return element.ID{}, err
	}
	defer s.Close()

	id := s.AddVertex(labels, props)
	if err := s.Commit(ctx); err != nil {
		return element.ID{}, err
	}
	return s.Resolve(id), nil
}

func demoLoadModifyCommit(ctx context.Context, g *session.Graph, out io.Writer) error {
	id, err := seedVertex(ctx, g, []string{"Person"}, map[string]any{"name": "alice"})
	if err != nil {
		return err
	}

	s, err := g.NewSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.SetVertexProperty(ctx, id, "age", 30); err != nil {
		return err
	}
	if err := s.Commit(ctx); err != nil {
		return err
	}

	cached, ok := g.VertexCache().Peek(id.Value())
	if !ok {
		return fmt.Errorf("vertex %s missing from the global cache", id)
	}
	age, _ := cached.Property("age")
	fmt.Fprintf(out, "load-modify-commit: %s committed, global cache age=%v\n", id, age)
	return nil
}

func demoCreateThenDelete(ctx context.Context, g *session.Graph, st *store.Store, out io.Writer) error {
	before, _, err := st.Counts(ctx)
	if err != nil {
		return err
	}

	s, err := g.NewSession()
	if err != nil {
		return err
	}
	defer s.Close()

	id := s.AddVertex([]string{"Scratch"}, nil)
	if err := s.DeleteVertex(ctx, id); err != nil {
		return err
	}
	if err := s.Commit(ctx); err != nil {
		return err
	}

	after, _, err := st.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "create-then-delete: %s discarded, store vertices %d -> %d\n", id, before, after)
	return nil
}

func demoNewEdge(ctx context.Context, g *session.Graph, out io.Writer) error {
	s, err := g.NewSession()
	if err != nil {
		return err
	}
	defer s.Close()

	bob := s.AddVertex([]string{"Person"}, map[string]any{"name": "bob"})
	carol := s.AddVertex([]string{"Person"}, map[string]any{"name": "carol"})
	knows, err := s.AddEdge(ctx, "KNOWS", bob, carol, map[string]any{"since": 2020})
	if err != nil {
		return err
	}
	if err := s.Commit(ctx); err != nil {
		return err
	}
	bob, carol, knows = s.Resolve(bob), s.Resolve(carol), s.Resolve(knows)

	reader, err := g.NewSession()
	if err != nil {
		return err
	}
	defer reader.Close()

	edges, err := reader.Edges(ctx, bob, element.Out, "KNOWS")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "new edge: %s -[%s]-> %s\n", bob, knows, carol)
	for _, e := range edges {
		fmt.Fprintf(out, "  %s sees %s -> %s\n", reader.ID(), e.ID, e.Value.In())
	}
	return nil
}
