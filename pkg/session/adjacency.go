package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/scope"
)

// Edges returns the edges attached to vertex in dir, restricted to labels
// unless none are given. Answers come from the vertex's adjacency references
// where they are known; unknown parts are resolved remotely once and folded
// into the references, together with this session's uncommitted edges.
func (s *Session) Edges(ctx context.Context, vertex element.ID, dir element.Direction, labels ...string) ([]Entry[*element.Edge], error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	v, err := s.vertices.GetOrLoadOne(ctx, vertex)
	if err != nil {
		return nil, err
	}

	var dirs []element.Direction
	switch dir {
	case element.Out, element.In:
		dirs = []element.Direction{dir}
	case element.Both:
		dirs = []element.Direction{element.Out, element.In}
	default:
		return nil, element.ErrInvalidDirection
	}

	var ids []element.ID
	for _, d := range dirs {
		found, err := s.adjacent(ctx, v, d, labels)
		if err != nil {
			return nil, fmt.Errorf("edges of %s (%s): %w", vertex, d, err)
		}
		ids = append(ids, found...)
	}
	// a self-loop is both outgoing and incoming
	element.SortIDs(ids)
	ids = slices.Compact(ids)

	found, err := s.edges.GetOrLoad(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := entries(found)
	if len(labels) > 0 {
		out = slices.DeleteFunc(out, func(e Entry[*element.Edge]) bool {
			return !slices.Contains(labels, e.Value.Label())
		})
	}
	return out, nil
}

// adjacent returns the edge ids of v in one direction, resolving and caching
// whatever the references do not know yet.
func (s *Session) adjacent(ctx context.Context, v *scope.Element[*element.Vertex], dir element.Direction, labels []string) ([]element.ID, error) {
	refs := v.Value().References(dir)

	if len(labels) == 0 {
		if ids, ok := refs.All(); ok {
			return ids, nil
		}
		resolved, err := s.resolveAdjacency(ctx, v.ID(), dir, "")
		if err != nil {
			return nil, err
		}
		if err := s.updateReferences(v.ID(), dir, func(r *element.References) *element.References {
			return r.WithAllResolvedEdges(resolved)
		}); err != nil {
			return nil, err
		}
		return flatten(resolved), nil
	}

	var ids []element.ID
	partial := make(map[string][]element.ID)
	for _, label := range labels {
		if known, ok := refs.Lookup(label); ok {
			ids = append(ids, known...)
			continue
		}
		resolved, err := s.resolveAdjacency(ctx, v.ID(), dir, label)
		if err != nil {
			return nil, err
		}
		partial[label] = resolved[label]
		ids = append(ids, resolved[label]...)
	}
	if len(partial) > 0 {
		if err := s.updateReferences(v.ID(), dir, func(r *element.References) *element.References {
			return r.WithPartialResolvedEdges(partial)
		}); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// resolveAdjacency builds the label -> edge ids map of vertex in dir as this
// session sees it: the remote edges that are not deleted locally plus the
// local edges that are not committed yet. An empty label means every label.
func (s *Session) resolveAdjacency(ctx context.Context, vertex element.ID, dir element.Direction, label string) (map[string][]element.ID, error) {
	var remote []element.ID
	if vertex.IsPersistent() {
		ids, err := s.graph.opts.Edges.QueryIDs(ctx, scope.Filter{Vertex: vertex, Direction: dir, Label: label})
		if err != nil {
			return nil, err
		}
		remote = ids
	}

	loaded, err := s.edges.GetOrLoad(ctx, remote...)
	if err != nil {
		return nil, err
	}
	byLabel := make(map[string][]element.ID)
	seen := make(map[element.ID]struct{}, len(loaded))
	add := func(e *scope.Element[*element.Edge]) {
		if _, dup := seen[e.ID()]; dup {
			return
		}
		seen[e.ID()] = struct{}{}
		l := e.Value().Label()
		byLabel[l] = append(byLabel[l], e.ID())
	}
	for _, e := range loaded {
		add(e)
	}
	for _, e := range s.edges.Elements() {
		if e.State() != element.Transient {
			continue
		}
		edge := e.Value()
		if label != "" && edge.Label() != label {
			continue
		}
		if s.vertices.Resolve(edge.Endpoint(dir)) == vertex {
			add(e)
		}
	}
	if label != "" {
		if _, ok := byLabel[label]; !ok {
			byLabel[label] = nil
		}
	}
	return byLabel, nil
}

func (s *Session) updateReferences(vertex element.ID, dir element.Direction, fn func(*element.References) *element.References) error {
	return s.vertices.Update(vertex, func(v *element.Vertex) (*element.Vertex, error) {
		return v.WithReferences(dir, fn(v.References(dir))), nil
	})
}

func flatten(m map[string][]element.ID) []element.ID {
	var out []element.ID
	for _, ids := range m {
		out = append(out, ids...)
	}
	return out
}
