package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/orneryd/graphsession/pkg/element"
	"github.com/orneryd/graphsession/pkg/scope"
)

// VertexHandler exposes the store as the remote side of a vertex scope.
type VertexHandler struct {
	store *Store
	log   zerolog.Logger
}

// EdgeHandler exposes the store as the remote side of an edge scope.
type EdgeHandler struct {
	store *Store
	log   zerolog.Logger
}

var (
	_ scope.RemoteElementHandler[*element.Vertex] = (*VertexHandler)(nil)
	_ scope.RemoteElementHandler[*element.Edge]   = (*EdgeHandler)(nil)
)

// Vertices returns the vertex handler.
func (s *Store) Vertices() *VertexHandler {
	return &VertexHandler{store: s, log: s.log.With().Str("kind", "vertex").Logger()}
}

// Edges returns the edge handler.
func (s *Store) Edges() *EdgeHandler {
	return &EdgeHandler{store: s, log: s.log.With().Str("kind", "edge").Logger()}
}

func checkCommand(cmd *scope.Command, want element.Action) error {
	if cmd == nil || cmd.Action != want {
		return fmt.Errorf("%w: expected %s command", ErrInvalidCommand, want)
	}
	return nil
}

func persistentValues(ids []element.ID) []uint64 {
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id.IsPersistent() && id.Value() > 0 {
			out = append(out, uint64(id.Value()))
		}
	}
	return out
}

func toIDs(vals []uint64) []element.ID {
	out := make([]element.ID, len(vals))
	for i, v := range vals {
		out[i] = element.Persistent(int64(v))
	}
	return out
}

func endpoint(id element.ID) (uint64, error) {
	if !id.IsPersistent() || id.Value() <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidEndpoint, id)
	}
	return uint64(id.Value()), nil
}

// GetAll loads vertices. Their adjacency is reported as unknown.
func (h *VertexHandler) GetAll(ctx context.Context, ids []element.ID) (map[element.ID]*element.Vertex, error) {
	recs, err := h.store.GetVertices(ctx, persistentValues(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[element.ID]*element.Vertex, len(recs))
	for id, rec := range recs {
		out[element.Persistent(int64(id))] = element.RemoteVertex(rec.Labels, rec.Properties)
	}
	return out, nil
}

func (h *VertexHandler) Create(ctx context.Context, cmd *scope.Command, v *element.Vertex) (element.ID, error) {
	if err := checkCommand(cmd, element.ActionInsert); err != nil {
		return element.ID{}, err
	}
	h.log.Debug().Str("cypher", cmd.Text).Msg("exec")
	id, err := h.store.CreateVertex(ctx, v.Labels(), v.Properties().Clone())
	if err != nil {
		return element.ID{}, err
	}
	return element.Persistent(int64(id)), nil
}

func (h *VertexHandler) Update(ctx context.Context, cmd *scope.Command, id element.ID, _, current *element.Vertex) error {
	if err := checkCommand(cmd, element.ActionUpdate); err != nil {
		return err
	}
	h.log.Debug().Str("cypher", cmd.Text).Stringer("id", id).Msg("exec")
	return h.store.UpdateVertex(ctx, uint64(id.Value()), current.Labels(), current.Properties().Clone())
}

func (h *VertexHandler) Delete(ctx context.Context, cmd *scope.Command, id element.ID) error {
	if err := checkCommand(cmd, element.ActionDelete); err != nil {
		return err
	}
	h.log.Debug().Str("cypher", cmd.Text).Stringer("id", id).Msg("exec")
	return h.store.DeleteVertex(ctx, uint64(id.Value()))
}

func (h *VertexHandler) QueryIDs(ctx context.Context, filter scope.Filter) ([]element.ID, error) {
	ids, err := h.store.VertexIDs(ctx, filter.Label)
	if err != nil {
		return nil, err
	}
	return toIDs(ids), nil
}

// GetAll loads edges.
func (h *EdgeHandler) GetAll(ctx context.Context, ids []element.ID) (map[element.ID]*element.Edge, error) {
	recs, err := h.store.GetEdges(ctx, persistentValues(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[element.ID]*element.Edge, len(recs))
	for id, rec := range recs {
		out[element.Persistent(int64(id))] = element.NewEdge(
			rec.Label,
			element.Persistent(int64(rec.Out)),
			element.Persistent(int64(rec.In)),
			rec.Properties,
		)
	}
	return out, nil
}

func (h *EdgeHandler) Create(ctx context.Context, cmd *scope.Command, e *element.Edge) (element.ID, error) {
	if err := checkCommand(cmd, element.ActionInsert); err != nil {
		return element.ID{}, err
	}
	out, err := endpoint(e.Out())
	if err != nil {
		return element.ID{}, err
	}
	in, err := endpoint(e.In())
	if err != nil {
		return element.ID{}, err
	}
	h.log.Debug().Str("cypher", cmd.Text).Msg("exec")
	id, err := h.store.CreateEdge(ctx, e.Label(), out, in, e.Properties().Clone())
	if err != nil {
		return element.ID{}, err
	}
	return element.Persistent(int64(id)), nil
}

func (h *EdgeHandler) Update(ctx context.Context, cmd *scope.Command, id element.ID, _, current *element.Edge) error {
	if err := checkCommand(cmd, element.ActionUpdate); err != nil {
		return err
	}
	h.log.Debug().Str("cypher", cmd.Text).Stringer("id", id).Msg("exec")
	return h.store.UpdateEdge(ctx, uint64(id.Value()), current.Properties().Clone())
}

func (h *EdgeHandler) Delete(ctx context.Context, cmd *scope.Command, id element.ID) error {
	if err := checkCommand(cmd, element.ActionDelete); err != nil {
		return err
	}
	h.log.Debug().Str("cypher", cmd.Text).Stringer("id", id).Msg("exec")
	return h.store.DeleteEdge(ctx, uint64(id.Value()))
}

// QueryIDs returns edge ids by label, or the edges incident to filter.Vertex
// when it is set.
func (h *EdgeHandler) QueryIDs(ctx context.Context, filter scope.Filter) ([]element.ID, error) {
	if filter.Vertex.IsZero() {
		ids, err := h.store.EdgeIDs(ctx, filter.Label)
		if err != nil {
			return nil, err
		}
		return toIDs(ids), nil
	}
	v, err := endpoint(filter.Vertex)
	if err != nil {
		return nil, err
	}
	ids, err := h.store.IncidentEdgeIDs(ctx, v, filter.Direction, filter.Label)
	if err != nil {
		return nil, err
	}
	return toIDs(ids), nil
}
