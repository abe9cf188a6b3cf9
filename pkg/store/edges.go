package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/graphsession/pkg/element"
)

// CreateEdge stores a new edge between two existing vertices and returns its
// id.
func (s *Store) CreateEdge(ctx context.Context, label string, out, in uint64, props map[string]any) (uint64, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return 0, err
	}
	if err := validateLabels(label); err != nil {
		return 0, err
	}
	if err := validateProperties(props); err != nil {
		return 0, err
	}
	id, err := s.nextID()
	if err != nil {
		return 0, err
	}
	rec := &edgeRecord{ID: id, Label: label, Out: out, In: in, Properties: props}

	err = s.withUpdate(ctx, func(txn *badger.Txn) error {
		for _, v := range []uint64{out, in} {
			if _, err := txn.Get(vertexKey(v)); err != nil {
				if err == badger.ErrKeyNotFound {
					return fmt.Errorf("endpoint %d: %w", v, ErrNotFound)
				}
				return err
			}
		}
		if err := put(txn, edgeKey(id), rec); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixOutgoingIndex, out, id), nil); err != nil {
			return err
		}
		if err := txn.Set(adjacencyKey(prefixIncomingIndex, in, id), nil); err != nil {
			return err
		}
		return txn.Set(labelKey(prefixEdgeTypeIndex, label, id), nil)
	})
	if err != nil {
		return 0, fmt.Errorf("create edge: %w", err)
	}
	return id, nil
}

// GetEdges loads edges in one read transaction. Missing ids are absent from
// the result.
func (s *Store) GetEdges(ctx context.Context, ids []uint64) (map[uint64]*edgeRecord, error) {
	out := make(map[uint64]*edgeRecord, len(ids))
	err := s.withView(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			rec, err := load[edgeRecord](txn, edgeKey(id))
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("edge %d: %w", id, err)
			}
			out[id] = rec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateEdge replaces the properties of an edge. Label and endpoints are
// immutable.
func (s *Store) UpdateEdge(ctx context.Context, id uint64, props map[string]any) error {
	if err := validateProperties(props); err != nil {
		return err
	}
	return s.withUpdate(ctx, func(txn *badger.Txn) error {
		rec, err := load[edgeRecord](txn, edgeKey(id))
		if err != nil {
			return fmt.Errorf("edge %d: %w", id, err)
		}
		rec.Properties = props
		return put(txn, edgeKey(id), rec)
	})
}

// DeleteEdge removes an edge. Deleting a missing edge is not an error.
func (s *Store) DeleteEdge(ctx context.Context, id uint64) error {
	return s.withUpdate(ctx, func(txn *badger.Txn) error {
		return deleteEdgeInTxn(txn, id)
	})
}

func deleteEdgeInTxn(txn *badger.Txn, id uint64) error {
	rec, err := load[edgeRecord](txn, edgeKey(id))
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	for _, key := range [][]byte{
		adjacencyKey(prefixOutgoingIndex, rec.Out, id),
		adjacencyKey(prefixIncomingIndex, rec.In, id),
		labelKey(prefixEdgeTypeIndex, rec.Label, id),
		edgeKey(id),
	} {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// EdgeIDs returns the ids of every edge with label, or of every edge when
// label is empty, in ascending order.
func (s *Store) EdgeIDs(ctx context.Context, label string) ([]uint64, error) {
	var ids []uint64
	err := s.withView(ctx, func(txn *badger.Txn) error {
		if label == "" {
			ids = scanIDs(txn, []byte{prefixEdge})
			return nil
		}
		ids = scanIDs(txn, labelPrefix(prefixEdgeTypeIndex, label))
		return nil
	})
	return ids, err
}

// IncidentEdgeIDs returns the ids of the edges attached to vertex in dir,
// restricted to label unless it is empty.
func (s *Store) IncidentEdgeIDs(ctx context.Context, vertex uint64, dir element.Direction, label string) ([]uint64, error) {
	var ids []uint64
	err := s.withView(ctx, func(txn *badger.Txn) error {
		var candidates []uint64
		if dir == element.Out || dir == element.Both {
			candidates = append(candidates, scanIDs(txn, adjacencyPrefix(prefixOutgoingIndex, vertex))...)
		}
		if dir == element.In || dir == element.Both {
			candidates = append(candidates, scanIDs(txn, adjacencyPrefix(prefixIncomingIndex, vertex))...)
		}
		slices.Sort(candidates)
		candidates = slices.Compact(candidates)
		if label == "" {
			ids = candidates
			return nil
		}
		for _, id := range candidates {
			if _, err := txn.Get(labelKey(prefixEdgeTypeIndex, label, id)); err == nil {
				ids = append(ids, id)
			} else if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	return ids, err
}
