package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
)

// CreateVertex stores a new vertex and returns its id.
func (s *Store) CreateVertex(ctx context.Context, labels []string, props map[string]any) (uint64, error) {
	if err := s.ensureOpen(ctx); err != nil {
		return 0, err
	}
	if err := validateLabels(labels...); err != nil {
		return 0, err
	}
	if err := validateProperties(props); err != nil {
		return 0, err
	}
	id, err := s.nextID()
	if err != nil {
		return 0, err
	}
	rec := &vertexRecord{ID: id, Labels: slices.Clone(labels), Properties: props}

	err = s.withUpdate(ctx, func(txn *badger.Txn) error {
		if err := put(txn, vertexKey(id), rec); err != nil {
			return err
		}
		for _, l := range rec.Labels {
			if err := txn.Set(labelKey(prefixLabelIndex, l, id), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("create vertex: %w", err)
	}
	return id, nil
}

// GetVertices loads vertices in one read transaction. Missing ids are absent
// from the result.
func (s *Store) GetVertices(ctx context.Context, ids []uint64) (map[uint64]*vertexRecord, error) {
	out := make(map[uint64]*vertexRecord, len(ids))
	err := s.withView(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			rec, err := load[vertexRecord](txn, vertexKey(id))
			if err == ErrNotFound {
				continue
			}
			if err != nil {
				return fmt.Errorf("vertex %d: %w", id, err)
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

// UpdateVertex replaces the labels and properties of a vertex.
func (s *Store) UpdateVertex(ctx context.Context, id uint64, labels []string, props map[string]any) error {
	if err := validateLabels(labels...); err != nil {
		return err
	}
	if err := validateProperties(props); err != nil {
		return err
	}
	return s.withUpdate(ctx, func(txn *badger.Txn) error {
		old, err := load[vertexRecord](txn, vertexKey(id))
		if err != nil {
			return fmt.Errorf("vertex %d: %w", id, err)
		}
		for _, l := range old.Labels {
			if !slices.Contains(labels, l) {
				if err := txn.Delete(labelKey(prefixLabelIndex, l, id)); err != nil {
					return err
				}
			}
		}
		for _, l := range labels {
			if !slices.Contains(old.Labels, l) {
				if err := txn.Set(labelKey(prefixLabelIndex, l, id), nil); err != nil {
					return err
				}
			}
		}
		return put(txn, vertexKey(id), &vertexRecord{ID: id, Labels: slices.Clone(labels), Properties: props})
	})
}

// DeleteVertex removes a vertex together with its incident edges. Deleting a
// missing vertex is not an error.
func (s *Store) DeleteVertex(ctx context.Context, id uint64) error {
	return s.withUpdate(ctx, func(txn *badger.Txn) error {
		rec, err := load[vertexRecord](txn, vertexKey(id))
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		for _, l := range rec.Labels {
			if err := txn.Delete(labelKey(prefixLabelIndex, l, id)); err != nil {
				return err
			}
		}
		incident := append(
			scanIDs(txn, adjacencyPrefix(prefixOutgoingIndex, id)),
			scanIDs(txn, adjacencyPrefix(prefixIncomingIndex, id))...)
		for _, eid := range incident {
			if err := deleteEdgeInTxn(txn, eid); err != nil {
				return err
			}
		}
		return txn.Delete(vertexKey(id))
	})
}

// VertexIDs returns the ids of every vertex carrying label, or of every vertex
// when label is empty, in ascending order.
func (s *Store) VertexIDs(ctx context.Context, label string) ([]uint64, error) {
	var ids []uint64
	err := s.withView(ctx, func(txn *badger.Txn) error {
		if label == "" {
			ids = scanIDs(txn, []byte{prefixVertex})
			return nil
		}
		ids = scanIDs(txn, labelPrefix(prefixLabelIndex, label))
		return nil
	})
	return ids, err
}
