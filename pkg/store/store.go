// Package store provides an embedded graph store on BadgerDB that serves as
// the remote side of a session: it assigns persistent ids, executes the
// commands built at commit and answers id and adjacency queries.
//
// Key Structure:
//   - Vertices:       0x01 + vertexID -> gob(vertexRecord)
//   - Edges:          0x02 + edgeID -> gob(edgeRecord)
//   - Label Index:    0x03 + label + 0x00 + vertexID -> empty
//   - Outgoing Index: 0x04 + vertexID + edgeID -> empty
//   - Incoming Index: 0x05 + vertexID + edgeID -> empty
//   - Edge Label:     0x06 + label + 0x00 + edgeID -> empty
//   - Sequence:       0x07 -> badger sequence
//
// Ids are 8-byte big-endian so prefix scans return them in ascending order.
package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

const (
	prefixVertex        = byte(0x01)
	prefixEdge          = byte(0x02)
	prefixLabelIndex    = byte(0x03)
	prefixOutgoingIndex = byte(0x04)
	prefixIncomingIndex = byte(0x05)
	prefixEdgeTypeIndex = byte(0x06)
	prefixSequence      = byte(0x07)
)

const sequenceBandwidth = 1000

var (
	// ErrNotFound is returned when a vertex or edge does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
	// ErrInvalidCommand is returned when a handler receives a command for the
	// wrong action.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidEndpoint is returned when an edge endpoint is not a persistent
	// vertex id.
	ErrInvalidEndpoint = errors.New("invalid edge endpoint")
	// ErrInvalidLabel is returned for a label containing a NUL byte, which
	// terminates labels in index keys.
	ErrInvalidLabel = errors.New("invalid label")
	// ErrInvalidProperty is returned for a property value the record encoding
	// cannot carry.
	ErrInvalidProperty = errors.New("invalid property value")
)

// Nested property values travel as interface values inside gob records.
func init() {
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(time.Time{})
}

// Options configures a Store.
type Options struct {
	// DataDir is the directory for data files. Ignored when InMemory is set.
	DataDir string
	// InMemory keeps all data in RAM. Data is lost on Close.
	InMemory bool
	// SyncWrites forces fsync after each write.
	SyncWrites bool
	// LowMemory shrinks memtables and caches.
	LowMemory bool
	Logger    zerolog.Logger
}

// Store is the BadgerDB-backed graph store. It is safe for concurrent use.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
	log zerolog.Logger

	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

type vertexRecord struct {
	ID         uint64
	Labels     []string
	Properties map[string]any
}

type edgeRecord struct {
	ID         uint64
	Label      string
	Out        uint64
	In         uint64
	Properties map[string]any
}

// Open opens (or creates) a store.
func Open(opts Options) (*Store, error) {
	log := opts.Logger.With().Str("component", "store").Logger()

	bopts := badger.DefaultOptions(opts.DataDir).
		WithLogger(badgerLogger{log: log}).
		WithSyncWrites(opts.SyncWrites).
		WithDetectConflicts(false)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.LowMemory {
		bopts = bopts.
			WithMemTableSize(8 << 20).
			WithValueLogFileSize(32 << 20).
			WithNumMemtables(1).
			WithNumLevelZeroTables(1).
			WithNumLevelZeroTablesStall(2).
			WithBlockCacheSize(8 << 20).
			WithIndexCacheSize(4 << 20)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	seq, err := db.GetSequence([]byte{prefixSequence}, sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open id sequence: %w", err)
	}

	log.Info().Str("dir", opts.DataDir).Bool("in_memory", opts.InMemory).Msg("store opened")
	return &Store{db: db, seq: seq, log: log}, nil
}

// OpenInMemory opens an in-memory store, for tests and demos.
func OpenInMemory() (*Store, error) {
	return Open(Options{InMemory: true, Logger: zerolog.Nop()})
}

// Close releases the id sequence and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	seqErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return err
	}
	return seqErr
}

// Counts returns the number of stored vertices and edges.
func (s *Store) Counts(ctx context.Context) (vertices, edges int, err error) {
	err = s.withView(ctx, func(txn *badger.Txn) error {
		vertices = countPrefix(txn, []byte{prefixVertex})
		edges = countPrefix(txn, []byte{prefixEdge})
		return nil
	})
	return vertices, edges, err
}

func (s *Store) ensureOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) withView(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	return s.db.View(fn)
}

// withUpdate runs fn in a read-write transaction. Writers are serialized by
// writeMu, so Badger's conflict detection is switched off.
func (s *Store) withUpdate(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := s.ensureOpen(ctx); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.Update(fn)
}

func (s *Store) nextID() (uint64, error) {
	for {
		id, err := s.seq.Next()
		if err != nil {
			return 0, fmt.Errorf("next id: %w", err)
		}
		// 0 is reserved so no record ever carries the zero id
		if id != 0 {
			return id, nil
		}
	}
}

// ============================================================================
// Validation
// ============================================================================

func validateLabels(labels ...string) error {
	for _, l := range labels {
		if strings.IndexByte(l, 0) >= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidLabel, l)
		}
	}
	return nil
}

// validateProperties accepts scalars, time.Time, slices of scalars, and
// []any / map[string]any nesting of those.
func validateProperties(props map[string]any) error {
	for k, v := range props {
		if err := validateValue(v); err != nil {
			return fmt.Errorf("property %q: %w", k, err)
		}
	}
	return nil
}

func validateValue(v any) error {
	switch val := v.(type) {
	case nil, bool, string, []byte, time.Time,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]bool, []string, []int, []int64, []float64:
		return nil
	case []any:
		for _, e := range val {
			if err := validateValue(e); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		return validateProperties(val)
	}
	return fmt.Errorf("%w: unsupported type %T", ErrInvalidProperty, v)
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func idKey(prefix byte, id uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefix
	binary.BigEndian.PutUint64(key[1:], id)
	return key
}

func vertexKey(id uint64) []byte { return idKey(prefixVertex, id) }

func edgeKey(id uint64) []byte { return idKey(prefixEdge, id) }

// labelKey: prefix + label + 0x00 + id
func labelKey(prefix byte, label string, id uint64) []byte {
	key := labelPrefix(prefix, label)
	return binary.BigEndian.AppendUint64(key, id)
}

func labelPrefix(prefix byte, label string) []byte {
	key := make([]byte, 0, 1+len(label)+1+8)
	key = append(key, prefix)
	key = append(key, label...)
	return append(key, 0x00)
}

// adjacencyKey: prefix + vertexID + edgeID
func adjacencyKey(prefix byte, vertex, edge uint64) []byte {
	key := idKey(prefix, vertex)
	return binary.BigEndian.AppendUint64(key, edge)
}

func adjacencyPrefix(prefix byte, vertex uint64) []byte {
	return idKey(prefix, vertex)
}

// trailingID reads the id stored in the last 8 bytes of an index key.
func trailingID(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// ============================================================================
// Serialization helpers
// ============================================================================

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// load reads and decodes the record under key. It returns ErrNotFound when
// the key is absent.
func load[T any](txn *badger.Txn, key []byte) (*T, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec *T
	err = item.Value(func(val []byte) error {
		var decodeErr error
		rec, decodeErr = decode[T](val)
		return decodeErr
	})
	return rec, err
}

func put(txn *badger.Txn, key []byte, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scanIDs collects the trailing ids of every key under prefix.
func scanIDs(txn *badger.Txn, prefix []byte) []uint64 {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []uint64
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, trailingID(it.Item().Key()))
	}
	return ids
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}
