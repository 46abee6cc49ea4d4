package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// MemoryStore implements VectorStore in process memory on an HNSW graph.
// Used for vector.mode "memory": offline development and tests. Contents
// vanish with the process; the reconciler treats the resulting empty
// store as remote drift and re-indexes.
type MemoryStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	// chunk ID <-> internal graph key
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	payloads map[string]Payload
	// path -> chunk IDs indexed under it
	byPath map[string]map[string]struct{}

	closed bool
}

// Verify interface implementation at compile time
var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store for vectors of the
// given width.
func NewMemoryStore(dims int) *MemoryStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &MemoryStore{
		graph:    graph,
		dims:     dims,
		idMap:    make(map[string]uint64),
		keyMap:   make(map[uint64]string),
		payloads: make(map[string]Payload),
		byPath:   make(map[string]map[string]struct{}),
	}
}

// Upsert inserts or replaces points by chunk ID.
func (s *MemoryStore) Upsert(_ context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, p := range points {
		if len(p.Vector) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(p.Vector)}
		}
	}

	for _, p := range points {
		// Lazy deletion on replace: orphan the old graph node instead of
		// removing it. Deleting nodes from the graph can leave it broken
		// when the last node goes.
		if existingKey, exists := s.idMap[p.ID]; exists {
			delete(s.keyMap, existingKey)
			s.forgetPath(p.ID)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		normalizeInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[p.ID] = key
		s.keyMap[key] = p.ID
		s.payloads[p.ID] = p.Payload

		bucket := s.byPath[p.Payload.Path]
		if bucket == nil {
			bucket = make(map[string]struct{})
			s.byPath[p.Payload.Path] = bucket
		}
		bucket[p.ID] = struct{}{}
	}

	return nil
}

// forgetPath drops id from the path index. Caller holds the lock.
func (s *MemoryStore) forgetPath(id string) {
	payload, ok := s.payloads[id]
	if !ok {
		return
	}
	if bucket, ok := s.byPath[payload.Path]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(s.byPath, payload.Path)
		}
	}
}

// DeleteByPath removes every point indexed under path. Absent paths
// are a no-op.
func (s *MemoryStore) DeleteByPath(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for id := range s.byPath[path] {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
		delete(s.payloads, id)
	}
	delete(s.byPath, path)

	return nil
}

// PointCount returns the number of live points.
func (s *MemoryStore) PointCount(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}
	return len(s.idMap), nil
}

// ListIndexedPaths returns the distinct paths with at least one point.
func (s *MemoryStore) ListIndexedPaths(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	paths := make(map[string]struct{}, len(s.byPath))
	for path := range s.byPath {
		paths[path] = struct{}{}
	}
	return paths, nil
}

// Search returns the limit nearest live points. Orphaned graph nodes
// (lazy-deleted) are skipped, so fewer than limit hits can come back
// even when the store holds enough points.
func (s *MemoryStore) Search(_ context.Context, vector []float32, limit int) ([]SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(vector) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(vector)}
	}
	if limit <= 0 {
		limit = 10
	}
	if s.graph.Len() == 0 {
		return []SearchHit{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeInPlace(query)

	// Over-fetch to compensate for orphans left by lazy deletion
	fetch := limit + (s.graph.Len() - len(s.idMap))
	nodes := s.graph.Search(query, fetch)

	hits := make([]SearchHit, 0, limit)
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		distance := s.graph.Distance(query, node.Value)
		hits = append(hits, SearchHit{
			ID:      id,
			Score:   1.0 - distance/2.0,
			Payload: s.payloads[id],
		})
		if len(hits) == limit {
			break
		}
	}

	return hits, nil
}

// Close releases the graph.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeInPlace normalizes a vector to unit length in place.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
