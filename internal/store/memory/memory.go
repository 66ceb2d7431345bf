// Package memory provides a brute-force in-memory ChunkStore. It is the
// default backend for small corpora and the fixture store for tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/docquery/docquery/internal/store"
)

// Store holds chunks in process memory and answers nearest-neighbor queries
// by scanning every vector. Fine at corpus scale; not an index.
type Store struct {
	mu     sync.RWMutex
	chunks []store.Chunk
	byID   map[string]int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{byID: make(map[string]int)}
}

func (s *Store) Upsert(_ context.Context, chunks []store.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("memory store: chunk with empty id (source %q)", c.SourcePath)
		}
		if i, ok := s.byID[c.ID]; ok {
			s.chunks[i] = c
			continue
		}
		s.byID[c.ID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
	}
	return nil
}

func (s *Store) NearestNeighbors(_ context.Context, vector []float32, k int) ([]store.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.chunks) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		idx  int
		dist float64
	}
	all := make([]scored, len(s.chunks))
	for i, c := range s.chunks {
		all[i] = scored{idx: i, dist: cosineDistance(vector, c.Embedding)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })

	if k > len(all) {
		k = len(all)
	}
	out := make([]store.Chunk, k)
	for i := 0; i < k; i++ {
		out[i] = s.chunks[all[i].idx]
	}
	return out, nil
}

func (s *Store) AllChunks(_ context.Context) ([]store.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// cosineDistance returns 1 - cosine similarity. Zero vectors compare as
// maximally distant rather than producing NaN.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
