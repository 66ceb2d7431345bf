// Package store defines the chunk corpus model and the backends that hold it.
package store

import "context"

// Chunk is a bounded span of source text plus its embedding and provenance.
// Chunks are immutable once written by ingestion.
type Chunk struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	SourcePath string    `json:"source_path"`
	Page       int       `json:"page,omitempty"` // 0 = unknown / not paginated
	Embedding  []float32 `json:"-"`
}

// ChunkStore persists chunks and supports nearest-neighbor and full-scan
// queries. Implementations must be safe for concurrent readers.
type ChunkStore interface {
	// Upsert writes chunks, replacing any existing chunk with the same ID.
	Upsert(ctx context.Context, chunks []Chunk) error
	// NearestNeighbors returns up to k chunks ordered by ascending cosine
	// distance from the query vector. An empty store yields an empty slice.
	NearestNeighbors(ctx context.Context, vector []float32, k int) ([]Chunk, error)
	// AllChunks returns every persisted chunk, used to build lexical indexes.
	AllChunks(ctx context.Context) ([]Chunk, error)
	// Count reports the number of persisted chunks.
	Count(ctx context.Context) (int, error)
}
