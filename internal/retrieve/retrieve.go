// Package retrieve selects the chunks relevant to a query. Three strategies
// are supported: plain nearest-neighbor, diversity-aware re-ranking (MMR),
// and lexical BM25 scoring. The strategy is explicit configuration; it is
// never guessed from the query.
package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/docquery/docquery/internal/embed"
	"github.com/docquery/docquery/internal/store"
)

// Mode names a retrieval strategy.
type Mode string

const (
	ModeKNN  Mode = "knn"
	ModeMMR  Mode = "mmr"
	ModeBM25 Mode = "bm25"
)

// ParseMode validates a configured mode string. Unknown modes are a
// configuration error, surfaced immediately rather than silently defaulted.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeKNN, ModeMMR, ModeBM25:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown retrieval mode %q (want knn, mmr, or bm25)", s)
	}
}

// ScoreKind tells callers how to read a hit's score.
type ScoreKind string

const (
	// ScoreCosineDistance: lower is more relevant. Reported for knn and mmr.
	ScoreCosineDistance ScoreKind = "cosine_distance"
	// ScoreBM25: higher is more relevant.
	ScoreBM25 ScoreKind = "bm25"
)

// Hit is one retrieved chunk with its raw score. Hits are created per query
// and discarded once the answer is composed.
type Hit struct {
	Chunk store.Chunk
	Score float64
	Kind  ScoreKind
}

// Defaults for MMR tuning: skew toward relevance with a modest pool.
const (
	DefaultLambda = 0.6
	DefaultFanOut = 4
)

// Config tunes the retriever.
type Config struct {
	// Lambda balances relevance against novelty for MMR. 1 means pure
	// relevance (identical to knn ordering), 0 pure diversity. Nil or an
	// out-of-range value selects DefaultLambda; explicit zero is honored.
	Lambda *float64
	// FanOut multiplies k to size the MMR candidate pool.
	FanOut int
}

// Retriever answers Select queries against a chunk store.
type Retriever struct {
	store    store.ChunkStore
	embedder embed.Embedder
	lambda   float64
	fanOut   int
}

// New creates a retriever. The embedder must be the one used at ingestion.
func New(st store.ChunkStore, embedder embed.Embedder, cfg Config) *Retriever {
	lambda := DefaultLambda
	if cfg.Lambda != nil && *cfg.Lambda >= 0 && *cfg.Lambda <= 1 {
		lambda = *cfg.Lambda
	}
	fanOut := cfg.FanOut
	if fanOut <= 0 {
		fanOut = DefaultFanOut
	}
	return &Retriever{store: st, embedder: embedder, lambda: lambda, fanOut: fanOut}
}

// Select returns up to k hits for the query, ordered most relevant first.
// An empty store yields an empty slice, never an error: absence of evidence
// is the composer's problem, not a failure.
func (r *Retriever) Select(ctx context.Context, query string, k int, mode Mode) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	switch mode {
	case ModeKNN:
		return r.selectKNN(ctx, query, k)
	case ModeMMR:
		return r.selectMMR(ctx, query, k)
	case ModeBM25:
		return r.selectBM25(ctx, query, k)
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", mode)
	}
}

func (r *Retriever) selectKNN(ctx context.Context, query string, k int) ([]Hit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := r.store.NearestNeighbors(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}

	hits := make([]Hit, len(chunks))
	for i, c := range chunks {
		hits[i] = Hit{Chunk: c, Score: cosineDistance(vec, c.Embedding), Kind: ScoreCosineDistance}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	return hits, nil
}

// cosineDistance returns 1 - cosine similarity, in [0, 2]. Zero vectors are
// treated as maximally unrelated instead of producing NaN.
func cosineDistance(a, b []float32) float64 {
	return 1 - cosineSimilarity(a, b)
}

func cosineSimilarity(a, b []float32) float64 {
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
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
