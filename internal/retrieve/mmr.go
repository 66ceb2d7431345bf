package retrieve

import (
	"context"
	"fmt"
)

// selectMMR applies Maximal Marginal Relevance over an oversized
// nearest-neighbor pool: each step picks the candidate maximizing
//
//	lambda*rel(q,c) - (1-lambda)*max_sim(c, selected)
//
// which penalizes near-duplicates of what was already chosen. The first pick
// is always the most relevant candidate; ties resolve by original relevance
// rank because the pool arrives relevance-ordered and the argmax keeps the
// earliest maximum.
func (r *Retriever) selectMMR(ctx context.Context, query string, k int) ([]Hit, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	pool, err := r.store.NearestNeighbors(ctx, vec, k*r.fanOut)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	relevance := make([]float64, len(pool))
	for i, c := range pool {
		relevance[i] = cosineSimilarity(vec, c.Embedding)
	}

	selected := make([]int, 0, k)
	remaining := make([]int, len(pool))
	for i := range pool {
		remaining[i] = i
	}

	for len(selected) < k && len(remaining) > 0 {
		bestPos := -1
		bestScore := 0.0
		for pos, cand := range remaining {
			novelty := 0.0
			for _, sel := range selected {
				if sim := cosineSimilarity(pool[cand].Embedding, pool[sel].Embedding); sim > novelty {
					novelty = sim
				}
			}
			score := r.lambda*relevance[cand] - (1-r.lambda)*novelty
			if bestPos == -1 || score > bestScore {
				bestPos = pos
				bestScore = score
			}
		}
		selected = append(selected, remaining[bestPos])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	hits := make([]Hit, len(selected))
	for i, idx := range selected {
		hits[i] = Hit{
			Chunk: pool[idx],
			Score: 1 - relevance[idx], // callers see cosine distance for vector modes
			Kind:  ScoreCosineDistance,
		}
	}
	return hits, nil
}
