// Package hashing implements a deterministic local embedder using the
// feature-hashing trick: each token is hashed into one of Dimension buckets
// and the resulting histogram is L2-normalized. No model download, no
// network, no corpus preparation pass. Quality is far below a sentence
// transformer, but it is stable and cheap, which is what the offline default
// and the test suite need.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultDimension = 256

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Embedder is a stateless feature-hashing embedder.
type Embedder struct {
	dim int
}

// New creates a hashing embedder. dim <= 0 selects DefaultDimension.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Embedder{dim: dim}
}

func (e *Embedder) Name() string   { return "hashing" }
func (e *Embedder) Dimension() int { return e.dim }

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		// Low bit decides sign so unrelated token sets stay near-orthogonal.
		idx := int(sum>>1) % e.dim
		if sum&1 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}
