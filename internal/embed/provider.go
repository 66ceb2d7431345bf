package embed

import (
	"context"
	"fmt"

	"github.com/docquery/docquery/internal/llm"
)

// ProviderEmbedder adapts an llm.Provider's embedding endpoint to the
// Embedder interface. Dimension is fixed by the remote model and must be
// declared up front so stores can validate vectors without a network call.
type ProviderEmbedder struct {
	provider llm.Provider
	dim      int
}

// NewProviderEmbedder wraps a provider. dim must match the embedding model's
// output dimension (e.g. 1536 for text-embedding-3-small).
func NewProviderEmbedder(provider llm.Provider, dim int) (*ProviderEmbedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("embed: nil provider")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embed: invalid dimension %d", dim)
	}
	return &ProviderEmbedder{provider: provider, dim: dim}, nil
}

func (e *ProviderEmbedder) Name() string   { return e.provider.Name() }
func (e *ProviderEmbedder) Dimension() int { return e.dim }

func (e *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed via %s: %w", e.provider.Name(), err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed via %s: got %d vectors for one input", e.provider.Name(), len(vecs))
	}
	if len(vecs[0]) != e.dim {
		return nil, fmt.Errorf("embed via %s: dimension %d, want %d", e.provider.Name(), len(vecs[0]), e.dim)
	}
	return vecs[0], nil
}
