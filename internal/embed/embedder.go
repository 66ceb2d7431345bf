// Package embed converts free text into vector representations. The same
// embedder must be used at ingest time and query time or distances are
// meaningless.
package embed

import "context"

// Embedder produces fixed-dimension vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}
