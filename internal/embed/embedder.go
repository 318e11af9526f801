package embed

import "context"

// Embedder maps text to fixed-dimension vectors. For a fixed model version
// the mapping is deterministic up to floating-point rounding in the backend;
// callers must not rely on bit-exact equality across backend restarts.
//
// Dimension returns 0 until the first successful embedding when the backend
// does not publish its dimensionality up front.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelInfo() string
}
