package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// Stores call it at write and query time; callers of the index never see vectors.
type Embedder interface {
	// Name is the provider model identifier recorded in the index spec.
	Name() string
	// Dimension returns the vector size, or 0 while still unknown.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}
