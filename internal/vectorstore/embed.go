package vectorstore

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"vecsearch/internal/embedding"
)

// DefaultEmbedConcurrency bounds in-flight provider calls per batch.
const DefaultEmbedConcurrency = 8

// EmbedAll embeds texts concurrently, preserving order. The first failure
// cancels the remaining calls.
func EmbedAll(ctx context.Context, emb embedding.Embedder, texts []string, limit int) ([][]float32, error) {
	if limit <= 0 {
		limit = DefaultEmbedConcurrency
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := emb.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
