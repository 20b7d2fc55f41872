// Package rerank defines the second-stage relevance pass applied to
// similarity candidates before they are returned to callers.
package rerank

import (
	"context"
	"sort"

	"vecsearch/internal/domain"
)

// Reranker scores documents against a query.
type Reranker interface {
	Name() string
	// Rerank returns at most topN results ordered by descending score.
	// Each result refers to its document by index into docs.
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]domain.RerankResult, error)
}

// SortAndTruncate orders results by score descending, keeping input order on
// ties, and cuts the slice to topN.
func SortAndTruncate(results []domain.RerankResult, topN int) []domain.RerankResult {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}
	return results
}
