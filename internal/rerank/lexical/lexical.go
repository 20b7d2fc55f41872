package lexical

import (
	"context"
	"math"
	"regexp"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding/hashing"
	"vecsearch/internal/rerank"
)

// Reranker scores documents by the Ochiai coefficient of query and document
// term sets: |A∩B| / sqrt(|A||B|).
type Reranker struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates a lexical reranker using the same tokenizer as the hashing embedder.
func New() *Reranker {
	return &Reranker{
		tokenPattern: hashing.TokenPattern(),
		stopwords:    hashing.DefaultStopwords(),
	}
}

func (r *Reranker) Name() string { return "lexical-ochiai" }

func (r *Reranker) Rerank(ctx context.Context, query string, docs []string, topN int) ([]domain.RerankResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	qset := r.toTokenSet(query)
	out := make([]domain.RerankResult, len(docs))
	for i, d := range docs {
		out[i] = domain.RerankResult{Index: i, Score: r.overlapOchiai(qset, d)}
	}
	return rerank.SortAndTruncate(out, topN), nil
}

func (r *Reranker) toTokenSet(s string) map[string]struct{} {
	tokens := hashing.Tokenize(r.tokenPattern, r.stopwords, s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func (r *Reranker) overlapOchiai(qset map[string]struct{}, text string) float64 {
	dset := r.toTokenSet(text)
	if len(qset) == 0 || len(dset) == 0 {
		return 0
	}
	inter := 0
	for t := range dset {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(dset)))
}
