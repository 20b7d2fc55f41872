package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"vecsearch/internal/domain"
	"vecsearch/internal/rerank"
	"vecsearch/internal/vectorstore"
)

const (
	DefaultOverfetch     = 3
	DefaultMaxCandidates = 100
)

// Options tunes candidate generation for Retrieve.
type Options struct {
	// Overfetch multiplies k to size the candidate pool handed to the reranker.
	Overfetch int
	// MaxCandidates caps the candidate pool.
	MaxCandidates int
}

// Index reads and writes records of one named index. Embedding happens inside
// the store; the index only sees text.
type Index struct {
	name     string
	store    vectorstore.Data
	reranker rerank.Reranker
	opts     Options
	logger   *slog.Logger
}

func New(name string, store vectorstore.Data, reranker rerank.Reranker, opts Options, logger *slog.Logger) *Index {
	if opts.Overfetch < 1 {
		opts.Overfetch = DefaultOverfetch
	}
	if opts.MaxCandidates < 1 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{name: name, store: store, reranker: reranker, opts: opts, logger: logger.With("index", name)}
}

// Upsert writes r under (r.Namespace, r.ID), replacing any previous record.
func (ix *Index) Upsert(ctx context.Context, r domain.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return ix.write(ctx, r.Namespace, []domain.Record{r})
}

// UpsertBatch validates every record before writing any, then writes one
// store call per namespace.
func (ix *Index) UpsertBatch(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	groups := make(map[domain.Namespace][]domain.Record)
	for _, r := range records {
		groups[r.Namespace] = append(groups[r.Namespace], r)
	}
	for _, ns := range domain.Namespaces() {
		if recs := groups[ns]; len(recs) > 0 {
			if err := ix.write(ctx, ns, recs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *Index) write(ctx context.Context, ns domain.Namespace, records []domain.Record) error {
	err := ix.store.Upsert(ctx, ns, records)
	switch {
	case err == nil:
		ix.logger.Debug("upserted", "namespace", ns, "count", len(records))
		return nil
	case errors.Is(err, domain.ErrIndexNotFound):
		return &domain.ProvisioningError{Index: ix.name, Err: err}
	default:
		return &domain.StoreUnavailableError{Op: "upsert", Err: err}
	}
}

// Retrieve returns at most k hits for query from namespace ns, ordered by
// rerank score descending. A missing index or an empty namespace yields an
// empty slice.
func (ix *Index) Retrieve(ctx context.Context, ns domain.Namespace, query string, k int) ([]domain.Hit, error) {
	if k < 1 {
		return nil, &domain.ValidationError{Field: "top_k", Reason: "must be at least 1"}
	}
	if !ns.Valid() {
		return nil, &domain.ValidationError{Field: "namespace", Reason: "must be one of paper, dataset, algo"}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	n := ix.candidateCount(k)
	cands, err := ix.store.Search(ctx, ns, query, n)
	if errors.Is(err, domain.ErrIndexNotFound) {
		ix.logger.Warn("retrieve on missing index", "namespace", ns)
		return []domain.Hit{}, nil
	}
	if err != nil {
		return nil, &domain.StoreUnavailableError{Op: "search", Err: err}
	}
	if len(cands) == 0 {
		return []domain.Hit{}, nil
	}

	docs := make([]string, len(cands))
	for i, c := range cands {
		docs[i] = c.Text
	}
	results, err := ix.reranker.Rerank(ctx, query, docs, k)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Op: "rerank", Err: err}
	}
	results = rerank.SortAndTruncate(results, k)

	hits := make([]domain.Hit, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(cands) {
			return nil, &domain.StoreUnavailableError{Op: "rerank", Err: fmt.Errorf("result index %d out of range", r.Index)}
		}
		c := cands[r.Index]
		hits = append(hits, domain.Hit{ID: c.ID, Score: round2(r.Score), Text: c.Text, Title: c.Title})
	}
	ix.logger.Debug("retrieved", "namespace", ns, "candidates", len(cands), "hits", len(hits))
	return hits, nil
}

// candidateCount is max(k, min(k*overfetch, maxCandidates)).
func (ix *Index) candidateCount(k int) int {
	n := min(k*ix.opts.Overfetch, ix.opts.MaxCandidates)
	return max(n, k)
}

func round2(s float64) float64 { return math.Round(s*100) / 100 }
