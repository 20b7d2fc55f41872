package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vecsearch/internal/domain"
	"vecsearch/internal/index"
)

// InsertRequest is one record as submitted by a caller. Summary is the text
// that gets embedded.
type InsertRequest struct {
	ID        string `form:"id" json:"id"`
	Summary   string `form:"summary" json:"summary"`
	Title     string `form:"title" json:"title"`
	Namespace string `form:"namespace" json:"namespace"`
}

type RetrieveRequest struct {
	TopK      int    `form:"top_k" json:"top_k"`
	Query     string `form:"query" json:"query"`
	Namespace string `form:"namespace" json:"namespace"`
}

// Health is the liveness report.
type Health struct {
	Status string `json:"status"`
	Index  string `json:"index"`
	Ready  bool   `json:"ready"`
}

type Options struct {
	// RequestTimeout bounds every data operation. Zero disables it.
	RequestTimeout time.Duration
}

// SearchService is the boundary in front of the index. It validates input
// and keeps teardown from overlapping data operations.
type SearchService struct {
	// mu is held shared by Insert and Retrieve and exclusively by
	// ClearAll and Provision.
	mu      sync.RWMutex
	manager *index.Manager
	index   *index.Index
	opts    Options
	logger  *slog.Logger
}

func NewSearchService(manager *index.Manager, idx *index.Index, opts Options, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{manager: manager, index: idx, opts: opts, logger: logger.With("component", "search")}
}

func (s *SearchService) Insert(ctx context.Context, req InsertRequest) error {
	rec, err := req.record()
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.manager.Ready() {
		return s.notReady()
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.index.Upsert(ctx, rec); err != nil {
		return s.deadline(ctx, "insert", err)
	}
	s.logger.Info("inserted record", "namespace", rec.Namespace, "id", rec.ID)
	return nil
}

// InsertBatch validates every request, then writes them all. It returns the
// number of records written.
func (s *SearchService) InsertBatch(ctx context.Context, reqs []InsertRequest) (int, error) {
	if len(reqs) == 0 {
		return 0, &domain.ValidationError{Field: "records", Reason: "must not be empty"}
	}
	recs := make([]domain.Record, len(reqs))
	for i, req := range reqs {
		rec, err := req.record()
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		recs[i] = rec
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.manager.Ready() {
		return 0, s.notReady()
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.index.UpsertBatch(ctx, recs); err != nil {
		return 0, s.deadline(ctx, "insert batch", err)
	}
	s.logger.Info("inserted batch", "count", len(recs))
	return len(recs), nil
}

// Retrieve returns the reranked hits for req. An unprovisioned index yields
// an empty result.
func (s *SearchService) Retrieve(ctx context.Context, req RetrieveRequest) ([]domain.Hit, error) {
	ns, err := domain.ParseNamespace(req.Namespace)
	if err != nil {
		return nil, err
	}
	if req.TopK < 1 {
		return nil, &domain.ValidationError{Field: "top_k", Reason: "must be at least 1"}
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, &domain.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.manager.Ready() {
		return []domain.Hit{}, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	hits, err := s.index.Retrieve(ctx, ns, req.Query, req.TopK)
	if err != nil {
		return nil, s.deadline(ctx, "retrieve", err)
	}
	return hits, nil
}

// ClearAll deletes the whole index. Inserts fail until Provision runs again.
func (s *SearchService) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.manager.Teardown(ctx); err != nil {
		return err
	}
	s.logger.Warn("index cleared", "index", s.manager.Spec().Name)
	return nil
}

// Provision recreates the index after a ClearAll. It is a no-op when the
// index is already serving.
func (s *SearchService) Provision(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.EnsureReady(ctx)
}

func (s *SearchService) Ready() bool { return s.manager.Ready() }

func (s *SearchService) Health() Health {
	return Health{Status: "ok", Index: s.manager.Spec().Name, Ready: s.manager.Ready()}
}

func (s *SearchService) notReady() error {
	return &domain.ProvisioningError{Index: s.manager.Spec().Name, Err: domain.ErrIndexNotReady}
}

func (s *SearchService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

// deadline reports an expired request deadline as a store outage.
func (s *SearchService) deadline(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrStoreUnavailable) {
		return &domain.StoreUnavailableError{Op: op, Err: ctx.Err()}
	}
	return err
}

func (r InsertRequest) record() (domain.Record, error) {
	ns, err := domain.ParseNamespace(r.Namespace)
	if err != nil {
		return domain.Record{}, err
	}
	rec := domain.Record{ID: strings.TrimSpace(r.ID), Text: r.Summary, Title: r.Title, Namespace: ns}
	if err := rec.Validate(); err != nil {
		return domain.Record{}, err
	}
	return rec, nil
}
