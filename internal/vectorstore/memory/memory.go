package memory

import (
	"context"
	"sync"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding"
	"vecsearch/internal/vectorstore"
)

type entry struct {
	record domain.Record
	vector []float32
}

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Nothing survives a restart; it exists for tests and local runs.
type Storage struct {
	embedder embedding.Embedder

	mu         sync.RWMutex
	spec       *domain.IndexSpec
	partitions map[domain.Namespace]map[string]entry
}

func NewStorage(embedder embedding.Embedder) *Storage {
	return &Storage{embedder: embedder}
}

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec != nil, nil
}

func (s *Storage) Create(ctx context.Context, spec domain.IndexSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spec != nil {
		return domain.ErrIndexExists
	}
	if spec.Dimension == 0 {
		spec.Dimension = s.embedder.Dimension()
	}
	s.spec = &spec
	s.partitions = make(map[domain.Namespace]map[string]entry)
	return nil
}

func (s *Storage) Ready(ctx context.Context) (bool, error) {
	return s.Exists(ctx)
}

func (s *Storage) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spec == nil {
		return domain.ErrIndexNotFound
	}
	s.spec = nil
	s.partitions = nil
	return nil
}

func (s *Storage) Upsert(ctx context.Context, ns domain.Namespace, records []domain.Record) error {
	if ok, _ := s.Exists(ctx); !ok {
		return domain.ErrIndexNotFound
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	// Embed outside the lock; provider calls may be slow.
	vectors, err := vectorstore.EmbedAll(ctx, s.embedder, texts, 0)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spec == nil {
		return domain.ErrIndexNotFound
	}
	part, ok := s.partitions[ns]
	if !ok {
		part = make(map[string]entry)
		s.partitions[ns] = part
	}
	for i, r := range records {
		r.Namespace = ns
		part[r.ID] = entry{record: r, vector: vectors[i]}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, ns domain.Namespace, query string, topK int) ([]domain.Candidate, error) {
	if ok, _ := s.Exists(ctx); !ok {
		return nil, domain.ErrIndexNotFound
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.spec == nil {
		return nil, domain.ErrIndexNotFound
	}
	part := s.partitions[ns]
	cands := make([]domain.Candidate, 0, len(part))
	for _, e := range part {
		score, err := vectorstore.Cosine(e.vector, qvec)
		if err != nil {
			return nil, err
		}
		cands = append(cands, domain.Candidate{ID: e.record.ID, Title: e.record.Title, Text: e.record.Text, Score: score})
	}
	return vectorstore.TopK(cands, topK), nil
}

// Count returns the number of records held in ns.
func (s *Storage) Count(ns domain.Namespace) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions[ns])
}

func (s *Storage) Close() error { return nil }

var _ vectorstore.Storage = (*Storage)(nil)
