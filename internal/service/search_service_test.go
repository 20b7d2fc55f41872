package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding/hashing"
	"vecsearch/internal/index"
	"vecsearch/internal/rerank/lexical"
	"vecsearch/internal/vectorstore/memory"
)

func newTestService(t *testing.T, opts Options) *SearchService {
	t.Helper()
	emb := hashing.NewEmbedder(512)
	store := memory.NewStorage(emb)
	spec := domain.IndexSpec{Name: "anu", Model: emb.Name(), Field: "chunk_text", Dimension: emb.Dimension()}
	mgr := index.NewManager(spec, store, index.ManagerConfig{ReadyTimeout: time.Second, PollInterval: 5 * time.Millisecond}, nil)
	require.NoError(t, mgr.EnsureReady(context.Background()))
	idx := index.New(spec.Name, store, lexical.New(), index.Options{}, nil)
	return NewSearchService(mgr, idx, opts, nil)
}

func TestInsertAndRetrieve(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Insert(ctx, InsertRequest{ID: "p1", Summary: "graph neural networks for molecule generation", Title: "GNN-Mol", Namespace: "paper"}))
	require.NoError(t, svc.Insert(ctx, InsertRequest{ID: "p2", Summary: "transformer architectures for protein folding", Namespace: "paper"}))

	hits, err := svc.Retrieve(ctx, RetrieveRequest{TopK: 1, Query: "molecule generation with graphs", Namespace: "paper"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.Hit{ID: "p1", Score: 0.77, Text: "graph neural networks for molecule generation", Title: "GNN-Mol"}, hits[0])
}

func TestInsertSameIDKeepsLatestTitle(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	require.NoError(t, svc.Insert(ctx, InsertRequest{ID: "a1", Summary: "dijkstra shortest path", Title: "v1", Namespace: "algo"}))
	require.NoError(t, svc.Insert(ctx, InsertRequest{ID: "a1", Summary: "dijkstra shortest path", Title: "v2", Namespace: "algo"}))

	hits, err := svc.Retrieve(ctx, RetrieveRequest{TopK: 5, Query: "shortest path", Namespace: "algo"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v2", hits[0].Title)
}

func TestValidation(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	for name, req := range map[string]InsertRequest{
		"namespace": {ID: "x", Summary: "y", Namespace: "news"},
		"id":        {ID: " ", Summary: "y", Namespace: "paper"},
		"summary":   {ID: "x", Summary: "", Namespace: "paper"},
	} {
		t.Run("insert "+name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Insert(ctx, req), domain.ErrValidation)
		})
	}
	for name, req := range map[string]RetrieveRequest{
		"namespace": {TopK: 1, Query: "q", Namespace: "blog"},
		"top_k":     {TopK: 0, Query: "q", Namespace: "paper"},
		"query":     {TopK: 1, Query: "  ", Namespace: "paper"},
	} {
		t.Run("retrieve "+name, func(t *testing.T) {
			_, err := svc.Retrieve(ctx, req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestClearAllIsFinal(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	require.NoError(t, svc.Insert(ctx, InsertRequest{ID: "d1", Summary: "census income dataset", Namespace: "dataset"}))

	require.NoError(t, svc.ClearAll(ctx))
	assert.False(t, svc.Ready())
	assert.False(t, svc.Health().Ready)

	hits, err := svc.Retrieve(ctx, RetrieveRequest{TopK: 3, Query: "census", Namespace: "dataset"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	err = svc.Insert(ctx, InsertRequest{ID: "d2", Summary: "more data", Namespace: "dataset"})
	assert.ErrorIs(t, err, domain.ErrProvisioning)

	assert.ErrorIs(t, svc.ClearAll(ctx), domain.ErrIndexNotFound)

	require.NoError(t, svc.Provision(ctx))
	assert.True(t, svc.Ready())
	require.NoError(t, svc.Insert(ctx, InsertRequest{ID: "d2", Summary: "more data", Namespace: "dataset"}))
	hits, err = svc.Retrieve(ctx, RetrieveRequest{TopK: 3, Query: "census", Namespace: "dataset"})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "d1", h.ID)
	}
}

func TestInsertBatch(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	n, err := svc.InsertBatch(ctx, []InsertRequest{
		{ID: "a1", Summary: "quick sort", Namespace: "algo"},
		{ID: "a2", Summary: "merge sort", Namespace: "algo"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = svc.InsertBatch(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.InsertBatch(ctx, []InsertRequest{{ID: "a3", Summary: "heap sort", Namespace: "algo"}, {ID: "a4", Namespace: "algo"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	hits, err := svc.Retrieve(ctx, RetrieveRequest{TopK: 10, Query: "heap sort", Namespace: "algo"})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "a3", h.ID)
	}
}

func TestConcurrentOperationsWithTeardown(t *testing.T) {
	svc := newTestService(t, Options{RequestTimeout: time.Second})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := svc.Insert(ctx, InsertRequest{ID: "x", Summary: "concurrent write", Namespace: "paper"})
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrProvisioning)
				}
				_, err = svc.Retrieve(ctx, RetrieveRequest{TopK: 2, Query: "concurrent", Namespace: "paper"})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.ClearAll(ctx))
	}()
	wg.Wait()
	assert.False(t, svc.Ready())
}

func TestHealth(t *testing.T) {
	svc := newTestService(t, Options{})
	assert.Equal(t, Health{Status: "ok", Index: "anu", Ready: true}, svc.Health())
}

func TestInsertAfterExternalDrop(t *testing.T) {
	emb := hashing.NewEmbedder(512)
	store := memory.NewStorage(emb)
	spec := domain.IndexSpec{Name: "anu", Model: emb.Name(), Field: "chunk_text", Dimension: emb.Dimension()}
	mgr := index.NewManager(spec, store, index.ManagerConfig{ReadyTimeout: time.Second, PollInterval: 5 * time.Millisecond}, nil)
	ctx := context.Background()
	require.NoError(t, mgr.EnsureReady(ctx))
	svc := NewSearchService(mgr, index.New(spec.Name, store, lexical.New(), index.Options{}, nil), Options{}, nil)

	// Another replica removed the index.
	require.NoError(t, store.Drop(ctx))

	err := svc.Insert(ctx, InsertRequest{ID: "p1", Summary: "graph neural networks", Namespace: "paper"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProvisioning)
	var nf *domain.NotFoundError
	assert.False(t, errors.As(err, &nf))
}
