// Package storetest is a conformance suite run against every vectorstore.Storage.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding"
	"vecsearch/internal/embedding/hashing"
	"vecsearch/internal/vectorstore"
)

// Factory opens a fresh, empty store bound to index name using emb.
type Factory func(t *testing.T, name string, emb embedding.Embedder) vectorstore.Storage

// Spec is the index spec the suite provisions with.
func Spec(name string, emb embedding.Embedder) domain.IndexSpec {
	return domain.IndexSpec{Name: name, Model: emb.Name(), Field: "chunk_text", Dimension: emb.Dimension()}
}

// Run executes the conformance suite.
func Run(t *testing.T, factory Factory) {
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, factory) })
	t.Run("UpsertOverwrites", func(t *testing.T) { testUpsertOverwrites(t, factory) })
	t.Run("NamespaceIsolation", func(t *testing.T) { testNamespaceIsolation(t, factory) })
	t.Run("SearchOrderAndBound", func(t *testing.T) { testSearchOrderAndBound(t, factory) })
	t.Run("EmptyNamespace", func(t *testing.T) { testEmptyNamespace(t, factory) })
	t.Run("DropRemovesEverything", func(t *testing.T) { testDropRemovesEverything(t, factory) })
}

func open(t *testing.T, factory Factory) (vectorstore.Storage, embedding.Embedder) {
	t.Helper()
	emb := hashing.NewEmbedder(256)
	s := factory(t, "conformance", emb)
	t.Cleanup(func() { _ = s.Close() })
	return s, emb
}

func provision(t *testing.T, s vectorstore.Storage, emb embedding.Embedder) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Spec("conformance", emb)))
	require.Eventually(t, func() bool {
		ok, err := s.Ready(ctx)
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond)
}

func ids(cands []domain.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.ID
	}
	return out
}

func testLifecycle(t *testing.T, factory Factory) {
	ctx := context.Background()
	s, emb := open(t, factory)

	ok, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Drop(ctx), domain.ErrIndexNotFound)
	assert.ErrorIs(t, s.Upsert(ctx, domain.NamespacePaper, []domain.Record{{ID: "x", Text: "y"}}), domain.ErrIndexNotFound)
	_, err = s.Search(ctx, domain.NamespacePaper, "y", 1)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)

	provision(t, s, emb)
	ok, err = s.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, s.Create(ctx, Spec("conformance", emb)), domain.ErrIndexExists)
}

func testUpsertOverwrites(t *testing.T, factory Factory) {
	ctx := context.Background()
	s, emb := open(t, factory)
	provision(t, s, emb)

	rec := domain.Record{ID: "p1", Text: "graph neural networks for molecule generation", Title: "GNN-Mol", Namespace: domain.NamespacePaper}
	require.NoError(t, s.Upsert(ctx, rec.Namespace, []domain.Record{rec}))
	rec.Title = "GNN-Mol v2"
	require.NoError(t, s.Upsert(ctx, rec.Namespace, []domain.Record{rec}))

	got, err := s.Search(ctx, domain.NamespacePaper, "molecule generation", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "GNN-Mol v2", got[0].Title)
	assert.Equal(t, rec.Text, got[0].Text)
}

func testNamespaceIsolation(t *testing.T, factory Factory) {
	ctx := context.Background()
	s, emb := open(t, factory)
	provision(t, s, emb)

	text := "benchmark dataset of protein structures"
	require.NoError(t, s.Upsert(ctx, domain.NamespaceDataset, []domain.Record{{ID: "d1", Text: text, Title: "PDB"}}))
	require.NoError(t, s.Upsert(ctx, domain.NamespaceAlgo, []domain.Record{{ID: "a1", Text: "gradient boosting trees", Title: "GBT"}}))

	got, err := s.Search(ctx, domain.NamespacePaper, text, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Search(ctx, domain.NamespaceAlgo, text, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids(got))

	got, err = s.Search(ctx, domain.NamespaceDataset, text, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids(got))
}

func testSearchOrderAndBound(t *testing.T, factory Factory) {
	ctx := context.Background()
	s, emb := open(t, factory)
	provision(t, s, emb)

	recs := []domain.Record{
		{ID: "p1", Text: "graph neural networks for molecule generation", Title: "GNN-Mol"},
		{ID: "p2", Text: "transformer architectures for protein folding", Title: "Prot-Former"},
		{ID: "p3", Text: "molecule property prediction with graph kernels", Title: "Kernels"},
		{ID: "p4", Text: "reinforcement learning for robotics", Title: "RL"},
	}
	require.NoError(t, s.Upsert(ctx, domain.NamespacePaper, recs))

	got, err := s.Search(ctx, domain.NamespacePaper, "molecule generation with graphs", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p1", got[0].ID)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)

	all, err := s.Search(ctx, domain.NamespacePaper, "molecule generation with graphs", 10)
	require.NoError(t, err)
	assert.Len(t, all, len(recs))
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func testEmptyNamespace(t *testing.T, factory Factory) {
	ctx := context.Background()
	s, emb := open(t, factory)
	provision(t, s, emb)

	got, err := s.Search(ctx, domain.NamespaceAlgo, "anything at all", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDropRemovesEverything(t *testing.T, factory Factory) {
	ctx := context.Background()
	s, emb := open(t, factory)
	provision(t, s, emb)

	require.NoError(t, s.Upsert(ctx, domain.NamespacePaper, []domain.Record{{ID: "p1", Text: "graph networks", Title: "G"}}))
	require.NoError(t, s.Drop(ctx))

	ok, err := s.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	provision(t, s, emb)
	got, err := s.Search(ctx, domain.NamespacePaper, "graph networks", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
