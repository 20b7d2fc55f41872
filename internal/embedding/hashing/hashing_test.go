package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedDeterministicAndNormalized(t *testing.T) {
	e := NewEmbedder(64)
	assert.Equal(t, 64, e.Dimension())
	assert.Equal(t, "hashing", e.Name())

	a, err := e.Embed(context.Background(), "Graph neural networks for molecule generation")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Graph neural networks for molecule generation")
	require.NoError(t, err)
	require.Len(t, a, 64)
	assert.Equal(t, a, b)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestEmbedSimilarTextsCloser(t *testing.T) {
	e := NewEmbedder(0)
	ctx := context.Background()
	q, err := e.Embed(ctx, "molecule generation with graphs")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "graph neural networks for molecule generation")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "transformer architectures for protein folding")
	require.NoError(t, err)

	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func TestEmbedStopwordsOnlyYieldsZeroVector(t *testing.T) {
	e := NewEmbedder(16)
	v, err := e.Embed(context.Background(), "the and of")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestEmbedHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)
}

func TestTokenizeFoldsPlurals(t *testing.T) {
	e := NewEmbedder(8)
	assert.Equal(t, []string{"graph", "network", "study"}, e.Tokenize("The graphs and networks of studies"))
}
