package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankCohereShape(t *testing.T) {
	t.Setenv("TEST_RERANK_KEY", "rk")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, "Bearer rk", r.Header.Get("Authorization"))
		var req rerankRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-reranker-v2-m3", req.Model)
		assert.Equal(t, []string{"a", "b", "c"}, req.Documents)
		assert.Equal(t, 2, req.TopN)
		// deliberately unsorted
		_, _ = w.Write([]byte(`{"results":[{"index":2,"relevance_score":0.4},{"index":0,"relevance_score":0.9}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_RERANK_KEY"})
	require.NoError(t, err)
	res, err := c.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 0, res[0].Index)
	assert.Equal(t, 0.9, res[0].Score)
	assert.Equal(t, 2, res[1].Index)
}

func TestRerankPineconeShapeAndCustomHeader(t *testing.T) {
	t.Setenv("TEST_RERANK_KEY", "pk")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pk", r.Header.Get("Api-Key"))
		_, _ = w.Write([]byte(`{"data":[{"index":1,"score":0.7}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "TEST_RERANK_KEY", AuthHeader: "Api-Key"})
	require.NoError(t, err)
	res, err := c.Rerank(context.Background(), "q", []string{"a", "b"}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Index)
}

func TestRerankRejectsBadIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":5,"relevance_score":0.7}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Rerank(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
}

func TestRerankServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Rerank(context.Background(), "q", []string{"a"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
