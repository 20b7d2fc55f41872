package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding/hashing"
	"vecsearch/internal/index"
	"vecsearch/internal/rerank/lexical"
	"vecsearch/internal/service"
	"vecsearch/internal/vectorstore/memory"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	h, _ := newTestStack(t)
	return h
}

func newTestStack(t *testing.T) (http.Handler, *memory.Storage) {
	t.Helper()
	emb := hashing.NewEmbedder(512)
	store := memory.NewStorage(emb)
	spec := domain.IndexSpec{Name: "anu", Model: emb.Name(), Field: "chunk_text"}
	mgr := index.NewManager(spec, store, index.ManagerConfig{ReadyTimeout: time.Second, PollInterval: 5 * time.Millisecond}, nil)
	require.NoError(t, mgr.EnsureReady(context.Background()))
	svc := service.NewSearchService(mgr, index.New("anu", store, lexical.New(), index.Options{}, nil), service.Options{}, nil)
	return NewRouter(svc, nil), store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func insertQuery(id, summary, title, ns string) string {
	v := url.Values{"id": {id}, "summary": {summary}, "title": {title}, "namespace": {ns}}
	return "/insert?" + v.Encode()
}

func TestInsertRetrieveWithQueryParams(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, insertQuery("p1", "graph neural networks for molecule generation", "GNN-Mol", "paper"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"success","message":"Inserted record p1 into namespace paper"}`, w.Body.String())

	w = do(t, h, http.MethodPost, insertQuery("p2", "transformer architectures for protein folding", "Fold", "paper"), "")
	require.Equal(t, http.StatusOK, w.Code)

	v := url.Values{"top_k": {"1"}, "query": {"molecule generation with graphs"}, "namespace": {"paper"}}
	w = do(t, h, http.MethodPost, "/retrieve?"+v.Encode(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var hits []domain.Hit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
	assert.Equal(t, "GNN-Mol", hits[0].Title)
}

func TestInsertRetrieveWithJSON(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/insert/batch", `{"records":[
		{"id":"a1","summary":"dijkstra shortest path","title":"Dijkstra","namespace":"algo"},
		{"id":"a2","summary":"quick sort partitioning","namespace":"algo"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"success","count":2}`, w.Body.String())

	w = do(t, h, http.MethodPost, "/retrieve", `{"top_k":5,"query":"shortest path","namespace":"algo"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var hits []domain.Hit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hits))
	require.NotEmpty(t, hits)
	assert.Equal(t, "a1", hits[0].ID)
}

func TestEmptyNamespaceReturnsEmptyArray(t *testing.T) {
	h := newTestRouter(t)
	w := do(t, h, http.MethodPost, "/retrieve", `{"top_k":3,"query":"anything","namespace":"dataset"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestValidationErrors(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, insertQuery("x", "text", "", "news"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "namespace")

	w = do(t, h, http.MethodPost, "/retrieve", `{"top_k":0,"query":"q","namespace":"paper"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/retrieve", `{"top_k":"many"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearAllLifecycle(t *testing.T) {
	h := newTestRouter(t)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, insertQuery("d1", "census data", "", "dataset"), "").Code)

	w := do(t, h, http.MethodPost, "/clear-all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "").Code)

	w = do(t, h, http.MethodPost, insertQuery("d2", "more", "", "dataset"), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, h, http.MethodPost, "/retrieve", `{"top_k":3,"query":"census","namespace":"dataset"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/clear-all", "").Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/provision", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)
}

func TestHealthAndCORS(t *testing.T) {
	h := newTestRouter(t)

	for _, path := range []string{"/", "/healthz"} {
		w := do(t, h, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","index":"anu","ready":true}`, w.Body.String())
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	}

	w := do(t, h, http.MethodOptions, "/retrieve", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		&domain.ValidationError{Field: "id", Reason: "empty"}:                 http.StatusBadRequest,
		&domain.NotFoundError{Index: "anu"}:                                   http.StatusNotFound,
		&domain.ProvisioningError{Index: "anu", Err: errors.New("x")}:         http.StatusServiceUnavailable,
		&domain.StoreUnavailableError{Op: "search", Err: errors.New("x")}:     http.StatusServiceUnavailable,
		&domain.ProvisioningError{Index: "anu", Err: domain.ErrIndexNotFound}: http.StatusServiceUnavailable,
		errors.New("unexpected"):                                              http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestInsertAfterExternalDropIsUnavailable(t *testing.T) {
	h, store := newTestStack(t)
	require.NoError(t, store.Drop(context.Background()))

	w := do(t, h, http.MethodPost, insertQuery("p1", "graph neural networks", "", "paper"), "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "index not found")
}
