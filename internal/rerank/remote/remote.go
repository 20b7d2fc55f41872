package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"vecsearch/internal/domain"
	"vecsearch/internal/rerank"
)

// Client calls a hosted cross-encoder through a Cohere/Jina/Pinecone style
// POST /rerank endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	authHeader string
	model      string
	client     *http.Client
	limiter    *rate.Limiter
}

// Config configures the rerank client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	// AuthHeader carries the raw key. Empty sends "Authorization: Bearer <key>".
	AuthHeader        string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// NewClient creates a rerank client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rerank base url is required")
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.Model == "" {
		cfg.Model = "bge-reranker-v2-m3"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		authHeader: cfg.AuthHeader,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	return c, nil
}

func (c *Client) Name() string { return c.model }

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResponse struct {
	// Cohere and Jina
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	// Pinecone inference
	Data []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"data"`
}

func (c *Client) Rerank(ctx context.Context, query string, docs []string, topN int) ([]domain.RerankResult, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	data, err := json.Marshal(rerankRequest{Model: c.model, Query: query, Documents: docs, TopN: topN})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		if c.authHeader == "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		} else {
			req.Header.Set(c.authHeader, c.apiKey)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rerank failed: %s", resp.Status)
	}

	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	results := make([]domain.RerankResult, 0, len(out.Results)+len(out.Data))
	for _, r := range out.Results {
		results = append(results, domain.RerankResult{Index: r.Index, Score: r.RelevanceScore})
	}
	for _, r := range out.Data {
		results = append(results, domain.RerankResult{Index: r.Index, Score: r.Score})
	}
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("rerank returned out of range index %d", r.Index)
		}
	}
	return rerank.SortAndTruncate(results, topN), nil
}
