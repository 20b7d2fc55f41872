// Package client is a Go client for the searchd HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vecsearch/internal/domain"
	"vecsearch/internal/service"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("searchd: %d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Is lets callers match server errors against the domain sentinels.
func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusBadRequest:
		return target == domain.ErrValidation
	case http.StatusNotFound:
		return target == domain.ErrIndexNotFound
	case http.StatusServiceUnavailable:
		return target == domain.ErrStoreUnavailable || target == domain.ErrProvisioning
	}
	return false
}

type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the server at baseURL, e.g. http://localhost:8000.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

func (c *Client) Insert(ctx context.Context, req service.InsertRequest) error {
	return c.do(ctx, "/insert", req, nil)
}

func (c *Client) InsertBatch(ctx context.Context, reqs []service.InsertRequest) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, "/insert/batch", map[string]any{"records": reqs}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) Retrieve(ctx context.Context, req service.RetrieveRequest) ([]domain.Hit, error) {
	var hits []domain.Hit
	if err := c.do(ctx, "/retrieve", req, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

func (c *Client) ClearAll(ctx context.Context) error {
	return c.do(ctx, "/clear-all", nil, nil)
}

func (c *Client) Provision(ctx context.Context) error {
	return c.do(ctx, "/provision", nil, nil)
}

func (c *Client) Health(ctx context.Context) (service.Health, error) {
	var h service.Health
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return h, err
	}
	err = c.send(req, &h)
	return h, err
}

func (c *Client) do(ctx context.Context, path string, body, out any) error {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(payload))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("searchd: decode %s: %w", req.URL.Path, err)
	}
	return nil
}
