// Package client is an HTTP client for a running kb server. CLI commands and
// the ingest walker use it instead of opening the snapshot directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/kb/api"
)

// DefaultTimeout bounds a single request. Ingest requests wait on the
// server's embedding call, so this sits above the embedding timeout.
const DefaultTimeout = 60 * time.Second

// ErrNotFound is returned when the server has no document with the given id.
var ErrNotFound = errors.New("document not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kb API request failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client talks to the kb HTTP API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a Client for the server at target, e.g. "http://localhost:8001".
func New(target string, opts ...Option) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL: %q", target)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IngestResult describes a stored document.
type IngestResult struct {
	ID string

	// Degraded is true when the server stored a zero-vector embedding.
	Degraded bool
}

// Ingest stores or replaces a document.
func (c *Client) Ingest(ctx context.Context, id, text string, metadata map[string]any) (*IngestResult, error) {
	body := api.IngestRequest{ID: &id, Text: &text, Metadata: metadata}

	var out api.IngestResponse
	resp, err := c.do(ctx, http.MethodPost, "/ingest", body, &out)
	if err != nil {
		return nil, err
	}

	return &IngestResult{
		ID:       out.ID,
		Degraded: resp.Header.Get(api.HeaderEmbeddingDegraded) == "true",
	}, nil
}

// Hit is a single ranked query result.
type Hit struct {
	ID       string
	Document string
	Metadata map[string]any
	Score    float64
}

// Query returns up to n documents ranked by similarity to query.
func (c *Client) Query(ctx context.Context, query string, n int) ([]Hit, error) {
	body := api.QueryRequest{Query: &query, NResults: &n}

	var out api.QueryResponse
	if _, err := c.do(ctx, http.MethodPost, "/query", body, &out); err != nil {
		return nil, err
	}

	r := out.Results
	if len(r.IDs) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, len(r.IDs[0]))
	for i, id := range r.IDs[0] {
		hits[i].ID = id
		if len(r.Documents) > 0 && i < len(r.Documents[0]) {
			hits[i].Document = r.Documents[0][i]
		}
		if len(r.Metadatas) > 0 && i < len(r.Metadatas[0]) {
			hits[i].Metadata = r.Metadatas[0][i]
		}
		if len(r.Scores) > 0 && i < len(r.Scores[0]) {
			hits[i].Score = r.Scores[0][i]
		}
	}
	return hits, nil
}

// Health returns the server status and document count.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns a stored document without its embedding.
func (c *Client) Get(ctx context.Context, id string) (*api.DocumentResponse, error) {
	var out api.DocumentResponse
	if _, err := c.do(ctx, http.MethodGet, documentPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a stored document.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, documentPath(id), nil, nil)
	return err
}

// documentPath escapes each segment of id, keeping slashes as separators.
func documentPath(id string) string {
	segments := strings.Split(id, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return "/v1/documents/" + strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (*http.Response, error) {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	target := strings.TrimRight(c.baseURL.String(), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to kb API at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/v1/documents/") {
		return nil, ErrNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return resp, nil
}
