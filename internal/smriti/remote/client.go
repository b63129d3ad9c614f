// Package remote is the HTTP client for the recall service, the remote memory
// store. Writes are single attempts: the caller decides what a failure means.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/HrishitaRaj/smriti-ai/common/spec/memory"
	"github.com/HrishitaRaj/smriti-ai/common/spec/recall"
	"github.com/HrishitaRaj/smriti-ai/common/trace"
	"github.com/HrishitaRaj/smriti-ai/common/version"
)

// maxResponseBytes bounds any body read from the service.
const maxResponseBytes = 4 << 20

// ErrStatus matches every *StatusError via errors.Is.
var ErrStatus = errors.New("remote: unexpected status")

// StatusError is returned when the service answers with a 4xx or 5xx.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote %s %s → %d: %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("remote %s %s → %d", e.Method, e.Path, e.Code)
}

// Is reports target == ErrStatus.
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Client talks to one recall service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for baseURL (e.g. "http://localhost:8000"). token,
// when non-empty, is sent as a bearer token. The default http.Client has no
// timeout; callers bound requests through ctx.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string { return c.baseURL }

// AddMemory calls POST /add-memory once.
func (c *Client) AddMemory(ctx context.Context, rec memory.Record) error {
	var resp recall.AddMemoryResponse
	if err := c.post(ctx, "/add-memory", recall.FromRecord(rec), &resp); err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

// Ask calls POST /ask. A nil Answer means the service has no memories yet.
func (c *Client) Ask(ctx context.Context, question string) (*recall.AskResponse, error) {
	var resp recall.AskResponse
	if err := c.post(ctx, "/ask", recall.AskRequest{Question: question}, &resp); err != nil {
		return nil, fmt.Errorf("ask: %w", err)
	}
	return &resp, nil
}

// ListMemories calls GET /memories and returns the records newest first.
func (c *Client) ListMemories(ctx context.Context) ([]memory.Record, error) {
	var resp recall.MemoriesResponse
	if err := c.get(ctx, "/memories", &resp); err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return resp.Memories, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*recall.HealthResponse, error) {
	var resp recall.HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &resp, nil
}

// --- internal helpers ---

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.decorate(ctx, req)
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(ctx, req)
	return c.do(req, out)
}

// decorate sets auth and X-Trace-ID headers.
func (c *Client) decorate(ctx context.Context, req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent("smriti"))
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		se := &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode}
		var errResp recall.ErrorResponse
		if jsonErr := json.Unmarshal(bodyBytes, &errResp); jsonErr == nil {
			se.Message = errResp.Error
		}
		return se
	}

	if out != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
