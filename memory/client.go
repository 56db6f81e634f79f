// Package memory is a thin HTTP client for the external memory service.
// The service stores free-text memories per agent and answers semantic
// search queries; the gateway exposes it to agents as a pair of tools.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	backoff "gopkg.in/cenkalti/backoff.v1"
)

const (
	healthPath = "/health"
	addPath    = "/add"
	searchPath = "/search"

	defaultTimeout    = 10 * time.Second
	defaultMaxElapsed = 15 * time.Second
	defaultSearchHits = 5

	apiKeyHeader = "x-api-key"
)

// AddRequest is the payload for storing a memory.
type AddRequest struct {
	Content  string                 `json:"content"`
	AgentID  string                 `json:"agent_id,omitempty"`
	UserID   string                 `json:"user_id,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchRequest is the payload for a semantic search.
type SearchRequest struct {
	Query   string `json:"query"`
	AgentID string `json:"agent_id,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Client talks to the memory service. Transient failures (connection
// errors, 5xx) are retried with exponential backoff; 4xx responses are
// returned immediately.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxElapsed time.Duration
	logger     *zap.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithAPIKey sets the x-api-key header sent on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxElapsedTime caps the total time spent retrying one call.
func WithMaxElapsedTime(d time.Duration) ClientOption {
	return func(c *Client) { c.maxElapsed = d }
}

// NewClient creates a client for the memory service at baseURL.
func NewClient(baseURL string, logger *zap.Logger, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("memory service URL cannot be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid memory service URL %q: %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("memory service URL %q must be http or https", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		baseURL:    parsed.String(),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxElapsed: defaultMaxElapsed,
		logger:     logger.Named("memory"),
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// Health probes the service. Not retried: callers poll it themselves.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("memory service health returned status %d", resp.StatusCode)
	}
	return nil
}

// AddMemory stores a memory and returns the service's raw response.
func (c *Client) AddMemory(ctx context.Context, req AddRequest) (json.RawMessage, error) {
	if req.Content == "" {
		return nil, fmt.Errorf("memory content cannot be empty")
	}
	return c.postWithRetry(ctx, addPath, req)
}

// SearchMemories runs a semantic search and returns the raw result list.
func (c *Client) SearchMemories(ctx context.Context, req SearchRequest) (json.RawMessage, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if req.Limit <= 0 {
		req.Limit = defaultSearchHits
	}
	return c.postWithRetry(ctx, searchPath, req)
}

func (c *Client) postWithRetry(ctx context.Context, path string, payload interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result json.RawMessage
	var permanentErr error
	operation := func() error {
		res, retryable, opErr := c.post(ctx, path, body)
		if opErr != nil {
			if !retryable {
				// Stop the retry loop; the failure surfaces below.
				permanentErr = opErr
				return nil
			}
			return opErr
		}
		result = res
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = c.maxElapsed
	notify := func(err error, next time.Duration) {
		c.logger.Warn("Memory service call failed, retrying",
			zap.String("path", path),
			zap.Error(err),
			zap.Duration("nextAttemptIn", next),
		)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return nil, err
	}
	if permanentErr != nil {
		return nil, permanentErr
	}
	return result, nil
}

// post performs one attempt. The second return value reports whether the
// failure is worth retrying.
func (c *Client) post(ctx context.Context, path string, body []byte) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("memory service request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read memory service response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return json.RawMessage(respBody), false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Client-side mistake, retrying cannot help.
		return nil, false, fmt.Errorf("memory service rejected request: status %d: %s", resp.StatusCode, truncate(respBody, 200))
	default:
		return nil, true, fmt.Errorf("memory service error: status %d", resp.StatusCode)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
