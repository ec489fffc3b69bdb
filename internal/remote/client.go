// Package remote is the JSON-over-HTTP transport shared by the service
// clients, with a small GraphQL layer on top.
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
	"sync"
	"time"

	"github.com/0xdeschool/deschool-lens/internal/logging"
	"github.com/0xdeschool/deschool-lens/internal/util"
)

// DefaultTimeout bounds every request unless WithHTTPClient overrides it.
const DefaultTimeout = 30 * time.Second

// Client performs JSON requests against one service base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	observe    func(operation string, d time.Duration)
	retry      util.Backoff

	mu          sync.RWMutex
	bearerToken string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey sends key in the X-API-KEY header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBearerToken sends token as an Authorization bearer.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// WithObserver reports the duration of every completed request, labelled
// with the GraphQL operation name or the request path.
func WithObserver(fn func(operation string, d time.Duration)) Option {
	return func(c *Client) { c.observe = fn }
}

// WithRetry retries idempotent requests (GET and GraphQL queries) that
// fail in transport or with a 5xx status.
func WithRetry(b util.Backoff) Option {
	return func(c *Client) { c.retry = b }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetBearerToken changes the bearer token for later requests. An empty
// token disables the header.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearerToken = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearerToken
}

// Do performs a request and decodes the JSON response into out. body and
// out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if method != http.MethodGet {
		return c.do(ctx, path, method, path, body, out)
	}
	return c.withRetry(ctx, path, func() error {
		return c.do(ctx, path, method, path, body, out)
	})
}

func (c *Client) withRetry(ctx context.Context, label string, fn func() error) error {
	attempts, err := util.Retry(ctx, c.retry, retryable, fn)
	if attempts > 1 {
		logging.Debug("remote request retried",
			"operation", label,
			"attempts", attempts,
			logging.Component("remote"))
	}
	return err
}

// retryable reports whether err may succeed on a second try.
func retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.StatusCode >= 500
}

func (c *Client) do(ctx context.Context, label, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: method, URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	elapsed := time.Since(start)
	if c.observe != nil {
		c.observe(label, elapsed)
	}
	logging.Debug("remote request",
		"method", method,
		"url", url,
		"operation", label,
		"status", resp.StatusCode,
		"duration", elapsed,
		logging.Component("remote"))

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func statusError(status int, body []byte) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := http.StatusText(status)
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			msg = errResp.Error
		} else if errResp.Message != "" {
			msg = errResp.Message
		}
	}
	return &ServiceError{StatusCode: status, Message: msg}
}
