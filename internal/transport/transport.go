// Package transport is the single chokepoint for outbound HTTP calls.
//
// Every remote call in assetsync goes through Client.Do, which:
//  1. Blocks on a shared pacing gate so no two calls start closer together
//     than the configured minimum interval
//  2. Retries server errors (5xx) and network failures with exponential
//     backoff up to a small attempt cap
//  3. Classifies failures: 429 -> *RateLimitError, 401 -> ErrUnauthorized,
//     other non-2xx -> *APIError, exhausted retries -> *RetriesExhaustedError
//
// The transport carries no business logic; pacing and transient-failure
// policy live here so callers can stay sequential and simple.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Auth applies authentication to an outbound request.
type Auth interface {
	Apply(ctx context.Context, req *http.Request) error
}

// TokenSource supplies a bearer token for each request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// BearerAuth authenticates with an OAuth bearer token.
type BearerAuth struct {
	Source TokenSource
}

func (a *BearerAuth) Apply(ctx context.Context, req *http.Request) error {
	token, err := a.Source.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// BasicAuth authenticates with an email + API token pair.
type BasicAuth struct {
	Username string
	Token    string
}

func (a *BasicAuth) Apply(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Token)
	return nil
}

// Config controls pacing and retry behavior.
type Config struct {
	// RequestsPerMinute sets the pacing gate: the minimum interval between
	// calls is 60s / RequestsPerMinute.
	RequestsPerMinute int

	// MaxRetries is the number of additional attempts after the first for
	// transient failures (default: 3).
	MaxRetries int

	// BackoffBase is the first retry delay; it doubles per attempt
	// (default: 500ms).
	BackoffBase time.Duration

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// UserAgent for all requests.
	UserAgent string

	// HTTPClient allows injecting a stub client in tests.
	HTTPClient *http.Client

	// Logger for transport activity. Defaults to stderr.
	Logger *log.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestsPerMinute: 60,
		MaxRetries:        3,
		BackoffBase:       500 * time.Millisecond,
		Timeout:           30 * time.Second,
		UserAgent:         "assetsync/1.0",
	}
}

// Client is the rate-limited HTTP transport.
type Client struct {
	config  *Config
	http    *http.Client
	auth    Auth
	limiter *rate.Limiter
	logger  *log.Logger
}

// Request describes one outbound call. URL must be absolute; Body, when
// non-nil, is marshaled to JSON.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Body   any
}

// Response carries the status, headers and raw body of a completed call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON unmarshals the response body into target.
func (r *Response) JSON(target any) error {
	if err := json.Unmarshal(r.Body, target); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// New creates a transport client. auth may be nil for unauthenticated
// endpoints (the OAuth token endpoint itself).
func New(config *Config, auth Auth) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBase == 0 {
		config.BackoffBase = 500 * time.Millisecond
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "assetsync/1.0"
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[transport] ", log.LstdFlags)
	}

	interval := time.Duration(float64(time.Minute) / float64(config.RequestsPerMinute))

	return &Client{
		config: config,
		http:   httpClient,
		auth:   auth,
		// Burst 1 keeps this a pure spacing gate rather than a token
		// bucket: no two calls can start within one interval.
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// Do executes a request through the pacing gate with retry on transient
// failures.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.config.BackoffBase * time.Duration(1<<uint(attempt-1))
			c.logger.Printf("Retrying %s %s in %s (attempt %d/%d): %v",
				req.Method, req.URL, backoff, attempt+1, c.config.MaxRetries+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Every attempt passes the pacing gate, retries included; backoff
		// alone can undercut the minimum interval.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("pacing wait interrupted: %w", err)
		}

		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, &RetriesExhaustedError{Attempts: c.config.MaxRetries + 1, Err: lastErr}
}

// doOnce executes a single attempt and classifies the response.
func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	fullURL := req.URL
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.auth != nil {
		if err := c.auth.Apply(ctx, httpReq); err != nil {
			return nil, err
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &transientError{fmt.Errorf("network error: %w", err)}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &transientError{fmt.Errorf("failed to read response body: %w", err)}
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		c.logger.Printf("Rate limit exceeded on %s %s, retry after %s", req.Method, req.URL, retryAfter)
		return nil, &RateLimitError{RetryAfter: retryAfter}
	case httpResp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, truncate(body, 200))
	case httpResp.StatusCode >= 400:
		return nil, &APIError{StatusCode: httpResp.StatusCode, Body: truncate(body, 500)}
	}

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: url, Query: query})
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, url string, query url.Values, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: url, Query: query, Body: body})
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, url string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, URL: url, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, URL: url})
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 60 * time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 60 * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
