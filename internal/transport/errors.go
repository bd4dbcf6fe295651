package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnauthorized is returned for HTTP 401 responses. Callers owning a
// credential are expected to refresh exactly once and retry; the transport
// itself never refreshes.
var ErrUnauthorized = errors.New("authentication failed (401)")

// RateLimitError is returned for HTTP 429 responses. The transport does not
// sleep or retry on it: repeated 429s mean the pacing gate is misconfigured
// and should be visible to the operator.
type RateLimitError struct {
	// RetryAfter is the server-supplied wait hint.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// APIError is returned for any other non-2xx response. It carries the status
// code and raw error body; no retry is attempted.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// RetriesExhaustedError is returned when a transient failure (5xx or network
// error) persisted through every backoff attempt.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// transientError marks a network-level failure from the underlying client.
// Only these and 5xx responses are worth another attempt; failures before
// the wire (marshal, request construction) are not.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// retryable reports whether err is a transient failure worth another
// attempt. Only server errors and network failures qualify.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	var te *transientError
	return errors.As(err, &te)
}
