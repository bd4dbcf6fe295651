package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testConfig(rpm int) *Config {
	return &Config{
		RequestsPerMinute: rpm,
		MaxRetries:        2,
		BackoffBase:       time.Millisecond,
		Timeout:           5 * time.Second,
	}
}

// TestDo_Pacing verifies N calls take at least (N-1) * minInterval.
func TestDo_Pacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// 1200 requests/minute -> 50ms minimum interval
	client := New(testConfig(1200), nil)

	const calls = 4
	start := time.Now()
	for i := 0; i < calls; i++ {
		if _, err := client.Get(context.Background(), server.URL, nil); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	minExpected := time.Duration(calls-1) * 50 * time.Millisecond
	if elapsed < minExpected {
		t.Errorf("%d calls took %v, want at least %v", calls, elapsed, minExpected)
	}
}

// TestDo_RateLimited verifies 429 surfaces a RateLimitError without retry.
func TestDo_RateLimited(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(testConfig(6000), nil)

	_, err := client.Get(context.Background(), server.URL, nil)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("Get() error = %v, want *RateLimitError", err)
	}
	if rle.RetryAfter != 17*time.Second {
		t.Errorf("RetryAfter = %v, want 17s", rle.RetryAfter)
	}
	if requests != 1 {
		t.Errorf("server saw %d requests, want 1 (429 must not be retried)", requests)
	}
}

// TestDo_Unauthorized verifies 401 maps to ErrUnauthorized without retry.
func TestDo_Unauthorized(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(testConfig(6000), nil)

	_, err := client.Get(context.Background(), server.URL, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Get() error = %v, want ErrUnauthorized", err)
	}
	if requests != 1 {
		t.Errorf("server saw %d requests, want 1", requests)
	}
}

// TestDo_ServerErrorRetried verifies a 500 is retried and can succeed.
func TestDo_ServerErrorRetried(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New(testConfig(6000), nil)

	resp, err := client.Get(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if requests != 3 {
		t.Errorf("server saw %d requests, want 3", requests)
	}
}

// TestDo_RetriesPaced verifies retries pass the pacing gate too: three
// attempts must span at least two minimum intervals even when the backoff
// delay is shorter than the interval.
func TestDo_RetriesPaced(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// 1200 requests/minute -> 50ms minimum interval, against a 1ms backoff.
	client := New(testConfig(1200), nil)

	start := time.Now()
	if _, err := client.Get(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	elapsed := time.Since(start)

	if requests != 3 {
		t.Fatalf("server saw %d requests, want 3", requests)
	}
	minExpected := 2 * 50 * time.Millisecond
	if elapsed < minExpected {
		t.Errorf("3 attempts took %v, want at least %v", elapsed, minExpected)
	}
}

// TestDo_MarshalErrorNotRetried verifies a failure before the wire returns
// immediately instead of burning the backoff schedule.
func TestDo_MarshalErrorNotRetried(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(testConfig(6000), nil)

	_, err := client.Post(context.Background(), server.URL, nil, make(chan int))
	if err == nil {
		t.Fatal("Post() succeeded with an unmarshalable body")
	}
	var ree *RetriesExhaustedError
	if errors.As(err, &ree) {
		t.Errorf("Post() error = %v, want no retries for a marshal failure", err)
	}
	if requests != 0 {
		t.Errorf("server saw %d requests, want 0", requests)
	}
}

// TestDo_RetriesExhausted verifies persistent 5xx surfaces RetriesExhaustedError.
func TestDo_RetriesExhausted(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(testConfig(6000), nil)

	_, err := client.Get(context.Background(), server.URL, nil)
	var ree *RetriesExhaustedError
	if !errors.As(err, &ree) {
		t.Fatalf("Get() error = %v, want *RetriesExhaustedError", err)
	}
	if ree.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", ree.Attempts)
	}
	if requests != 3 {
		t.Errorf("server saw %d requests, want 3", requests)
	}
}

// TestDo_ClientErrorNotRetried verifies 404 returns an APIError immediately.
func TestDo_ClientErrorNotRetried(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorMessages":["no such object"]}`))
	}))
	defer server.Close()

	client := New(testConfig(6000), nil)

	_, err := client.Get(context.Background(), server.URL, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Get() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if requests != 1 {
		t.Errorf("server saw %d requests, want 1", requests)
	}
}

// TestDo_BearerAuth verifies the token source is consulted per request.
func TestDo_BearerAuth(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(testConfig(6000), &BearerAuth{Source: staticToken("tok-123")})

	if _, err := client.Get(context.Background(), server.URL, nil); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer tok-123")
	}
}

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) {
	return string(s), nil
}
