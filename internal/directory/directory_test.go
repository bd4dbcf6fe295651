package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hwops/assetsync/internal/transport"
)

func testResolver(t *testing.T, handler http.Handler) (*Resolver, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tp := transport.New(&transport.Config{
		RequestsPerMinute: 60000,
		MaxRetries:        1,
		BackoffBase:       time.Millisecond,
	}, nil)
	return New(&Config{CloudID: "cloud-1", Transport: tp, BaseURL: server.URL}), server
}

func writeUsers(w http.ResponseWriter, users []User) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

func TestAccountIDForEmail_ExactMatch(t *testing.T) {
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeUsers(w, []User{
			{AccountID: "acc-1", EmailAddress: "jane@example.com", AccountType: "atlassian", Active: true},
			{AccountID: "acc-2", EmailAddress: "jane.doe@example.com", AccountType: "atlassian", Active: true},
		})
	}))

	id, err := r.AccountIDForEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("AccountIDForEmail() failed: %v", err)
	}
	if id != "acc-1" {
		t.Errorf("account id = %q, want acc-1 (fuzzy match must be filtered out)", id)
	}
}

func TestAccountIDForEmail_Normalization(t *testing.T) {
	var gotQuery string
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotQuery = req.URL.Query().Get("query")
		writeUsers(w, []User{
			{AccountID: "acc-1", EmailAddress: "Jane@Example.com", AccountType: "atlassian"},
		})
	}))

	id, err := r.AccountIDForEmail(context.Background(), "  JANE@example.COM ")
	if err != nil {
		t.Fatalf("AccountIDForEmail() failed: %v", err)
	}
	if id != "acc-1" {
		t.Errorf("account id = %q, want acc-1", id)
	}
	if gotQuery != "jane@example.com" {
		t.Errorf("search query = %q, want normalized email", gotQuery)
	}
}

func TestAccountIDForEmail_NotFound(t *testing.T) {
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeUsers(w, nil)
	}))

	_, err := r.AccountIDForEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("AccountIDForEmail() error = %v, want ErrUserNotFound", err)
	}
}

func TestAccountIDForEmail_PrefersRegularAccount(t *testing.T) {
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeUsers(w, []User{
			{AccountID: "app-1", EmailAddress: "bot@example.com", AccountType: "app"},
			{AccountID: "acc-9", EmailAddress: "bot@example.com", AccountType: "atlassian"},
		})
	}))

	id, err := r.AccountIDForEmail(context.Background(), "bot@example.com")
	if err != nil {
		t.Fatalf("AccountIDForEmail() failed: %v", err)
	}
	if id != "acc-9" {
		t.Errorf("account id = %q, want the regular account acc-9", id)
	}
}

func TestAccountIDForEmail_AmbiguousIsError(t *testing.T) {
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeUsers(w, []User{
			{AccountID: "acc-1", EmailAddress: "shared@example.com", AccountType: "atlassian"},
			{AccountID: "acc-2", EmailAddress: "shared@example.com", AccountType: "atlassian"},
		})
	}))

	_, err := r.AccountIDForEmail(context.Background(), "shared@example.com")
	if !errors.Is(err, ErrMultipleUsersFound) {
		t.Errorf("AccountIDForEmail() error = %v, want ErrMultipleUsersFound", err)
	}
}

func TestAccountIDForEmail_CachesPositiveResults(t *testing.T) {
	var searches int
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		searches++
		writeUsers(w, []User{
			{AccountID: "acc-1", EmailAddress: "jane@example.com", AccountType: "atlassian"},
		})
	}))

	for i := 0; i < 5; i++ {
		if _, err := r.AccountIDForEmail(context.Background(), "jane@example.com"); err != nil {
			t.Fatalf("AccountIDForEmail() failed: %v", err)
		}
	}
	if searches != 1 {
		t.Errorf("search calls = %d, want 1 (positive result must be cached)", searches)
	}

	stats := r.Stats()
	if stats.Hits != 4 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 4 hits / 1 miss", stats)
	}
}

func TestAccountIDForEmail_MissesNotCached(t *testing.T) {
	var searches int
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		searches++
		if searches == 1 {
			writeUsers(w, nil)
			return
		}
		writeUsers(w, []User{
			{AccountID: "acc-1", EmailAddress: "new@example.com", AccountType: "atlassian"},
		})
	}))

	if _, err := r.AccountIDForEmail(context.Background(), "new@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("first lookup error = %v, want ErrUserNotFound", err)
	}

	// Account provisioned between lookups: the second attempt must hit
	// the API again.
	id, err := r.AccountIDForEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if id != "acc-1" {
		t.Errorf("account id = %q, want acc-1", id)
	}
	if searches != 2 {
		t.Errorf("search calls = %d, want 2", searches)
	}
}

func TestIsAccountActive(t *testing.T) {
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.URL.Query().Get("accountId")
		switch {
		case id == "acc-active":
			json.NewEncoder(w).Encode(User{AccountID: id, Active: true})
		case id == "acc-inactive":
			json.NewEncoder(w).Encode(User{AccountID: id, Active: false})
		default:
			http.Error(w, "no such user", http.StatusNotFound)
		}
	}))

	active, err := r.IsAccountActive(context.Background(), "acc-active")
	if err != nil || !active {
		t.Errorf("IsAccountActive(acc-active) = (%v, %v), want (true, nil)", active, err)
	}

	active, err = r.IsAccountActive(context.Background(), "acc-inactive")
	if err != nil || active {
		t.Errorf("IsAccountActive(acc-inactive) = (%v, %v), want (false, nil)", active, err)
	}

	// Deleted accounts look inactive, not broken.
	active, err = r.IsAccountActive(context.Background(), "acc-gone")
	if err != nil || active {
		t.Errorf("IsAccountActive(acc-gone) = (%v, %v), want (false, nil)", active, err)
	}
}

func TestSend_UnauthorizedRefreshOnce(t *testing.T) {
	var requests int
	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requests++
		if requests == 1 {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		writeUsers(w, []User{
			{AccountID: "acc-1", EmailAddress: "jane@example.com", AccountType: "atlassian"},
		})
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	refreshes := 0
	tp := transport.New(&transport.Config{RequestsPerMinute: 60000, MaxRetries: 1, BackoffBase: time.Millisecond}, nil)
	r := New(&Config{
		CloudID:   "cloud-1",
		Transport: tp,
		BaseURL:   server.URL,
		Refresher: refresherFunc(func(ctx context.Context) error {
			refreshes++
			return nil
		}),
	})

	id, err := r.AccountIDForEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("AccountIDForEmail() failed: %v", err)
	}
	if id != "acc-1" {
		t.Errorf("account id = %q, want acc-1", id)
	}
	if refreshes != 1 || requests != 2 {
		t.Errorf("refreshes = %d requests = %d, want 1 and 2", refreshes, requests)
	}
}

type refresherFunc func(ctx context.Context) error

func (f refresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

func TestAccountIDForEmail_EmptyEmail(t *testing.T) {
	r, _ := testResolver(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("no API call expected for an empty email")
	}))

	_, err := r.AccountIDForEmail(context.Background(), strings.Repeat(" ", 3))
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("AccountIDForEmail() error = %v, want ErrUserNotFound", err)
	}
}
