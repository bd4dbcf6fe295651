// Package directory resolves email addresses to directory account ids.
//
// Lookups run against the site user search API and are cached positively
// for the life of the resolver: an email that resolved once never costs a
// second call, while misses are retried on every request since accounts
// get provisioned mid-run.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/hwops/assetsync/internal/transport"
)

// TokenRefresher forces a credential refresh after a mid-flight 401.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}

// User is one directory account.
type User struct {
	AccountID    string `json:"accountId"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
	AccountType  string `json:"accountType"`
	Active       bool   `json:"active"`
}

// Common errors returned by directory lookups.
var (
	// ErrUserNotFound is returned when no account matches the email.
	ErrUserNotFound = errors.New("user not found")

	// ErrMultipleUsersFound is returned when several accounts match the
	// email and none can be preferred. Ambiguous matches are never
	// resolved by guessing.
	ErrMultipleUsersFound = errors.New("multiple users found")
)

// Config holds resolver settings.
type Config struct {
	// CloudID is the tenant routing identifier.
	CloudID string

	// Transport is the shared rate-limited HTTP client.
	Transport *transport.Client

	// Refresher, when set, is invoked once on a 401 before the call is
	// retried.
	Refresher TokenRefresher

	// BaseURL overrides the derived endpoint for tests.
	BaseURL string

	// Logger for resolver activity. Defaults to stderr.
	Logger *log.Logger
}

// Resolver maps emails to account ids.
type Resolver struct {
	config  *Config
	baseURL string
	logger  *log.Logger

	mu       sync.Mutex
	accounts map[string]string // normalized email -> account id
	hits     int
	misses   int
}

// New creates a directory resolver.
func New(config *Config) *Resolver {
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[directory] ", log.LstdFlags)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://api.atlassian.com/ex/jira/%s", config.CloudID)
	}
	return &Resolver{
		config:   config,
		baseURL:  baseURL,
		logger:   logger,
		accounts: make(map[string]string),
	}
}

func (r *Resolver) send(ctx context.Context, call func() (*transport.Response, error)) (*transport.Response, error) {
	resp, err := call()
	if err == nil || !errors.Is(err, transport.ErrUnauthorized) || r.config.Refresher == nil {
		return resp, err
	}

	r.logger.Printf("Unauthorized response, refreshing credential and retrying once")
	if refreshErr := r.config.Refresher.Refresh(ctx); refreshErr != nil {
		return nil, refreshErr
	}
	return call()
}

// AccountIDForEmail resolves an email address to exactly one account id.
//
// Matching is case-insensitive on the email field; the search endpoint
// returns fuzzy matches that must be filtered to exact ones. When several
// exact matches remain, a single regular (non-app, non-customer) account
// wins; otherwise the ambiguity is an error.
func (r *Resolver) AccountIDForEmail(ctx context.Context, email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty email", ErrUserNotFound)
	}

	r.mu.Lock()
	if id, ok := r.accounts[normalized]; ok {
		r.hits++
		r.mu.Unlock()
		return id, nil
	}
	r.misses++
	r.mu.Unlock()

	query := url.Values{}
	query.Set("query", normalized)

	resp, err := r.send(ctx, func() (*transport.Response, error) {
		return r.config.Transport.Get(ctx, r.baseURL+"/rest/api/3/user/search", query)
	})
	if err != nil {
		return "", fmt.Errorf("user search failed for %s: %w", normalized, err)
	}

	var users []User
	if err := resp.JSON(&users); err != nil {
		return "", err
	}

	var exact []User
	for _, u := range users {
		if strings.ToLower(u.EmailAddress) == normalized {
			exact = append(exact, u)
		}
	}

	switch len(exact) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, normalized)
	case 1:
		r.remember(normalized, exact[0].AccountID)
		return exact[0].AccountID, nil
	}

	// Several exact matches: app and customer accounts can share an email
	// with the person's real account. A single regular account wins.
	var regular []User
	for _, u := range exact {
		if u.AccountType == "atlassian" {
			regular = append(regular, u)
		}
	}
	if len(regular) == 1 {
		r.remember(normalized, regular[0].AccountID)
		return regular[0].AccountID, nil
	}

	return "", fmt.Errorf("%w: %d accounts match %s", ErrMultipleUsersFound, len(exact), normalized)
}

// IsAccountActive reports whether an account id is active. An unknown
// account is inactive, not an error: deactivation and deletion look the
// same to the sync.
func (r *Resolver) IsAccountActive(ctx context.Context, accountID string) (bool, error) {
	query := url.Values{}
	query.Set("accountId", accountID)

	resp, err := r.send(ctx, func() (*transport.Response, error) {
		return r.config.Transport.Get(ctx, r.baseURL+"/rest/api/3/user", query)
	})
	if err != nil {
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("account lookup failed for %s: %w", accountID, err)
	}

	var user User
	if err := resp.JSON(&user); err != nil {
		return false, err
	}
	return user.Active, nil
}

func (r *Resolver) remember(email, accountID string) {
	r.mu.Lock()
	r.accounts[email] = accountID
	r.mu.Unlock()
}

// CacheStats reports resolver cache effectiveness.
type CacheStats struct {
	Hits    int
	Misses  int
	Entries int
}

// Stats returns current cache counters.
func (r *Resolver) Stats() CacheStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return CacheStats{Hits: r.hits, Misses: r.misses, Entries: len(r.accounts)}
}
