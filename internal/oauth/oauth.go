// Package oauth manages the OAuth 2.0 (3LO) credential lifecycle.
//
// One credential file backs all remote calls:
//  1. Obtain returns the stored credential when it is still valid
//  2. An expired credential with a refresh token is refreshed and the file
//     rewritten in place; a failed refresh removes the file and surfaces
//     ErrReauthorizationRequired (never silently retried)
//  3. With no usable credential, the interactive browser flow runs
//     (authorization URL, localhost callback, code exchange)
//
// The tenant routing identifier (cloud id) is discovered once per credential
// via the accessible-resources endpoint and cached alongside the token.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
)

// Atlassian OAuth endpoints.
const (
	defaultAuthURL      = "https://auth.atlassian.com/authorize"
	defaultTokenURL     = "https://auth.atlassian.com/oauth/token"
	defaultResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"
)

// Config holds OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// TokenFile is the fixed location of the persisted credential.
	TokenFile string

	// Endpoint overrides for tests. Defaults point at Atlassian.
	AuthURL      string
	TokenURL     string
	ResourcesURL string

	// OpenBrowser launches the authorization URL during the interactive
	// flow. When nil, the URL is only printed by the caller.
	OpenBrowser func(url string) error

	// HTTPClient used for token and discovery calls.
	HTTPClient *http.Client

	// Logger for credential activity. Defaults to stderr.
	Logger *log.Logger
}

// Manager owns the persisted credential file and all token exchanges.
type Manager struct {
	config   *Config
	oauthCfg *oauth2.Config
	http     *http.Client
	logger   *log.Logger

	cred *Credential // in-process copy of the persisted credential
}

// NewManager creates a credential manager.
func NewManager(config *Config) *Manager {
	authURL := config.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	tokenURL := config.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	// offline_access is what makes the provider hand out a refresh token.
	scopes := append([]string{}, config.Scopes...)
	if !containsScope(scopes, "offline_access") {
		scopes = append(scopes, "offline_access")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[oauth] ", log.LstdFlags)
	}

	return &Manager{
		config: config,
		oauthCfg: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		http:   httpClient,
		logger: logger,
	}
}

// Obtain returns a valid credential, refreshing or authorizing as needed.
//
// Resolution order: in-process copy, persisted file, refresh exchange,
// interactive authorization. A refresh failure is terminal for the stored
// credential: the file is removed and ErrReauthorizationRequired returned.
func (m *Manager) Obtain(ctx context.Context) (*Credential, error) {
	if m.cred == nil {
		cred, err := loadCredential(m.config.TokenFile)
		if err == nil {
			m.cred = cred
		} else if !errors.Is(err, ErrNoCredential) {
			return nil, err
		}
	}

	if m.cred.Valid() {
		return m.cred, nil
	}

	if m.cred != nil && m.cred.RefreshToken != "" {
		return m.Refresh(ctx)
	}

	return m.Authorize(ctx)
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result. On failure the credential file is removed: refresh
// failures require full re-authorization and are never retried silently.
func (m *Manager) Refresh(ctx context.Context) (*Credential, error) {
	if m.cred == nil || m.cred.RefreshToken == "" {
		return nil, ErrNoCredential
	}

	m.logger.Printf("Refreshing access token")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)
	src := m.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: m.cred.RefreshToken})

	token, err := src.Token()
	if err != nil {
		m.logger.Printf("Token refresh failed: %v", err)
		if rmErr := removeCredential(m.config.TokenFile); rmErr != nil {
			m.logger.Printf("WARNING: %v", rmErr)
		}
		m.cred = nil
		return nil, fmt.Errorf("%w: %v", ErrReauthorizationRequired, err)
	}

	cred := &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		CloudID:      m.cred.CloudID, // routing id survives refresh
		Scopes:       m.cred.Scopes,
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = m.cred.RefreshToken
	}

	if err := saveCredential(m.config.TokenFile, cred); err != nil {
		return nil, err
	}

	m.cred = cred
	m.logger.Printf("Access token refreshed, expires %s", cred.Expiry.Format(time.RFC3339))
	return cred, nil
}

// Authorize runs the interactive browser flow: authorization URL, localhost
// callback, code exchange. The resulting credential is persisted.
func (m *Manager) Authorize(ctx context.Context) (*Credential, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}

	authURL := m.oauthCfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	addr, path, err := callbackAddr(m.config.RedirectURI)
	if err != nil {
		return nil, err
	}

	m.logger.Printf("Starting authorization flow, callback on %s", addr)
	if m.config.OpenBrowser != nil {
		if err := m.config.OpenBrowser(authURL); err != nil {
			m.logger.Printf("Failed to open browser: %v", err)
			m.logger.Printf("Visit this URL to authorize: %s", authURL)
		}
	} else {
		m.logger.Printf("Visit this URL to authorize: %s", authURL)
	}

	code, err := waitForCallback(ctx, addr, path, state)
	if err != nil {
		return nil, fmt.Errorf("authorization callback failed: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)
	token, err := m.oauthCfg.Exchange(ctx, code,
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	cred := &Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		Scopes:       m.oauthCfg.Scopes,
	}

	if err := saveCredential(m.config.TokenFile, cred); err != nil {
		return nil, err
	}

	m.cred = cred
	m.logger.Printf("Authorization complete, credential saved to %s", m.config.TokenFile)
	return cred, nil
}

// Reset removes the persisted credential.
func (m *Manager) Reset() error {
	m.cred = nil
	if err := removeCredential(m.config.TokenFile); err != nil {
		return err
	}
	m.logger.Printf("Cleared stored credential")
	return nil
}

// Current returns the in-process credential without triggering any
// exchange. May be nil.
func (m *Manager) Current() *Credential {
	if m.cred == nil {
		cred, err := loadCredential(m.config.TokenFile)
		if err != nil {
			return nil
		}
		m.cred = cred
	}
	return m.cred
}

// AccessToken implements transport.TokenSource.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	cred, err := m.Obtain(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// accessibleResource is one entry from the accessible-resources endpoint.
type accessibleResource struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// ResolveCloudID maps the credential to the tenant routing identifier for
// siteURL. The id is cached on the credential and persisted, since it is
// stable for the credential's lifetime.
func (m *Manager) ResolveCloudID(ctx context.Context, siteURL string) (string, error) {
	cred, err := m.Obtain(ctx)
	if err != nil {
		return "", err
	}
	if cred.CloudID != "" {
		return cred.CloudID, nil
	}

	resourcesURL := m.config.ResourcesURL
	if resourcesURL == "" {
		resourcesURL = defaultResourcesURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourcesURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get accessible resources: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read accessible resources: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("accessible resources request failed: HTTP %d: %s", resp.StatusCode, body)
	}

	var resources []accessibleResource
	if err := json.Unmarshal(body, &resources); err != nil {
		return "", fmt.Errorf("failed to parse accessible resources: %w", err)
	}

	for _, r := range resources {
		if r.URL == siteURL {
			cred.CloudID = r.ID
			if err := saveCredential(m.config.TokenFile, cred); err != nil {
				m.logger.Printf("WARNING: failed to persist cloud id: %v", err)
			}
			m.logger.Printf("Discovered cloud id %s for %s", r.ID, siteURL)
			return r.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrSiteNotFound, siteURL)
}

// callbackAddr splits the redirect URI into a listen address and path.
func callbackAddr(redirectURI string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	host := u.Host
	if u.Port() == "" {
		host += ":80"
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return host, path, nil
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
