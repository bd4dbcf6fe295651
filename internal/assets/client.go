// Package assets is the client for the asset catalog API.
//
// Discovery metadata (schemas, object types, attributes) is cached at two
// levels: an in-process map for the life of the client, and a durable file
// cache shared across runs. Asset objects themselves are never cached;
// every read reflects live state.
//
// All calls go through the shared rate-limited transport. A 401 triggers
// exactly one credential refresh followed by one retry of the same call;
// a second 401 is surfaced to the caller.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"sync"

	"github.com/hwops/assetsync/internal/cache"
	"github.com/hwops/assetsync/internal/transport"
)

// TokenRefresher forces a credential refresh after a mid-flight 401.
type TokenRefresher interface {
	Refresh(ctx context.Context) error
}

// Config holds the client settings.
type Config struct {
	// CloudID is the tenant routing identifier.
	CloudID string

	// WorkspaceID identifies the asset workspace.
	WorkspaceID string

	// Transport is the shared rate-limited HTTP client.
	Transport *transport.Client

	// Refresher, when set, is invoked once on a 401 before the call is
	// retried. Nil disables the refresh-and-retry path (API token auth).
	Refresher TokenRefresher

	// Store, when set, persists discovery results across runs.
	Store *cache.Store

	// BaseURL overrides the derived endpoint. Tests point this at a local
	// server; production leaves it empty.
	BaseURL string

	// PageSize for paged queries (default: 25).
	PageSize int

	// Logger for client activity. Defaults to stderr.
	Logger *log.Logger
}

// Client talks to the asset catalog API.
type Client struct {
	config  *Config
	baseURL string
	logger  *log.Logger

	mu         sync.Mutex
	schemas    map[string]Schema    // name -> schema
	types      map[string]ObjectType // "schemaID:name" -> type
	attributes map[int]map[string]int // type id -> attribute name -> id
	hits       int
	misses     int
}

// New creates an asset catalog client.
func New(config *Config) *Client {
	if config.PageSize <= 0 {
		config.PageSize = 25
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[assets] ", log.LstdFlags)
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://api.atlassian.com/ex/jira/%s/jsm/assets/workspace/%s/v1",
			config.CloudID, config.WorkspaceID)
	}
	return &Client{
		config:     config,
		baseURL:    baseURL,
		logger:     logger,
		schemas:    make(map[string]Schema),
		types:      make(map[string]ObjectType),
		attributes: make(map[int]map[string]int),
	}
}

// send runs call, refreshing the credential and retrying once on a 401.
func (c *Client) send(ctx context.Context, call func() (*transport.Response, error)) (*transport.Response, error) {
	resp, err := call()
	if err == nil || !errors.Is(err, transport.ErrUnauthorized) || c.config.Refresher == nil {
		return resp, err
	}

	c.logger.Printf("Unauthorized response, refreshing credential and retrying once")
	if refreshErr := c.config.Refresher.Refresh(ctx); refreshErr != nil {
		return nil, refreshErr
	}
	return call()
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*transport.Response, error) {
	return c.send(ctx, func() (*transport.Response, error) {
		return c.config.Transport.Get(ctx, c.baseURL+path, query)
	})
}

func (c *Client) post(ctx context.Context, path string, query url.Values, body any) (*transport.Response, error) {
	return c.send(ctx, func() (*transport.Response, error) {
		return c.config.Transport.Post(ctx, c.baseURL+path, query, body)
	})
}

func (c *Client) put(ctx context.Context, path string, body any) (*transport.Response, error) {
	return c.send(ctx, func() (*transport.Response, error) {
		return c.config.Transport.Put(ctx, c.baseURL+path, body)
	})
}

func (c *Client) delete(ctx context.Context, path string) (*transport.Response, error) {
	return c.send(ctx, func() (*transport.Response, error) {
		return c.config.Transport.Delete(ctx, c.baseURL+path)
	})
}

// CacheStats reports in-process cache effectiveness.
type CacheStats struct {
	Hits    int
	Misses  int
	Schemas int
	Types   int
}

// Stats returns current cache counters.
func (c *Client) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:    c.hits,
		Misses:  c.misses,
		Schemas: len(c.schemas),
		Types:   len(c.types),
	}
}

// InvalidateCache drops all cached discovery metadata, in-process and
// durable. The next lookup rebuilds everything from the API.
func (c *Client) InvalidateCache() error {
	c.mu.Lock()
	c.schemas = make(map[string]Schema)
	c.types = make(map[string]ObjectType)
	c.attributes = make(map[int]map[string]int)
	c.mu.Unlock()

	if c.config.Store != nil {
		if _, err := c.config.Store.InvalidateAll(); err != nil {
			return err
		}
	}
	c.logger.Printf("Discovery cache invalidated")
	return nil
}
