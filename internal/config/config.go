// Package config loads and validates assetsync configuration.
//
// Configuration is resolved from three layers, in increasing precedence:
//  1. Built-in defaults
//  2. An optional YAML config file (assetsync.yaml)
//  3. Environment variables with the ASSETSYNC_ prefix
//     (ASSETSYNC_JIRA_DOMAIN, ASSETSYNC_OAUTH_CLIENT_ID, ...)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all settings for a sync run.
type Config struct {
	// Remote service location
	JiraDomain  string // e.g. "company.atlassian.net"
	WorkspaceID string // Assets workspace UUID

	// Authentication
	AuthMethod        string // "oauth" or "basic"
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURI  string
	OAuthScopes       []string
	UserEmail         string // basic auth
	APIToken          string // basic auth
	TokenFile         string // persisted OAuth credential

	// Schema resolution (names are the operator-facing contract)
	SchemaName         string // e.g. "Hardware"
	ObjectTypeName     string // e.g. "Laptops"
	EmailAttribute     string // e.g. "User Email"
	AssigneeAttribute  string // e.g. "Assignee"
	RetirementDateAttr string // e.g. "Retirement Date"
	StatusAttribute    string // e.g. "Asset Status"
	RetiredStatusValue string // e.g. "Retired"

	// Pacing and batching
	RequestsPerMinute int
	PageSize          int
	BatchSize         int

	// Durable cache
	CacheDir string
	CacheTTL time.Duration

	// Artifacts
	BackupsDir  string
	HistoryPath string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from the given file (optional, "" means search
// the working directory) plus the environment.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASSETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("assetsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars may carry everything.
		var notFound viper.ConfigFileNotFoundError
		if file != "" {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	home, _ := os.UserHomeDir()

	cfg := &Config{
		JiraDomain:  v.GetString("jira.domain"),
		WorkspaceID: v.GetString("jira.workspace_id"),

		AuthMethod:        strings.ToLower(v.GetString("auth.method")),
		OAuthClientID:     v.GetString("oauth.client_id"),
		OAuthClientSecret: v.GetString("oauth.client_secret"),
		OAuthRedirectURI:  v.GetString("oauth.redirect_uri"),
		OAuthScopes:       strings.Fields(v.GetString("oauth.scopes")),
		UserEmail:         v.GetString("auth.user_email"),
		APIToken:          v.GetString("auth.api_token"),
		TokenFile:         v.GetString("oauth.token_file"),

		SchemaName:         v.GetString("schema.name"),
		ObjectTypeName:     v.GetString("schema.object_type"),
		EmailAttribute:     v.GetString("attributes.email"),
		AssigneeAttribute:  v.GetString("attributes.assignee"),
		RetirementDateAttr: v.GetString("attributes.retirement_date"),
		StatusAttribute:    v.GetString("attributes.status"),
		RetiredStatusValue: v.GetString("attributes.retired_status"),

		RequestsPerMinute: v.GetInt("rate.requests_per_minute"),
		PageSize:          v.GetInt("query.page_size"),
		BatchSize:         v.GetInt("query.batch_size"),

		CacheDir: v.GetString("cache.dir"),
		CacheTTL: v.GetDuration("cache.ttl"),

		BackupsDir:  v.GetString("results.backups_dir"),
		HistoryPath: v.GetString("results.history_db"),

		LogLevel: v.GetString("log.level"),
		LogFile:  v.GetString("log.file"),
	}

	if cfg.TokenFile == "" && home != "" {
		cfg.TokenFile = filepath.Join(home, ".assetsync", "oauth_token.json")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth.method", "oauth")
	v.SetDefault("oauth.redirect_uri", "http://localhost:8080/callback")
	v.SetDefault("oauth.scopes",
		"read:cmdb-schema:jira read:cmdb-object:jira write:cmdb-object:jira read:jira-user")
	v.SetDefault("schema.name", "Hardware")
	v.SetDefault("schema.object_type", "Laptops")
	v.SetDefault("attributes.email", "User Email")
	v.SetDefault("attributes.assignee", "Assignee")
	v.SetDefault("attributes.retirement_date", "Retirement Date")
	v.SetDefault("attributes.status", "Asset Status")
	v.SetDefault("attributes.retired_status", "Retired")
	v.SetDefault("rate.requests_per_minute", 60)
	v.SetDefault("query.page_size", 25)
	v.SetDefault("query.batch_size", 100)
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("results.backups_dir", "backups")
	v.SetDefault("results.history_db", filepath.Join(".assetsync", "history.db"))
	v.SetDefault("log.level", "info")
}

// Validate checks that all required settings for the selected auth method
// are present. Placeholder values from the shipped template are rejected.
func (c *Config) Validate() error {
	var missing []string

	if c.JiraDomain == "" {
		missing = append(missing, "jira.domain")
	}
	if c.WorkspaceID == "" {
		missing = append(missing, "jira.workspace_id")
	}

	switch c.AuthMethod {
	case "oauth":
		if c.OAuthClientID == "" {
			missing = append(missing, "oauth.client_id")
		}
		if c.OAuthClientSecret == "" {
			missing = append(missing, "oauth.client_secret")
		}
	case "basic":
		if c.UserEmail == "" {
			missing = append(missing, "auth.user_email")
		}
		if c.APIToken == "" {
			missing = append(missing, "auth.api_token")
		}
	default:
		return fmt.Errorf("auth.method must be \"oauth\" or \"basic\" (got %q)", c.AuthMethod)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	for _, placeholder := range []string{
		"your-client-id-here", "your-client-secret-here",
		"your.email@company.com", "YOUR_API_TOKEN_HERE",
	} {
		for _, val := range []string{c.OAuthClientID, c.OAuthClientSecret, c.UserEmail, c.APIToken} {
			if val == placeholder {
				return fmt.Errorf("configuration still contains the placeholder value %q", placeholder)
			}
		}
	}

	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate.requests_per_minute must be positive (got %d)", c.RequestsPerMinute)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("query.page_size must be positive (got %d)", c.PageSize)
	}

	return nil
}

// BaseURL returns the site URL for the configured Jira domain.
func (c *Config) BaseURL() string {
	return "https://" + c.JiraDomain
}

// MinRequestInterval converts the requests-per-minute budget into the
// minimum spacing between outbound calls.
func (c *Config) MinRequestInterval() time.Duration {
	return time.Duration(float64(time.Minute) / float64(c.RequestsPerMinute))
}
