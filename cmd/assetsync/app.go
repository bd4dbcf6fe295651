package main

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"runtime"

	"github.com/hwops/assetsync/internal/assets"
	"github.com/hwops/assetsync/internal/cache"
	"github.com/hwops/assetsync/internal/config"
	"github.com/hwops/assetsync/internal/directory"
	"github.com/hwops/assetsync/internal/logging"
	"github.com/hwops/assetsync/internal/oauth"
	"github.com/hwops/assetsync/internal/syncer"
	"github.com/hwops/assetsync/internal/transport"
)

// app holds the wired components for one invocation.
type app struct {
	cfg    *config.Config
	logger *log.Logger

	oauthMgr  *oauth.Manager // nil for basic auth
	transport *transport.Client
	assets    *assets.Client
	directory *directory.Resolver
	engine    *syncer.Engine
}

// refreshAdapter exposes the credential manager's refresh as the one-shot
// retry hook the API clients expect.
type refreshAdapter struct {
	manager *oauth.Manager
}

func (r refreshAdapter) Refresh(ctx context.Context) error {
	_, err := r.manager.Refresh(ctx)
	return err
}

// loadConfig reads and validates configuration for commands that need it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newOAuthManager builds the credential manager from config.
func newOAuthManager(cfg *config.Config, logger *log.Logger) *oauth.Manager {
	return oauth.NewManager(&oauth.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURI:  cfg.OAuthRedirectURI,
		Scopes:       cfg.OAuthScopes,
		TokenFile:    cfg.TokenFile,
		OpenBrowser:  openBrowser,
		Logger:       logging.Child(logger, "[oauth] "),
	})
}

// buildApp wires every component from config. For OAuth this resolves the
// tenant routing id up front, which may trigger the interactive flow.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := logging.Setup("[assetsync] ", cfg.LogFile)

	a := &app{cfg: cfg, logger: logger}

	transportCfg := &transport.Config{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logging.Child(logger, "[transport] "),
	}

	assetsCfg := &assets.Config{
		WorkspaceID: cfg.WorkspaceID,
		PageSize:    cfg.PageSize,
		Store:       cache.New(cfg.CacheDir, cfg.CacheTTL, cfg.WorkspaceID, logging.Child(logger, "[cache] ")),
		Logger:      logging.Child(logger, "[assets] "),
	}
	directoryCfg := &directory.Config{
		Logger: logging.Child(logger, "[directory] "),
	}

	switch cfg.AuthMethod {
	case "oauth":
		a.oauthMgr = newOAuthManager(cfg, logger)
		a.transport = transport.New(transportCfg, &transport.BearerAuth{Source: a.oauthMgr})

		cloudID, err := a.oauthMgr.ResolveCloudID(ctx, cfg.BaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to resolve site: %w", err)
		}
		assetsCfg.CloudID = cloudID
		assetsCfg.Refresher = refreshAdapter{a.oauthMgr}
		directoryCfg.CloudID = cloudID
		directoryCfg.Refresher = refreshAdapter{a.oauthMgr}
	case "basic":
		a.transport = transport.New(transportCfg, &transport.BasicAuth{
			Username: cfg.UserEmail,
			Token:    cfg.APIToken,
		})
		// Basic auth calls the site directly instead of routing through
		// the gateway by cloud id.
		assetsCfg.BaseURL = fmt.Sprintf("%s/gateway/api/jsm/assets/workspace/%s/v1",
			cfg.BaseURL(), cfg.WorkspaceID)
		directoryCfg.BaseURL = cfg.BaseURL()
	default:
		return nil, fmt.Errorf("unsupported auth method %q", cfg.AuthMethod)
	}

	assetsCfg.Transport = a.transport
	directoryCfg.Transport = a.transport

	a.assets = assets.New(assetsCfg)
	a.directory = directory.New(directoryCfg)
	a.engine = syncer.New(a.assets, a.directory, &syncer.Config{
		Schema:                  cfg.SchemaName,
		ObjectType:              cfg.ObjectTypeName,
		EmailAttribute:          cfg.EmailAttribute,
		AssigneeAttribute:       cfg.AssigneeAttribute,
		RetirementDateAttribute: cfg.RetirementDateAttr,
		StatusAttribute:         cfg.StatusAttribute,
		RetiredStatusValue:      cfg.RetiredStatusValue,
		Logger:                  logging.Child(logger, "[sync] "),
	})

	return a, nil
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
