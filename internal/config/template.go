package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// templateConfig mirrors the config file layout for `config init`.
type templateConfig struct {
	Jira struct {
		Domain      string `yaml:"domain"`
		WorkspaceID string `yaml:"workspace_id"`
	} `yaml:"jira"`
	Auth struct {
		Method    string `yaml:"method"`
		UserEmail string `yaml:"user_email,omitempty"`
		APIToken  string `yaml:"api_token,omitempty"`
	} `yaml:"auth"`
	OAuth struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURI  string `yaml:"redirect_uri"`
		Scopes       string `yaml:"scopes"`
	} `yaml:"oauth"`
	Schema struct {
		Name       string `yaml:"name"`
		ObjectType string `yaml:"object_type"`
	} `yaml:"schema"`
	Attributes struct {
		Email          string `yaml:"email"`
		Assignee       string `yaml:"assignee"`
		RetirementDate string `yaml:"retirement_date"`
		Status         string `yaml:"status"`
		RetiredStatus  string `yaml:"retired_status"`
	} `yaml:"attributes"`
	Rate struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
	} `yaml:"rate"`
	Query struct {
		PageSize  int `yaml:"page_size"`
		BatchSize int `yaml:"batch_size"`
	} `yaml:"query"`
	Cache struct {
		Dir string `yaml:"dir"`
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file,omitempty"`
	} `yaml:"log"`
}

// WriteTemplate writes a starter config file with defaults and placeholder
// credentials. Fails if the file already exists.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	var t templateConfig
	t.Jira.Domain = "company.atlassian.net"
	t.Jira.WorkspaceID = ""
	t.Auth.Method = "oauth"
	t.OAuth.ClientID = "your-client-id-here"
	t.OAuth.ClientSecret = "your-client-secret-here"
	t.OAuth.RedirectURI = "http://localhost:8080/callback"
	t.OAuth.Scopes = "read:cmdb-schema:jira read:cmdb-object:jira write:cmdb-object:jira read:jira-user"
	t.Schema.Name = "Hardware"
	t.Schema.ObjectType = "Laptops"
	t.Attributes.Email = "User Email"
	t.Attributes.Assignee = "Assignee"
	t.Attributes.RetirementDate = "Retirement Date"
	t.Attributes.Status = "Asset Status"
	t.Attributes.RetiredStatus = "Retired"
	t.Rate.RequestsPerMinute = 60
	t.Query.PageSize = 25
	t.Query.BatchSize = 100
	t.Cache.Dir = "cache"
	t.Cache.TTL = "24h"
	t.Log.Level = "info"

	data, err := yaml.Marshal(&t)
	if err != nil {
		return fmt.Errorf("failed to marshal config template: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}

	return nil
}
