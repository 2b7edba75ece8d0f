package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/wikimirror/internal/retry"
)

// Config represents the application configuration
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Collect CollectConfig `yaml:"collect"`
	Output  OutputConfig  `yaml:"output"`
	Audit   AuditConfig   `yaml:"audit"`
	Daemon  DaemonConfig  `yaml:"daemon,omitempty"`
	History HistoryConfig `yaml:"history,omitempty"`
	Publish PublishConfig `yaml:"publish,omitempty"`
}

// SourceConfig describes the remote content API and its access policy.
type SourceConfig struct {
	BaseURL           string      `yaml:"base_url"`
	Email             string      `yaml:"email"`
	APIToken          string      `yaml:"api_token"`
	RootPageID        string      `yaml:"root_page_id"`
	Timeout           string      `yaml:"timeout,omitempty"`
	RequestsPerSecond float64     `yaml:"requests_per_second,omitempty"`
	Burst             int         `yaml:"burst,omitempty"`
	Retry             RetryConfig `yaml:"retry,omitempty"`
}

// RetryConfig holds raw retry knobs; see retry.NewPolicy for fallback behavior.
type RetryConfig struct {
	Backoff      string `yaml:"backoff,omitempty"` // fixed|linear|exponential
	InitialDelay string `yaml:"initial_delay,omitempty"`
	MaxDelay     string `yaml:"max_delay,omitempty"`
	MaxRetries   int    `yaml:"max_retries,omitempty"`
}

// CollectConfig bounds the traversal.
type CollectConfig struct {
	FollowLinks       *bool `yaml:"follow_links,omitempty"`
	MaxExpansionDepth int   `yaml:"max_expansion_depth,omitempty"`
	AssetConcurrency  int   `yaml:"asset_concurrency,omitempty"`
}

// OutputConfig describes the written document tree.
type OutputConfig struct {
	Directory   string `yaml:"directory"`
	SiteName    string `yaml:"site_name,omitempty"`
	Numbering   bool   `yaml:"numbering,omitempty"`
	Breadcrumbs *bool  `yaml:"breadcrumbs,omitempty"`
}

// AuditConfig controls the post-write link audit.
type AuditConfig struct {
	External        bool   `yaml:"external,omitempty"`
	ExternalTimeout string `yaml:"external_timeout,omitempty"`
	NATSURL         string `yaml:"nats_url,omitempty"`
	CacheBucket     string `yaml:"cache_bucket,omitempty"`
}

// DaemonConfig controls scheduled re-sync mode.
type DaemonConfig struct {
	Interval string `yaml:"interval,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

// HistoryConfig locates the run-history store.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// PublishConfig describes the git target for published trees.
type PublishConfig struct {
	RemoteURL   string `yaml:"remote_url,omitempty"`
	Branch      string `yaml:"branch,omitempty"`
	AuthorName  string `yaml:"author_name,omitempty"`
	AuthorEmail string `yaml:"author_email,omitempty"`
	Token       string `yaml:"token,omitempty"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env / .env.local if present; missing files are fine.
	if err := godotenv.Load(".env.local", ".env"); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment variables from .env")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Source.Timeout == "" {
		c.Source.Timeout = "30s"
	}
	if c.Source.RequestsPerSecond <= 0 {
		c.Source.RequestsPerSecond = 5
	}
	if c.Source.Burst <= 0 {
		c.Source.Burst = 5
	}
	if c.Collect.FollowLinks == nil {
		v := true
		c.Collect.FollowLinks = &v
	}
	if c.Collect.MaxExpansionDepth <= 0 {
		c.Collect.MaxExpansionDepth = 2
	}
	if c.Collect.AssetConcurrency <= 0 {
		c.Collect.AssetConcurrency = 4
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./site"
	}
	if c.Output.SiteName == "" {
		c.Output.SiteName = "Documentation"
	}
	if c.Output.Breadcrumbs == nil {
		v := true
		c.Output.Breadcrumbs = &v
	}
	if c.Audit.ExternalTimeout == "" {
		c.Audit.ExternalTimeout = "10s"
	}
	if c.Audit.CacheBucket == "" {
		c.Audit.CacheBucket = "wikimirror-linkcheck"
	}
	if c.Daemon.Interval == "" {
		c.Daemon.Interval = "1h"
	}
	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":9180"
	}
	if c.History.Path == "" {
		c.History.Path = "wikimirror-history.db"
	}
	if c.Publish.Branch == "" {
		c.Publish.Branch = "gh-pages"
	}
	if c.Publish.AuthorName == "" {
		c.Publish.AuthorName = "wikimirror"
	}
	if c.Publish.AuthorEmail == "" {
		c.Publish.AuthorEmail = "wikimirror@localhost"
	}
}

// FollowLinks reports whether hyperlink expansion is enabled (default true).
func (c *Config) FollowLinks() bool {
	return c.Collect.FollowLinks == nil || *c.Collect.FollowLinks
}

// Breadcrumbs reports whether breadcrumb trails are written (default true).
func (c *Config) Breadcrumbs() bool {
	return c.Output.Breadcrumbs == nil || *c.Output.Breadcrumbs
}

// HTTPTimeout parses the per-call timeout, falling back to 30s.
func (c *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Source.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// AuditTimeout parses the external check timeout, falling back to 10s.
func (c *Config) AuditTimeout() time.Duration {
	d, err := time.ParseDuration(c.Audit.ExternalTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// DaemonInterval parses the re-sync interval, falling back to one hour.
func (c *Config) DaemonInterval() time.Duration {
	d, err := time.ParseDuration(c.Daemon.Interval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RetryPolicy builds the typed retry policy from raw config fields.
func (c *Config) RetryPolicy() retry.Policy {
	initial, _ := time.ParseDuration(c.Source.Retry.InitialDelay)
	maxDelay, _ := time.ParseDuration(c.Source.Retry.MaxDelay)
	maxRetries := -1
	if c.Source.Retry.MaxRetries > 0 {
		maxRetries = c.Source.Retry.MaxRetries
	}
	return retry.NewPolicy(retry.NormalizeBackoff(c.Source.Retry.Backoff), initial, maxDelay, maxRetries)
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	trueVal := true
	exampleConfig := Config{
		Source: SourceConfig{
			BaseURL:           "https://yourcompany.atlassian.net/wiki",
			Email:             "${CONFLUENCE_EMAIL}",
			APIToken:          "${CONFLUENCE_API_TOKEN}",
			RootPageID:        "123456",
			Timeout:           "30s",
			RequestsPerSecond: 5,
			Burst:             5,
			Retry: RetryConfig{
				Backoff:      "exponential",
				InitialDelay: "500ms",
				MaxDelay:     "10s",
				MaxRetries:   3,
			},
		},
		Collect: CollectConfig{
			FollowLinks:       &trueVal,
			MaxExpansionDepth: 2,
			AssetConcurrency:  4,
		},
		Output: OutputConfig{
			Directory: "./site",
			SiteName:  "Team Documentation",
		},
	}

	data, err := yaml.Marshal(&exampleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
