package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikimirror/internal/errors"
	"git.home.luguber.info/inful/wikimirror/internal/retry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wikimirror.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_WM_TOKEN", "secret-token")
	path := writeConfig(t, `
source:
  base_url: https://example.atlassian.net/wiki
  email: docs@example.com
  api_token: ${TEST_WM_TOKEN}
  root_page_id: "12345"
output:
  directory: ./out
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "secret-token", cfg.Source.APIToken)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout())
	require.True(t, cfg.FollowLinks())
	require.True(t, cfg.Breadcrumbs())
	require.Equal(t, 2, cfg.Collect.MaxExpansionDepth)
	require.Equal(t, 5.0, cfg.Source.RequestsPerSecond)
	require.Equal(t, "Documentation", cfg.Output.SiteName)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
source:
  base_url: ftp://example.net
  email: docs@example.com
  api_token: tok
  root_page_id: "1"
output:
  directory: ./out
`)
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig), "expected config category, got %v", err)
}

func TestRetryPolicyFromConfig(t *testing.T) {
	path := writeConfig(t, `
source:
  base_url: https://example.atlassian.net/wiki
  email: docs@example.com
  api_token: tok
  root_page_id: "1"
  retry:
    backoff: linear
    initial_delay: 200ms
    max_delay: 2s
    max_retries: 4
output:
  directory: ./out
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	pol := cfg.RetryPolicy()
	require.Equal(t, retry.BackoffLinear, pol.Mode)
	require.Equal(t, 200*time.Millisecond, pol.Initial)
	require.Equal(t, 2*time.Second, pol.Max)
	require.Equal(t, 4, pol.MaxRetries)
}

func TestValidateRejectsBadInput(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Source.BaseURL = "https://example.atlassian.net/wiki"
		c.Source.Email = "docs@example.com"
		c.Source.APIToken = "tok"
		c.Source.RootPageID = "42"
		c.applyDefaults()
		return c
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.Source.BaseURL = "" }},
		{"relative base url", func(c *Config) { c.Source.BaseURL = "wiki/home" }},
		{"bad scheme", func(c *Config) { c.Source.BaseURL = "ftp://example.net" }},
		{"missing credentials", func(c *Config) { c.Source.APIToken = "" }},
		{"unexpanded placeholder", func(c *Config) { c.Source.APIToken = "${CONFLUENCE_API_TOKEN}" }},
		{"non numeric root", func(c *Config) { c.Source.RootPageID = "abc" }},
		{"bad timeout", func(c *Config) { c.Source.Timeout = "soon" }},
		{"bad backoff", func(c *Config) { c.Source.Retry.Backoff = "bouncy" }},
		{"negative depth", func(c *Config) { c.Collect.MaxExpansionDepth = -1 }},
		{"bad nats url", func(c *Config) { c.Audit.NATSURL = "http://nats.local" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, errors.IsCategory(err, errors.CategoryConfig), "expected config category, got %v", err)
		})
	}

	require.NoError(t, base().Validate())
}

func TestInitWritesExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wikimirror.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "second init without force must fail")
	require.NoError(t, Init(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "root_page_id")
	require.Contains(t, string(data), "${CONFLUENCE_API_TOKEN}")
}
