package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/wikimirror/internal/errors"
)

// Validate performs pre-flight validation of the configuration.
// Every failure is a fatal configuration error; nothing downstream
// recovers from a malformed source definition.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateCollect(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return c.validateAudit()
}

func (c *Config) validateSource() error {
	if c.Source.BaseURL == "" {
		return errors.ConfigError("source.base_url is required")
	}
	u, err := url.Parse(c.Source.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.ConfigError(fmt.Sprintf("source.base_url is not an absolute URL: %s", c.Source.BaseURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.ConfigError(fmt.Sprintf("source.base_url must be http(s), got %s", u.Scheme))
	}
	if c.Source.Email == "" || c.Source.APIToken == "" {
		return errors.ConfigError("source.email and source.api_token are required (set CONFLUENCE_EMAIL / CONFLUENCE_API_TOKEN)")
	}
	if strings.HasPrefix(c.Source.Email, "${") || strings.HasPrefix(c.Source.APIToken, "${") {
		return errors.ConfigError("source credentials contain unexpanded ${...} placeholders; check your environment")
	}
	if c.Source.RootPageID == "" {
		return errors.ConfigError("source.root_page_id is required")
	}
	for _, r := range c.Source.RootPageID {
		if r < '0' || r > '9' {
			return errors.ConfigError(fmt.Sprintf("source.root_page_id must be numeric, got %q", c.Source.RootPageID))
		}
	}
	if _, err := time.ParseDuration(c.Source.Timeout); err != nil {
		return errors.ConfigError(fmt.Sprintf("source.timeout is not a duration: %s", c.Source.Timeout))
	}
	return c.validateRetry()
}

func (c *Config) validateRetry() error {
	r := c.Source.Retry
	if r.Backoff != "" && retryModeUnknown(r.Backoff) {
		return errors.ConfigError(fmt.Sprintf("source.retry.backoff must be fixed, linear or exponential, got %q", r.Backoff))
	}
	for name, v := range map[string]string{
		"source.retry.initial_delay": r.InitialDelay,
		"source.retry.max_delay":     r.MaxDelay,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return errors.ConfigError(fmt.Sprintf("%s is not a duration: %s", name, v))
		}
	}
	if r.MaxRetries < 0 {
		return errors.ConfigError("source.retry.max_retries cannot be negative")
	}
	return nil
}

func (c *Config) validateCollect() error {
	if c.Collect.MaxExpansionDepth < 0 {
		return errors.ConfigError("collect.max_expansion_depth cannot be negative")
	}
	if c.Collect.MaxExpansionDepth > 10 {
		return errors.ConfigError("collect.max_expansion_depth above 10 is almost certainly a mistake")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.Directory == "" {
		return errors.ConfigError("output.directory is required")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if _, err := time.ParseDuration(c.Audit.ExternalTimeout); err != nil {
		return errors.ConfigError(fmt.Sprintf("audit.external_timeout is not a duration: %s", c.Audit.ExternalTimeout))
	}
	if c.Audit.NATSURL != "" && !strings.HasPrefix(c.Audit.NATSURL, "nats://") && !strings.HasPrefix(c.Audit.NATSURL, "tls://") {
		return errors.ConfigError(fmt.Sprintf("audit.nats_url must start with nats:// or tls://, got %s", c.Audit.NATSURL))
	}
	return nil
}

func retryModeUnknown(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "fixed", "linear", "exponential":
		return false
	default:
		return true
	}
}
