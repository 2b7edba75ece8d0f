package confluence

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cferrors "git.home.luguber.info/inful/wikimirror/internal/confluence/errors"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
	"git.home.luguber.info/inful/wikimirror/internal/metrics"
	"git.home.luguber.info/inful/wikimirror/internal/retry"
)

// pageLimit is the page size requested from paginated listings.
const pageLimit = 100

// defaultRetryAfter applies when a 429 response carries no usable hint.
const defaultRetryAfter = time.Second

// Options configures a Client.
type Options struct {
	BaseURL           string // e.g. https://yourcompany.atlassian.net/wiki
	Email             string
	APIToken          string
	Timeout           time.Duration
	Policy            retry.Policy
	RequestsPerSecond float64
	Burst             int
}

// Client provides authenticated access to the remote content API: page
// fetches, paginated child listings, binary downloads, and canonical-ID
// resolution for indirect links. It owns retry/backoff and rate limiting.
type Client struct {
	baseURL  *url.URL
	email    string
	token    string
	http     *http.Client
	policy   retry.Policy
	limiter  *RateLimiter
	recorder metrics.Recorder

	// resolveCache maps href -> page ID for the lifetime of a run.
	// Negative results are cached as the empty string. Never persisted.
	mu           sync.Mutex
	resolveCache map[string]string

	requests atomic.Int64
}

// New creates a Client for the given remote. The base URL must be absolute.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pol := opts.Policy
	if pol.Initial == 0 && pol.Max == 0 {
		pol = retry.DefaultPolicy()
	}
	return &Client{
		baseURL:      u,
		email:        opts.Email,
		token:        opts.APIToken,
		http:         &http.Client{Timeout: timeout},
		policy:       pol,
		limiter:      NewRateLimiter(opts.RequestsPerSecond, opts.Burst),
		recorder:     metrics.NoopRecorder{},
		resolveCache: make(map[string]string),
	}, nil
}

// SetRecorder injects a metrics recorder (optional). Returns the client for chaining.
func (c *Client) SetRecorder(r metrics.Recorder) *Client {
	if r == nil {
		c.recorder = metrics.NoopRecorder{}
		return c
	}
	c.recorder = r
	return c
}

// SetHTTPClient swaps the underlying HTTP client (used by tests).
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// BaseURL returns the configured remote base URL.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Requests returns the number of HTTP requests issued so far in this run.
func (c *Client) Requests() int64 { return c.requests.Load() }

// AbsoluteURL resolves an href against the remote: absolute URLs pass
// through, host-relative paths attach to the origin, and bare relative
// paths attach under the base path.
func (c *Client) AbsoluteURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return href
	}
	return c.baseURL.ResolveReference(u).String()
}

// httpError carries status diagnostics through the retry loop.
type httpError struct {
	Status     int
	RetryAfter time.Duration
	URL        string
	Excerpt    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.URL, e.Excerpt)
}

func (e *httpError) transient() bool { return e.Status >= 500 }

// newRequest builds an authenticated API request. Endpoint is a path
// relative to the base URL; query strings are preserved. Listing cursors
// that already include the base path are normalized.
func (c *Client) newRequest(ctx context.Context, method, endpoint string) (*http.Request, error) {
	cleanEndpoint := strings.TrimPrefix(endpoint, "/")

	var rawQuery string
	if idx := strings.Index(cleanEndpoint, "?"); idx != -1 {
		rawQuery = cleanEndpoint[idx+1:]
		cleanEndpoint = cleanEndpoint[:idx]
	}

	basePath := strings.TrimSuffix(c.baseURL.Path, "/")
	if trimmed := strings.TrimPrefix(basePath, "/"); trimmed != "" {
		cleanEndpoint = strings.TrimPrefix(cleanEndpoint, trimmed+"/")
	}

	u := *c.baseURL
	u.Path = path.Join(basePath, cleanEndpoint)
	u.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", method, u.String(), err)
	}
	c.decorate(req)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) decorate(req *http.Request) {
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("User-Agent", "wikimirror/1.0")
}

// do issues a request through the rate limiter and counts it.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	c.requests.Add(1)
	return c.http.Do(req)
}

// doJSON executes a request and decodes a JSON response. Statuses >= 400
// surface as *httpError with a limited body excerpt for diagnostics.
func (c *Client) doJSON(req *http.Request, result any) error {
	resp, err := c.do(req)
	if err != nil {
		c.recorder.IncRequest(metrics.ResultError)
		return fmt.Errorf("execute %s: %w", req.URL.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpError{
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			URL:        req.URL.String(),
			Excerpt:    strings.ReplaceAll(string(limitedBody), "\n", " "),
		}
	}

	c.recorder.IncRequest(metrics.ResultSuccess)
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response from %s: %w", req.URL.String(), err)
		}
	}
	return nil
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return defaultRetryAfter
}

// withRetry runs fn under the retry policy. A 429 honors the server hint
// and retries without consuming budget; 5xx and transport errors consume
// budget with backoff; other statuses map to terminal sentinels.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var he *httpError
		if stderrors.As(err, &he) {
			if he.Status == http.StatusTooManyRequests {
				c.recorder.IncRequest(metrics.ResultRateLimited)
				if he.RetryAfter > 0 {
					c.limiter.RecordRateLimit(he.RetryAfter)
				}
				slog.Warn("remote rate limited, honoring hint",
					slog.String("operation", op),
					slog.Duration("retry_after", he.RetryAfter))
				select {
				case <-ctx.Done():
					return fmt.Errorf("%w: %s: %w", cferrors.ErrRateLimited, op, ctx.Err())
				case <-time.After(he.RetryAfter):
				}
				continue
			}
			if !he.transient() {
				c.recorder.IncRequest(metrics.ResultError)
				return mapTerminal(op, he)
			}
			c.recorder.IncRequest(metrics.ResultError)
		}

		if attempt >= c.policy.MaxRetries {
			return fmt.Errorf("%w: %s exhausted %d retries: %w", cferrors.ErrRemote, op, c.policy.MaxRetries, err)
		}
		attempt++
		c.recorder.IncRetry(op)
		slog.Warn("retrying remote operation",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			logfields.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.policy.Delay(attempt)):
		}
	}
}

func mapTerminal(op string, he *httpError) error {
	switch he.Status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", cferrors.ErrNotFound, op, he.URL)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (HTTP %d)", cferrors.ErrUnauthorized, op, he.Status)
	default:
		return fmt.Errorf("%w: %s: %v", cferrors.ErrRemote, op, he)
	}
}

// FetchPage retrieves a single page with its rendered body and ancestors.
func (c *Client) FetchPage(ctx context.Context, id string) (*Page, error) {
	endpoint := fmt.Sprintf("/rest/api/content/%s?expand=body.view,ancestors", url.PathEscape(id))
	var page Page
	err := c.withRetry(ctx, "fetch_page", func() error {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint)
		if err != nil {
			return err
		}
		page = Page{}
		return c.doJSON(req, &page)
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("fetched page", logfields.PageID(page.ID), logfields.Title(page.Title))
	return &page, nil
}

// ListChildren retrieves all hierarchy children of a page, transparently
// following pagination cursors. Remote ordering is preserved.
func (c *Client) ListChildren(ctx context.Context, id string) ([]Page, error) {
	var all []Page
	endpoint := fmt.Sprintf("/rest/api/content/%s/child/page?limit=%d", url.PathEscape(id), pageLimit)
	for endpoint != "" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var listing childListing
		err := c.withRetry(ctx, "list_children", func() error {
			req, err := c.newRequest(ctx, http.MethodGet, endpoint)
			if err != nil {
				return err
			}
			listing = childListing{}
			return c.doJSON(req, &listing)
		})
		if err != nil {
			return nil, err
		}
		all = append(all, listing.Results...)
		endpoint = listing.Links.Next
	}
	return all, nil
}

// DownloadAsset streams a binary resource to a local path, creating parent
// directories. Non-2xx responses after retries surface as ErrAssetUnavailable.
func (c *Client) DownloadAsset(ctx context.Context, srcURL, destination string) error {
	abs := c.AbsoluteURL(srcURL)
	err := c.withRetry(ctx, "download_asset", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request %s: %w", abs, err)
		}
		c.decorate(req)

		resp, err := c.do(req)
		if err != nil {
			c.recorder.IncRequest(metrics.ResultError)
			return fmt.Errorf("execute %s: %w", abs, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			limitedBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &httpError{
				Status:     resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				URL:        abs,
				Excerpt:    strings.ReplaceAll(string(limitedBody), "\n", " "),
			}
		}

		if err := os.MkdirAll(filepath.Dir(destination), 0o750); err != nil {
			return fmt.Errorf("create asset directory: %w", err)
		}
		f, err := os.Create(destination)
		if err != nil {
			return fmt.Errorf("create asset file: %w", err)
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			_ = f.Close()
			_ = os.Remove(destination)
			return fmt.Errorf("write asset file: %w", err)
		}
		c.recorder.IncRequest(metrics.ResultSuccess)
		return f.Close()
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", cferrors.ErrAssetUnavailable, srcURL, err)
	}
	return nil
}

// ResolveCanonicalID resolves an indirect link (short link, alias path) to
// the page ID it ultimately refers to by following redirects and extracting
// the ID from the final URL. Results, including misses, are cached for the
// lifetime of the run.
func (c *Client) ResolveCanonicalID(ctx context.Context, href string) (string, bool) {
	abs := c.AbsoluteURL(href)

	c.mu.Lock()
	if id, cached := c.resolveCache[abs]; cached {
		c.mu.Unlock()
		return id, id != ""
	}
	c.mu.Unlock()

	var id string
	err := c.withRetry(ctx, "resolve_canonical_id", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, abs, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request %s: %w", abs, err)
		}
		c.decorate(req)

		resp, err := c.do(req)
		if err != nil {
			c.recorder.IncRequest(metrics.ResultError)
			return fmt.Errorf("execute %s: %w", abs, err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 400 {
			return &httpError{
				Status:     resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				URL:        abs,
			}
		}
		c.recorder.IncRequest(metrics.ResultSuccess)
		if resp.Request != nil && resp.Request.URL != nil {
			id, _ = ExtractPageID(resp.Request.URL.String())
		}
		return nil
	})
	if err != nil {
		slog.Debug("canonical ID resolution failed", logfields.URL(href), logfields.Error(err))
		id = ""
	}

	c.mu.Lock()
	c.resolveCache[abs] = id
	c.mu.Unlock()
	return id, id != ""
}
