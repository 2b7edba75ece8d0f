package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/wikimirror/internal/logfields"
)

const userAgent = "wikimirror-audit/1.0"

// Result cache lifetimes. Working links are rechecked rarely; failures
// sooner, so a fixed remote clears the violation on the next run.
const (
	cacheTTLValid  = 24 * time.Hour
	cacheTTLFailed = time.Hour
)

type externalRef struct {
	File string
	URL  string
	Line int
}

type cacheEntry struct {
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	Valid     bool      `json:"valid"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type linkCache interface {
	Get(ctx context.Context, url string) (*cacheEntry, error)
	Put(ctx context.Context, entry *cacheEntry) error
	Close() error
}

func cacheFresh(e *cacheEntry) bool {
	if e == nil {
		return false
	}
	ttl := cacheTTLFailed
	if e.Valid {
		ttl = cacheTTLValid
	}
	return time.Since(e.CheckedAt) < ttl
}

// checkExternals verifies absolute URLs with bounded concurrency. Every
// URL is checked once; each referencing document gets its own violation
// when the check fails.
func (a *Auditor) checkExternals(ctx context.Context, refs []externalRef, report *Report) error {
	cache := a.openCache(ctx)
	defer func() {
		if err := cache.Close(); err != nil {
			slog.Debug("closing link cache", logfields.Error(err))
		}
	}()

	checker := &externalChecker{
		client: &http.Client{Timeout: a.opts.ExternalTimeout},
		cache:  cache,
	}

	byURL := make(map[string][]externalRef)
	var order []string
	for _, ref := range refs {
		if _, dup := byURL[ref.URL]; !dup {
			order = append(order, ref.URL)
		}
		byURL[ref.URL] = append(byURL[ref.URL], ref)
	}

	results := make(map[string]*cacheEntry, len(order))
	var mu sync.Mutex
	sem := make(chan struct{}, a.opts.Concurrency)
	var wg sync.WaitGroup
	for _, u := range order {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }()
			entry := checker.check(ctx, u)
			mu.Lock()
			results[u] = entry
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	for _, u := range order {
		entry := results[u]
		if entry == nil || entry.Valid {
			continue
		}
		for _, ref := range byURL[u] {
			report.Violations = append(report.Violations, Violation{
				File:      ref.File,
				Reference: ref.URL,
				Line:      ref.Line,
				Detail:    entry.Error,
			})
		}
	}
	return nil
}

// openCache prefers the shared NATS KV bucket and falls back to a
// per-pass in-memory cache when it is not configured or not reachable.
func (a *Auditor) openCache(ctx context.Context) linkCache {
	if a.opts.NATSURL == "" {
		return newMemoryCache()
	}
	cache, err := newNATSCache(ctx, a.opts.NATSURL, a.opts.CacheBucket)
	if err != nil {
		slog.Warn("link check cache unavailable, falling back to in-memory",
			logfields.URL(a.opts.NATSURL), logfields.Error(err))
		return newMemoryCache()
	}
	return cache
}

type externalChecker struct {
	client *http.Client
	cache  linkCache
}

func (c *externalChecker) check(ctx context.Context, rawURL string) *cacheEntry {
	if cached, err := c.cache.Get(ctx, rawURL); err == nil && cacheFresh(cached) {
		return cached
	}

	entry := &cacheEntry{URL: rawURL, CheckedAt: time.Now()}
	status, err := c.head(ctx, rawURL)
	entry.Status = status
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Valid = true
	}

	if err := c.cache.Put(ctx, entry); err != nil {
		slog.Debug("could not cache link check", logfields.URL(rawURL), logfields.Error(err))
	}
	return entry
}

func (c *externalChecker) head(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	// Auth challenges mean the URL exists; it just wants credentials
	// we do not have.
	if authStatus(resp.StatusCode) {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func authStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusMethodNotAllowed:
		return true
	}
	return false
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*cacheEntry)}
}

func (m *memoryCache) Get(_ context.Context, url string) (*cacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[url], nil
}

func (m *memoryCache) Put(_ context.Context, entry *cacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.URL] = entry
	return nil
}

func (m *memoryCache) Close() error { return nil }
