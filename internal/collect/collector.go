// Package collect walks the remote page graph breadth-first and produces the
// immutable page set every downstream stage consumes. Hierarchy children are
// traversed freely; hyperlink targets are followed up to a configured
// expansion depth.
package collect

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/wikimirror/internal/confluence"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
	"git.home.luguber.info/inful/wikimirror/internal/util/sets"
)

// Source is the slice of the remote client the collector depends on.
type Source interface {
	FetchPage(ctx context.Context, id string) (*confluence.Page, error)
	ListChildren(ctx context.Context, id string) ([]confluence.Page, error)
	ResolveCanonicalID(ctx context.Context, href string) (string, bool)
	BaseURL() string
}

// Options tunes traversal behavior.
type Options struct {
	// FollowLinks enables hyperlink expansion beyond the hierarchy.
	FollowLinks bool

	// MaxExpansionDepth bounds how many link hops away from the hierarchy
	// a page may be and still be collected. Zero disables expansion.
	MaxExpansionDepth int
}

// Collector drives the traversal. Safe for one Collect call at a time.
type Collector struct {
	source Source
	opts   Options
}

// New creates a Collector over the given source.
func New(source Source, opts Options) *Collector {
	return &Collector{source: source, opts: opts}
}

type queueItem struct {
	id    string
	depth int
}

// Collect performs a breadth-first traversal seeded at rootID. Hierarchy
// children inherit their parent's expansion depth; link targets are enqueued
// one level deeper. A page is fetched exactly once no matter how many edges
// reach it, and the first edge to claim a link target fixes its
// discoveredVia attribution.
//
// A page fetch or child listing failure aborts the traversal: a page already
// committed to the graph that cannot be fetched leaves a hole that cannot be
// published safely.
func (c *Collector) Collect(ctx context.Context, rootID string) (*Result, error) {
	result := &Result{
		RootID: rootID,
		Pages:  make(map[string]*Page),
	}
	queue := []queueItem{{id: rootID, depth: 0}}
	visited := sets.New[string]()
	discoveredVia := make(map[string]string)

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if visited.Has(item.id) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited.Add(item.id)

		remote, err := c.source.FetchPage(ctx, item.id)
		if err != nil {
			return nil, fmt.Errorf("fetch page %s: %w", item.id, err)
		}

		page := &Page{
			ID:             remote.ID,
			Title:          remote.Title,
			Content:        remote.Body.View.Value,
			ExpansionDepth: item.depth,
		}
		for _, ancestor := range remote.Ancestors {
			page.Ancestors = append(page.Ancestors, Crumb{ID: ancestor.ID, Title: ancestor.Title})
		}
		if item.depth > 0 {
			page.DiscoveredVia = discoveredVia[item.id]
		}
		result.Pages[item.id] = page
		result.Order = append(result.Order, item.id)
		slog.Debug("collected page",
			logfields.PageID(page.ID),
			logfields.Title(page.Title),
			logfields.Depth(item.depth))

		children, err := c.source.ListChildren(ctx, item.id)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", item.id, err)
		}
		for _, child := range children {
			page.Children = append(page.Children, child.ID)
			if !visited.Has(child.ID) {
				queue = append(queue, queueItem{id: child.ID, depth: item.depth})
			}
		}

		if !c.opts.FollowLinks || item.depth >= c.opts.MaxExpansionDepth {
			continue
		}
		for _, target := range c.linkTargets(ctx, page.Content) {
			if visited.Has(target) {
				continue
			}
			if _, claimed := discoveredVia[target]; !claimed {
				discoveredVia[target] = item.id
			}
			queue = append(queue, queueItem{id: target, depth: item.depth + 1})
		}
	}

	slog.Info("collection complete",
		logfields.Pages(len(result.Pages)),
		logfields.PageID(rootID))
	return result, nil
}

// linkTargets scans page HTML for hyperlinks that reference other pages in
// the same collection and returns their IDs, deduplicated, in document
// order. Links that cannot be resolved to an ID are skipped here; the
// resolver later leaves them unchanged in the emitted document.
func (c *Collector) linkTargets(ctx context.Context, content string) []string {
	base := c.source.BaseURL()
	var targets []string
	seen := sets.New[string]()
	for _, href := range ExtractLinks(content) {
		if confluence.IsExternal(href, base) {
			continue
		}
		id, ok := confluence.ExtractPageID(href)
		if !ok && confluence.LooksIndirect(href) {
			id, ok = c.source.ResolveCanonicalID(ctx, href)
		}
		if !ok || id == "" || seen.Has(id) {
			continue
		}
		seen.Add(id)
		targets = append(targets, id)
	}
	return targets
}
