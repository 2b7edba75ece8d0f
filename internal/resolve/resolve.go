// Package resolve transforms a collected page's raw HTML into the Markdown
// document the writer emits: headings are normalized, inline styles
// stripped, asset references downloaded and repointed, and page links
// rewritten to relative paths. A single bad reference never sinks the page;
// per-reference outcomes accumulate into Stats for the run summary.
package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/confluence"
	"git.home.luguber.info/inful/wikimirror/internal/layout"
)

// Remote is the slice of the client the resolver needs for downloads and
// indirect link resolution.
type Remote interface {
	DownloadAsset(ctx context.Context, src, destination string) error
	ResolveCanonicalID(ctx context.Context, href string) (string, bool)
	BaseURL() string
}

// Outcome classifies what happened to one reference during resolution.
type Outcome int

const (
	// OutcomeRewritten means the reference now points at a local path.
	OutcomeRewritten Outcome = iota
	// OutcomeUnchanged means the reference was left as found, either
	// because it is external or because no local target exists for it.
	OutcomeUnchanged
	// OutcomeAssetFailed means the asset could not be fetched and the
	// original reference was kept.
	OutcomeAssetFailed
)

// Stats accumulates per-reference outcomes for one page.
type Stats struct {
	LinksRewritten   int
	LinksUnchanged   int
	AssetsDownloaded int
	AssetsReused     int
	AssetsFailed     int
}

func (s *Stats) record(o Outcome) {
	switch o {
	case OutcomeRewritten:
		s.LinksRewritten++
	case OutcomeUnchanged:
		s.LinksUnchanged++
	case OutcomeAssetFailed:
		s.AssetsFailed++
	}
}

// Add folds another page's stats into s.
func (s *Stats) Add(other Stats) {
	s.LinksRewritten += other.LinksRewritten
	s.LinksUnchanged += other.LinksUnchanged
	s.AssetsDownloaded += other.AssetsDownloaded
	s.AssetsReused += other.AssetsReused
	s.AssetsFailed += other.AssetsFailed
}

// Document is the resolved form of one page, ready for the writer.
type Document struct {
	Markdown string
	Stats    Stats
}

// Resolver rewrites page content against a fixed layout plan. The
// downloaded set is shared across pages for the lifetime of a run so each
// asset destination is fetched at most once; it is never persisted.
type Resolver struct {
	remote           Remote
	fileMap          layout.FileMap
	outDir           string
	assetConcurrency int

	mu         sync.Mutex
	downloaded map[string]bool
}

// Options configures a Resolver.
type Options struct {
	// OutDir is the site root all planned paths are relative to.
	OutDir string

	// AssetConcurrency bounds parallel asset downloads within one page.
	// Values below one mean sequential.
	AssetConcurrency int
}

// New creates a Resolver for one run.
func New(remote Remote, fileMap layout.FileMap, opts Options) *Resolver {
	return &Resolver{
		remote:           remote,
		fileMap:          fileMap,
		outDir:           opts.OutDir,
		assetConcurrency: opts.AssetConcurrency,
		downloaded:       make(map[string]bool),
	}
}

// ResolvePage runs the full per-page transform and converts the result to
// Markdown. The conversion itself failing is fatal for the run: a page that
// cannot be emitted leaves a hole in the published tree.
func (r *Resolver) ResolvePage(ctx context.Context, page *collect.Page) (*Document, error) {
	doc, err := html.Parse(strings.NewReader(page.Content))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", page.ID, err)
	}

	normalizeHeadings(doc)
	stripStyles(doc)

	var stats Stats
	r.rewriteImages(ctx, doc, page, &stats)
	r.rewriteLinks(ctx, doc, page, &stats)

	markdown, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		return nil, fmt.Errorf("convert page %s: %w", page.ID, err)
	}
	body := strings.TrimSpace(string(markdown))
	if body != "" {
		body += "\n"
	}
	return &Document{Markdown: body, Stats: stats}, nil
}

// rewriteLinks repoints same-collection hyperlinks at their planned local
// files, preserving fragments. External links, mail links, and in-page
// anchors pass through untouched; links whose target is not in the plan are
// left as found.
func (r *Resolver) rewriteLinks(ctx context.Context, doc *html.Node, page *collect.Page, stats *Stats) {
	base := r.remote.BaseURL()
	pagePath := r.fileMap[page.ID]

	for _, a := range elementsByTag(doc, "a") {
		href := attrValue(a, "href")
		if href == "" || confluence.IsExternal(href, base) {
			continue
		}

		fragment := ""
		if idx := strings.Index(href, "#"); idx >= 0 {
			fragment = href[idx:]
		}

		id, ok := confluence.ExtractPageID(href)
		if !ok && confluence.LooksIndirect(href) {
			id, ok = r.remote.ResolveCanonicalID(ctx, href)
		}
		if !ok {
			stats.record(OutcomeUnchanged)
			continue
		}
		target, planned := r.fileMap[id]
		if !planned {
			stats.record(OutcomeUnchanged)
			continue
		}

		setAttr(a, "href", layout.Relative(pagePath, target)+fragment)
		stats.record(OutcomeRewritten)
	}
}

// destination converts a site-relative slash path into the absolute
// filesystem location under the output root.
func (r *Resolver) destination(rel string) string {
	return filepath.Join(r.outDir, filepath.FromSlash(rel))
}
