// Package audit scans an emitted document tree for dangling references.
// Every internal link and asset reference must resolve to a file the run
// wrote. A single dangling reference fails the audit, which blocks both
// promotion of the staging tree and publishing.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/wikimirror/internal/logfields"
	"git.home.luguber.info/inful/wikimirror/internal/markdown"
	"git.home.luguber.info/inful/wikimirror/internal/util/sets"
)

// Violation is one dangling reference: a document points at something the
// run did not write.
type Violation struct {
	File      string `json:"file"`      // document, relative to the audited root
	Reference string `json:"reference"` // the reference as written
	Line      int    `json:"line,omitempty"`
	Detail    string `json:"detail"`
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("%s:%d: %s (%s)", v.File, v.Line, v.Reference, v.Detail)
	}
	return fmt.Sprintf("%s: %s (%s)", v.File, v.Reference, v.Detail)
}

// Report summarizes one audit pass.
type Report struct {
	ScannedDocs  int         `json:"scanned_docs"`
	CheckedRefs  int         `json:"checked_refs"`
	ExternalRefs int         `json:"external_refs"`
	Violations   []Violation `json:"violations,omitempty"`
}

// Failed reports whether the audit found violations.
func (r *Report) Failed() bool { return len(r.Violations) > 0 }

// Options configures an audit pass.
type Options struct {
	// CheckExternal enables HTTP verification of absolute URLs. Internal
	// references are always verified.
	CheckExternal   bool
	ExternalTimeout time.Duration

	// NATSURL, when set, backs the external check cache with a JetStream
	// KV bucket shared between runs. Without it the cache lives for one
	// pass only.
	NATSURL     string
	CacheBucket string

	Concurrency int
}

// Auditor verifies one written tree.
type Auditor struct {
	root string
	opts Options
}

func New(root string, opts Options) *Auditor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 10 * time.Second
	}
	return &Auditor{root: root, opts: opts}
}

// Run walks the tree and verifies every reference in every document.
// I/O failures abort the pass; dangling references do not, they are the
// report's payload.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	files, docs, err := a.collectFiles()
	if err != nil {
		return nil, err
	}

	report := &Report{}
	var externals []externalRef
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(a.root, filepath.FromSlash(doc)))
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", doc, err)
		}
		report.ScannedDocs++
		externals = append(externals, a.scanDocument(doc, data, files, report)...)
	}

	if a.opts.CheckExternal && len(externals) > 0 {
		if err := a.checkExternals(ctx, externals, report); err != nil {
			return nil, err
		}
	}

	sortViolations(report.Violations)
	slog.Info("audit finished",
		logfields.Pages(report.ScannedDocs),
		logfields.Count(report.CheckedRefs),
		slog.Int("external_refs", report.ExternalRefs),
		slog.Int("violations", len(report.Violations)))
	return report, nil
}

// collectFiles returns the set of all written files and the list of
// documents to scan, both as slash-separated paths relative to the root.
func (a *Auditor) collectFiles() (sets.Set[string], []string, error) {
	files := sets.New[string]()
	var docs []string
	err := filepath.WalkDir(a.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files.Add(rel)
		if strings.HasSuffix(rel, ".md") {
			docs = append(docs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk output tree: %w", err)
	}
	sort.Strings(docs)
	return files, docs, nil
}

// scanDocument checks every reference in one document against the written
// file set and returns the absolute URLs for the optional external pass.
// Each distinct reference is checked once per document.
func (a *Auditor) scanDocument(doc string, data []byte, files sets.Set[string], report *Report) []externalRef {
	refs := make([]string, 0, 16)
	for _, l := range markdown.ExtractLinks(data) {
		refs = append(refs, l.Destination)
	}
	refs = append(refs, htmlRefs(data)...)

	var externals []externalRef
	seen := sets.New[string]()
	for _, ref := range refs {
		if seen.Has(ref) {
			continue
		}
		seen.Add(ref)
		switch classify(ref) {
		case refSkip:
		case refExternal:
			report.ExternalRefs++
			externals = append(externals, externalRef{File: doc, URL: ref, Line: findLine(data, ref)})
		case refInternal:
			report.CheckedRefs++
			if !resolves(doc, ref, files) {
				report.Violations = append(report.Violations, Violation{
					File:      doc,
					Reference: ref,
					Line:      findLine(data, ref),
					Detail:    "no written file matches",
				})
			}
		}
	}
	return externals
}

type refClass int

const (
	refSkip refClass = iota
	refInternal
	refExternal
)

// classify sorts a reference into internal (must resolve against the
// tree), external (verified only when enabled), or skippable (anchors and
// non-HTTP schemes).
func classify(ref string) refClass {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return refSkip
	}
	u, err := url.Parse(ref)
	if err != nil {
		// Not parseable as a URL; resolve it literally against the tree.
		return refInternal
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		return refExternal
	case u.Scheme != "":
		return refSkip
	case u.Host != "":
		return refExternal
	}
	return refInternal
}

// resolves reports whether a relative reference addresses a written file.
// Pretty URLs with a trailing slash resolve against their page source.
func resolves(doc, ref string, files sets.Set[string]) bool {
	target := ref
	if i := strings.IndexAny(target, "#?"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		// A fragment or query on the page itself.
		return true
	}
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}

	var full string
	if strings.HasPrefix(target, "/") {
		full = path.Clean(strings.TrimPrefix(target, "/"))
	} else {
		full = path.Clean(path.Join(path.Dir(doc), target))
	}
	if full == ".." || strings.HasPrefix(full, "../") {
		// Escapes the output tree.
		return false
	}

	if files.Has(full) {
		return true
	}
	if strings.HasSuffix(target, "/") {
		return files.Has(full+".md") || files.Has(path.Join(full, "index.md"))
	}
	return false
}

// htmlRefs catches references in raw HTML that the Markdown parser treats
// as opaque: hub tiles on the landing page and any markup that survived
// conversion. Code blocks are blanked first so sample markup is not read
// as real markup.
func htmlRefs(data []byte) []string {
	doc, err := html.Parse(bytes.NewReader(markdown.StripCode(data)))
	if err != nil {
		return nil
	}
	var refs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if href := attrValue(n, "href"); href != "" {
					refs = append(refs, href)
				}
			case "img":
				if src := attrValue(n, "src"); src != "" {
					refs = append(refs, src)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// findLine locates the first occurrence of a reference for reporting.
// Returns 0 when the raw bytes are not found (entity-encoded markup).
func findLine(data []byte, ref string) int {
	i := bytes.Index(data, []byte(ref))
	if i < 0 {
		return 0
	}
	return 1 + bytes.Count(data[:i], []byte{'\n'})
}

func sortViolations(violations []Violation) {
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Reference < violations[j].Reference
	})
}
