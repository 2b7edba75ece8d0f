// Package site emits the final document tree: one Markdown file per page,
// a landing page with hub tiles, and the navigation manifest the static
// site generator consumes. All writes land in a staging directory that
// atomically replaces the previous output on success.
package site

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/layout"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
	"git.home.luguber.info/inful/wikimirror/internal/resolve"
	siteerrors "git.home.luguber.info/inful/wikimirror/internal/site/errors"
)

// Options configures document composition.
type Options struct {
	// SiteName labels the landing page and the manifest.
	SiteName string

	// Numbering prefixes page titles with their hierarchy slot (N for
	// top-level leaves, N.0 / N.i for sections and their children).
	Numbering bool

	// Breadcrumbs inserts a linked trail line under each page title.
	Breadcrumbs bool
}

// Writer composes and writes every planned document.
type Writer struct {
	result    *collect.Result
	fileMap   layout.FileMap
	opts      Options
	numbering map[string]string
}

// New creates a Writer over a collection result and its layout plan.
func New(result *collect.Result, fileMap layout.FileMap, opts Options) *Writer {
	w := &Writer{
		result:  result,
		fileMap: fileMap,
		opts:    opts,
	}
	if opts.Numbering {
		w.numbering = computeNumbering(result)
	}
	return w
}

// WritePages writes one composed document per planned page under root.
// Every page in the plan must have a resolved document.
func (w *Writer) WritePages(root string, docs map[string]*resolve.Document) error {
	for _, id := range w.result.Order {
		rel, planned := w.fileMap[id]
		if !planned {
			continue
		}
		doc, ok := docs[id]
		if !ok {
			return fmt.Errorf("%w: %s", siteerrors.ErrMissingDocument, id)
		}
		page := w.result.Get(id)
		composed := w.compose(page, doc.Markdown)
		if err := writeFile(root, rel, composed); err != nil {
			return fmt.Errorf("write page %s: %w", id, err)
		}
		slog.Debug("wrote page", logfields.PageID(id), logfields.Path(rel))
	}
	return nil
}

// compose assembles the final document: title header, optional breadcrumb
// trail, then the converted body with its own leading title removed.
func (w *Writer) compose(page *collect.Page, body string) string {
	var b strings.Builder
	b.WriteString("# " + w.title(page) + "\n")
	if w.opts.Breadcrumbs {
		if trail := w.breadcrumb(page); trail != "" {
			b.WriteString("\n" + trail + "\n")
		}
	}
	if rest := stripFirstH1(body); rest != "" {
		b.WriteString("\n" + rest)
	}
	out := b.String()
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}

var numberPrefix = regexp.MustCompile(`^\d+(?:\.\d+)*\s+`)

// title returns the page title, slot-numbered when numbering is enabled and
// the title does not already carry a number.
func (w *Writer) title(page *collect.Page) string {
	title := page.Title
	if title == "" {
		title = "Page " + page.ID
	}
	prefix, ok := w.numbering[page.ID]
	if !ok || numberPrefix.MatchString(strings.TrimSpace(title)) {
		return title
	}
	return prefix + " " + title
}

// computeNumbering assigns hierarchy slot numbers two levels deep: the
// root's i-th child gets "i.0" when it has children of its own ("i" when it
// is a leaf), and its j-th child gets "i.j".
func computeNumbering(result *collect.Result) map[string]string {
	nums := make(map[string]string)
	root := result.Get(result.RootID)
	if root == nil {
		return nums
	}
	for i, cid := range root.Children {
		child := result.Get(cid)
		if child == nil {
			continue
		}
		if len(child.Children) == 0 {
			nums[cid] = fmt.Sprintf("%d", i+1)
			continue
		}
		nums[cid] = fmt.Sprintf("%d.0", i+1)
		for j, gcid := range child.Children {
			nums[gcid] = fmt.Sprintf("%d.%d", i+1, j+1)
		}
	}
	return nums
}

// breadcrumb renders the trail as an italic line of links. Crumbs without a
// planned file fall back to plain text.
func (w *Writer) breadcrumb(page *collect.Page) string {
	trail := resolve.Trail(w.result, page)
	if len(trail) == 0 {
		return ""
	}
	own := w.fileMap[page.ID]
	parts := make([]string, 0, len(trail))
	for _, crumb := range trail {
		if target, ok := w.fileMap[crumb.ID]; ok {
			parts = append(parts, fmt.Sprintf("[%s](%s)", crumb.Title, layout.Relative(own, target)))
		} else {
			parts = append(parts, crumb.Title)
		}
	}
	return "*" + strings.Join(parts, " > ") + "*"
}

var firstH1 = regexp.MustCompile(`(?m)^#\s+.*$`)

// stripFirstH1 drops the first top-level heading from a Markdown body; the
// composed header replaces it.
func stripFirstH1(md string) string {
	loc := firstH1.FindStringIndex(md)
	if loc == nil {
		return md
	}
	return strings.TrimLeft(md[:loc[0]]+md[loc[1]:], "\n")
}

// writeFile writes content to root/rel, creating parent directories.
func writeFile(root, rel, content string) error {
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}
