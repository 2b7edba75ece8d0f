// Package layout derives the output location of every collected page and
// asset. The mapping is computed once after collection and is immutable:
// both the resolver (link rewriting) and the writer consume the same plan.
package layout

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
)

const (
	// OverviewFile is the fixed output name of the hierarchy root page.
	OverviewFile = "overview.md"

	// IndexFile is the generated landing page at the site root.
	IndexFile = "index.md"

	// LinkedDir namespaces pages that were discovered through hyperlinks
	// rather than the hierarchy.
	LinkedDir = "linked-content"

	// AssetsDir namespaces downloaded binary assets, one subdirectory per
	// owning page.
	AssetsDir = "assets"

	// Ext is the extension of every emitted document.
	Ext = ".md"
)

// FileMap maps page ID to an output path relative to the site root. Paths
// always use forward slashes.
type FileMap map[string]string

// Plan computes the output path of every page in the collection result.
// The plan depends only on title, ID, and expansion depth, so it is
// deterministic for a given collection.
func Plan(result *collect.Result) FileMap {
	fm := make(FileMap, len(result.Pages))
	for id, page := range result.Pages {
		fm[id] = PagePath(result.RootID, page)
	}
	return fm
}

// PagePath returns the output path for a single page. The hierarchy root
// gets the fixed overview name; other hierarchy pages sit flat at the top
// level as slug-id files (the ID disambiguates title collisions); pages
// reached through links live under the linked-content namespace, nested one
// level further per expansion depth beyond the first.
func PagePath(rootID string, page *collect.Page) string {
	if page.ID == rootID {
		return OverviewFile
	}
	name := fmt.Sprintf("%s-%s%s", Slug(page.Title), page.ID, Ext)
	switch {
	case page.ExpansionDepth <= 0:
		return name
	case page.ExpansionDepth == 1:
		return path.Join(LinkedDir, name)
	default:
		return path.Join(LinkedDir, fmt.Sprintf("depth-%d", page.ExpansionDepth), name)
	}
}

// AssetPath returns the destination of a downloaded asset relative to the
// site root: assets/<ownerID>/<sanitized filename>. The same source
// filename under the same owner always maps to the same destination.
func AssetPath(ownerID, src string) string {
	return path.Join(AssetsDir, ownerID, AssetName(src))
}

// AssetName derives a local filename from an asset source URL: the query
// string and fragment are dropped, percent-escapes decoded, and everything
// but the last path element discarded. Sources with no usable name fall
// back to "asset".
func AssetName(src string) string {
	clean := src
	if idx := strings.IndexAny(clean, "?#"); idx >= 0 {
		clean = clean[:idx]
	}
	if unescaped, err := url.PathUnescape(clean); err == nil {
		clean = unescaped
	}
	if clean == "" || strings.HasSuffix(clean, "/") {
		return "asset"
	}
	name := path.Base(clean)
	if name == "." || name == "/" {
		return "asset"
	}
	return name
}

// Relative computes the path of target as referenced from the document at
// from; both are site-root-relative slash paths.
func Relative(from, target string) string {
	rel, err := filepath.Rel(path.Dir(from), target)
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
