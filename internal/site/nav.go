package site

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/wikimirror/internal/layout"
	siteerrors "git.home.luguber.info/inful/wikimirror/internal/site/errors"
	"git.home.luguber.info/inful/wikimirror/internal/util/sets"
)

// navFile is the manifest consumed by the static site generator.
const navFile = "nav.yml"

// Node is one entry in the navigation tree: either a Leaf or a Section.
type Node interface {
	yaml.Marshaler
	pagePaths() []string
}

// Leaf is a single page entry.
type Leaf struct {
	Title string
	Path  string
}

// MarshalYAML renders the leaf as {title: path}.
func (l Leaf) MarshalYAML() (any, error) {
	return map[string]string{l.Title: l.Path}, nil
}

func (l Leaf) pagePaths() []string { return []string{l.Path} }

// Section is a titled group. When Path is set the section's own page is
// listed as its first child; label-only sections group other entries
// without a page of their own.
type Section struct {
	Title    string
	Path     string
	Children []Node
}

// MarshalYAML renders the section as {title: [own page, children...]}.
func (s Section) MarshalYAML() (any, error) {
	items := make([]any, 0, len(s.Children)+1)
	if s.Path != "" {
		items = append(items, Leaf{Title: s.Title, Path: s.Path})
	}
	for _, child := range s.Children {
		items = append(items, child)
	}
	return map[string]any{s.Title: items}, nil
}

func (s Section) pagePaths() []string {
	var paths []string
	if s.Path != "" {
		paths = append(paths, s.Path)
	}
	for _, child := range s.Children {
		paths = append(paths, child.pagePaths()...)
	}
	return paths
}

// Manifest is the serialized navigation contract.
type Manifest struct {
	SiteName string `yaml:"site_name"`
	Nav      []Node `yaml:"nav"`
}

// WriteNav builds the navigation manifest and writes it to root. The
// manifest must reference every planned page exactly once; a tree that
// fails that contract is a writer bug surfaced as ErrManifestIncomplete.
func (w *Writer) WriteNav(root string) error {
	manifest := w.BuildNav()
	if err := w.checkComplete(manifest); err != nil {
		return err
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal navigation manifest: %w", err)
	}
	return writeFile(root, navFile, string(data))
}

// BuildNav assembles the tree: Home, the hierarchy overview, nested
// hierarchy sections, and a linked-content grouping keyed by discovering
// parent.
func (w *Writer) BuildNav() Manifest {
	siteName := w.opts.SiteName
	if rootPage := w.result.Get(w.result.RootID); siteName == "" && rootPage != nil {
		siteName = rootPage.Title
	}

	nav := []Node{
		Leaf{Title: "Home", Path: layout.IndexFile},
		Leaf{Title: "Overview", Path: w.fileMap[w.result.RootID]},
	}
	nav = append(nav, w.hierarchyNodes(w.result.RootID)...)
	if linked := w.linkedNodes(); linked != nil {
		nav = append(nav, linked)
	}
	return Manifest{SiteName: siteName, Nav: nav}
}

// hierarchyNodes renders the hierarchy children of a page: children with
// children of their own become nested sections, the rest leaves. Pages
// claimed by link discovery are grouped under linked content instead.
func (w *Writer) hierarchyNodes(id string) []Node {
	page := w.result.Get(id)
	if page == nil {
		return nil
	}
	var nodes []Node
	for _, cid := range page.Children {
		child := w.result.Get(cid)
		if child == nil || child.ExpansionDepth != 0 {
			continue
		}
		path, planned := w.fileMap[cid]
		if !planned {
			continue
		}
		if grandchildren := w.hierarchyNodes(cid); len(grandchildren) > 0 {
			nodes = append(nodes, Section{Title: child.Title, Path: path, Children: grandchildren})
		} else {
			nodes = append(nodes, Leaf{Title: child.Title, Path: path})
		}
	}
	return nodes
}

// linkedNodes groups link-discovered pages under their discovering parent,
// recursively: a linked page that discovered others becomes a section
// holding them. Returns nil when the run discovered no linked pages.
func (w *Writer) linkedNodes() Node {
	discoveredBy := make(map[string][]string)
	for _, id := range w.result.Order {
		page := w.result.Get(id)
		if page.ExpansionDepth == 0 {
			continue
		}
		discoveredBy[page.DiscoveredVia] = append(discoveredBy[page.DiscoveredVia], id)
	}
	if len(discoveredBy) == 0 {
		return nil
	}

	seen := sets.New[string]()
	var groups []Node
	for _, id := range w.result.Order {
		page := w.result.Get(id)
		if page.ExpansionDepth != 0 {
			continue
		}
		targets, any := discoveredBy[id]
		if !any {
			continue
		}
		groups = append(groups, Section{
			Title:    page.Title,
			Children: w.linkedChildren(targets, discoveredBy, seen),
		})
	}
	return Section{Title: "Linked content", Children: groups}
}

func (w *Writer) linkedChildren(ids []string, discoveredBy map[string][]string, seen sets.Set[string]) []Node {
	var nodes []Node
	for _, id := range ids {
		if seen.Has(id) {
			continue
		}
		seen.Add(id)
		page := w.result.Get(id)
		path, planned := w.fileMap[id]
		if page == nil || !planned {
			continue
		}
		if targets, any := discoveredBy[id]; any {
			nodes = append(nodes, Section{
				Title:    page.Title,
				Path:     path,
				Children: w.linkedChildren(targets, discoveredBy, seen),
			})
		} else {
			nodes = append(nodes, Leaf{Title: page.Title, Path: path})
		}
	}
	return nodes
}

// checkComplete verifies the structural contract: every planned page
// appears in the manifest exactly once.
func (w *Writer) checkComplete(m Manifest) error {
	counts := make(map[string]int)
	for _, node := range m.Nav {
		for _, p := range node.pagePaths() {
			counts[p]++
		}
	}
	for id, path := range w.fileMap {
		switch counts[path] {
		case 1:
		case 0:
			return fmt.Errorf("%w: page %s (%s) missing", siteerrors.ErrManifestIncomplete, id, path)
		default:
			return fmt.Errorf("%w: page %s (%s) listed %d times", siteerrors.ErrManifestIncomplete, id, path, counts[path])
		}
	}
	return nil
}
