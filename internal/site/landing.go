package site

import (
	"fmt"
	htmlesc "html"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/wikimirror/internal/layout"
)

// descriptionLimit bounds hub tile descriptions in runes.
const descriptionLimit = 160

// WriteLanding generates the landing page: a tile for the hierarchy
// overview plus one tile per hub (an immediate child of the root that has
// children of its own), each linking to the page's planned file with a
// short description lifted from its content.
func (w *Writer) WriteLanding(root string) error {
	rootPage := w.result.Get(w.result.RootID)
	if rootPage == nil {
		return fmt.Errorf("root page %s missing from collection", w.result.RootID)
	}
	siteName := w.opts.SiteName
	if siteName == "" {
		siteName = rootPage.Title
	}

	var tiles []string
	if len(rootPage.Children) > 0 {
		tiles = append(tiles, tile(w.fileMap[rootPage.ID], siteName, firstParagraph(rootPage.Content)))
	}
	for _, cid := range rootPage.Children {
		child := w.result.Get(cid)
		if child == nil || len(child.Children) == 0 {
			continue
		}
		path, planned := w.fileMap[cid]
		if !planned {
			continue
		}
		tiles = append(tiles, tile(path, child.Title, firstParagraph(child.Content)))
	}

	var b strings.Builder
	b.WriteString("# " + siteName + "\n\n")
	b.WriteString("Welcome. Choose a category to get started:\n\n")
	b.WriteString("<div class=\"category-grid\">\n")
	b.WriteString(strings.Join(tiles, "\n"))
	b.WriteString("\n</div>\n")

	return writeFile(root, layout.IndexFile, b.String())
}

func tile(href, title, desc string) string {
	return fmt.Sprintf(
		"<a class=\"category-card\" href=%q>\n"+
			"  <div class=\"card-title\">%s</div>\n"+
			"  <div class=\"card-desc\">%s</div>\n"+
			"</a>",
		href, htmlesc.EscapeString(title), htmlesc.EscapeString(desc))
}

// firstParagraph extracts the first meaningful text block from page HTML,
// trimmed to the description limit.
func firstParagraph(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}
	candidates := collectCandidates(doc, 10)
	for _, n := range candidates {
		text := strings.Join(strings.Fields(nodeText(n)), " ")
		if len([]rune(text)) >= 8 {
			return truncate(text, descriptionLimit)
		}
	}
	return ""
}

// collectCandidates gathers the first few paragraph-like elements in
// document order.
func collectCandidates(doc *html.Node, limit int) []*html.Node {
	var nodes []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(nodes) >= limit {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "p", "li", "h2", "h3":
				nodes = append(nodes, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return nodes
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
		b.WriteString(" ")
	}
	return b.String()
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "…"
}

// Hubs returns the IDs of the root's immediate children that have children
// of their own, in hierarchy order.
func (w *Writer) Hubs() []string {
	rootPage := w.result.Get(w.result.RootID)
	if rootPage == nil {
		return nil
	}
	var hubs []string
	for _, cid := range rootPage.Children {
		if child := w.result.Get(cid); child != nil && len(child.Children) > 0 {
			hubs = append(hubs, cid)
		}
	}
	return hubs
}
