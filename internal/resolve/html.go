package resolve

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// walk visits every node in document order.
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

// elementsByTag returns all elements with the given tag in document order.
func elementsByTag(doc *html.Node, tag string) []*html.Node {
	var nodes []*html.Node
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			nodes = append(nodes, n)
		}
	})
	return nodes
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// normalizeHeadings keeps only the first top-level heading: every h1 after
// the first is demoted to h2 so downstream conversion sees one document
// title.
func normalizeHeadings(doc *html.Node) {
	first := true
	for _, h := range elementsByTag(doc, "h1") {
		if first {
			first = false
			continue
		}
		h.Data = "h2"
		h.DataAtom = atom.H2
	}
}

// stripStyles drops inline style attributes everywhere; they do not survive
// Markdown conversion meaningfully.
func stripStyles(doc *html.Node) {
	walk(doc, func(n *html.Node) {
		if n.Type == html.ElementNode {
			removeAttr(n, "style")
		}
	})
}
