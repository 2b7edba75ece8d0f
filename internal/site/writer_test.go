package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/layout"
	"git.home.luguber.info/inful/wikimirror/internal/resolve"
	siteerrors "git.home.luguber.info/inful/wikimirror/internal/site/errors"
)

// testResult builds a small collection: a root with a leaf child and a hub
// child whose own child was also reached, plus one link-discovered page.
func testResult() *collect.Result {
	pages := map[string]*collect.Page{
		"1": {ID: "1", Title: "Team Handbook", Children: []string{"2", "11"},
			Content: "<p>The handbook collects everything the team maintains.</p>"},
		"2": {ID: "2", Title: "Getting Started",
			Content:   "<p>Install the toolchain and request access.</p>",
			Ancestors: []collect.Crumb{{ID: "1", Title: "Team Handbook"}}},
		"11": {ID: "11", Title: "Operations", Children: []string{"12"},
			Content:   "<p>Operational guides and playbooks for the on-call rotation.</p>",
			Ancestors: []collect.Crumb{{ID: "1", Title: "Team Handbook"}}},
		"12": {ID: "12", Title: "Runbooks",
			Content:   "<p>Step by step repair instructions.</p>",
			Ancestors: []collect.Crumb{{ID: "1", Title: "Team Handbook"}, {ID: "11", Title: "Operations"}}},
		"30": {ID: "30", Title: "Incident Template", ExpansionDepth: 1, DiscoveredVia: "11",
			Content: "<p>Copy this template when opening an incident.</p>"},
	}
	return &collect.Result{
		RootID: "1",
		Pages:  pages,
		Order:  []string{"1", "2", "11", "12", "30"},
	}
}

func testDocs(result *collect.Result) map[string]*resolve.Document {
	docs := make(map[string]*resolve.Document, len(result.Pages))
	for id, page := range result.Pages {
		docs[id] = &resolve.Document{Markdown: "# " + page.Title + "\n\nBody of " + page.Title + ".\n"}
	}
	return docs
}

func TestWritePages(t *testing.T) {
	result := testResult()
	fm := layout.Plan(result)
	w := New(result, fm, Options{SiteName: "Team Handbook", Breadcrumbs: true})

	root := t.TempDir()
	require.NoError(t, w.WritePages(root, testDocs(result)))

	for id, rel := range fm {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err, "page %s missing file %s", id, rel)
	}

	overview, err := os.ReadFile(filepath.Join(root, "overview.md"))
	require.NoError(t, err)
	assert.Contains(t, string(overview), "# Team Handbook\n")
	assert.Contains(t, string(overview), "Body of Team Handbook.")
}

func TestWritePagesMissingDocument(t *testing.T) {
	result := testResult()
	fm := layout.Plan(result)
	w := New(result, fm, Options{})

	docs := testDocs(result)
	delete(docs, "12")

	err := w.WritePages(t.TempDir(), docs)
	require.Error(t, err)
	assert.ErrorIs(t, err, siteerrors.ErrMissingDocument)
}

func TestComposeBreadcrumb(t *testing.T) {
	result := testResult()
	fm := layout.Plan(result)
	w := New(result, fm, Options{Breadcrumbs: true})

	composed := w.compose(result.Get("12"), "# Runbooks\n\nContents.\n")
	assert.Contains(t, composed, "*[Operations](operations-11.md)*")

	linked := w.compose(result.Get("30"), "# Incident Template\n\nContents.\n")
	assert.Contains(t, linked, "*[Operations](../operations-11.md)*")
}

func TestComposeBreadcrumbDisabled(t *testing.T) {
	result := testResult()
	w := New(result, layout.Plan(result), Options{})
	composed := w.compose(result.Get("12"), "body\n")
	assert.NotContains(t, composed, "[Operations]")
}

func TestComposeStripsBodyTitle(t *testing.T) {
	result := testResult()
	w := New(result, layout.Plan(result), Options{})

	composed := w.compose(result.Get("2"), "# Getting Started\n\nReal content.\n")
	assert.Equal(t, 1, countOccurrences(composed, "# Getting Started"))
	assert.Contains(t, composed, "Real content.")
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func TestNumbering(t *testing.T) {
	result := testResult()
	fm := layout.Plan(result)
	w := New(result, fm, Options{Numbering: true})

	tests := []struct {
		id   string
		want string
	}{
		{"2", "1 Getting Started"},  // first child, leaf
		{"11", "2.0 Operations"},    // second child, hub
		{"12", "2.1 Runbooks"},      // hub's first child
		{"30", "Incident Template"}, // linked pages are never numbered
		{"1", "Team Handbook"},      // root keeps its own title
	}
	for _, tt := range tests {
		if got := w.title(result.Get(tt.id)); got != tt.want {
			t.Errorf("title(%s) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestNumberingSkipsPreNumberedTitles(t *testing.T) {
	result := testResult()
	result.Get("2").Title = "3.5 Already Numbered"
	w := New(result, layout.Plan(result), Options{Numbering: true})
	assert.Equal(t, "3.5 Already Numbered", w.title(result.Get("2")))
}

func TestStripFirstH1(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"leading title", "# Title\n\nBody.\n", "Body.\n"},
		{"no title", "Just text.\n", "Just text.\n"},
		{"keeps later headings", "# One\n\n## Two\n", "## Two\n"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFirstH1(tt.input); got != tt.want {
				t.Errorf("stripFirstH1(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
