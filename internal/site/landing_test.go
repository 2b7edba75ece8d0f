package site

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/layout"
)

func writeLanding(t *testing.T, result *collect.Result, opts Options) string {
	t.Helper()
	w := New(result, layout.Plan(result), opts)
	root := t.TempDir()
	require.NoError(t, w.WriteLanding(root))
	data, err := os.ReadFile(filepath.Join(root, layout.IndexFile))
	require.NoError(t, err)
	return string(data)
}

func TestWriteLandingHubTiles(t *testing.T) {
	result := testResult()
	index := writeLanding(t, result, Options{SiteName: "Team Handbook"})

	assert.Contains(t, index, "# Team Handbook\n")
	assert.Contains(t, index, "Welcome. Choose a category to get started:")
	assert.Contains(t, index, `<div class="category-grid">`)

	// The root itself and the hub child get tiles; leaf children do not.
	assert.Contains(t, index, `href="overview.md"`)
	assert.Contains(t, index, `href="operations-11.md"`)
	assert.NotContains(t, index, `href="getting-started-2.md"`)

	// Tile descriptions come from the first paragraph of the page body.
	assert.Contains(t, index, "Operational guides and playbooks for the on-call rotation.")
}

func TestWriteLandingSiteNameFallsBackToRootTitle(t *testing.T) {
	result := testResult()
	index := writeLanding(t, result, Options{})
	assert.True(t, strings.HasPrefix(index, "# Team Handbook\n"), "index starts with %q", index[:min(len(index), 40)])
}

func TestWriteLandingEscapesTitles(t *testing.T) {
	result := testResult()
	result.Get("11").Title = "Ops & <Tools>"
	index := writeLanding(t, result, Options{SiteName: "Team Handbook"})
	assert.Contains(t, index, "Ops &amp; &lt;Tools&gt;")
	assert.NotContains(t, index, "Ops & <Tools>")
}

func TestWriteLandingMissingRoot(t *testing.T) {
	result := &collect.Result{RootID: "1", Pages: map[string]*collect.Page{}}
	w := New(result, layout.FileMap{}, Options{})
	require.Error(t, w.WriteLanding(t.TempDir()))
}

func TestFirstParagraphSkipsShortCandidates(t *testing.T) {
	content := "<p>Hi.</p><p>The much longer second paragraph wins.</p>"
	got := firstParagraph(content)
	assert.Equal(t, "The much longer second paragraph wins.", got)
}

func TestFirstParagraphCollapsesWhitespace(t *testing.T) {
	content := "<p>Spread   across\n\t lines badly</p>"
	assert.Equal(t, "Spread across lines badly", firstParagraph(content))
}

func TestFirstParagraphTruncates(t *testing.T) {
	long := strings.Repeat("word ", 60) // well past the limit
	got := firstParagraph("<p>" + long + "</p>")
	runes := []rune(got)
	assert.LessOrEqual(t, len(runes), descriptionLimit)
	assert.Equal(t, "…", string(runes[len(runes)-1]))
}

func TestFirstParagraphEmpty(t *testing.T) {
	assert.Equal(t, "", firstParagraph("<div><img src=\"x.png\"/></div>"))
}

func TestHubs(t *testing.T) {
	result := testResult()
	w := New(result, layout.Plan(result), Options{})
	assert.Equal(t, []string{"11"}, w.Hubs())
}
