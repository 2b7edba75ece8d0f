package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/layout"
)

type fakeRemote struct {
	mu        sync.Mutex
	downloads map[string]int
	failSrc   map[string]bool
	resolve   map[string]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		downloads: make(map[string]int),
		failSrc:   make(map[string]bool),
		resolve:   make(map[string]string),
	}
}

func (f *fakeRemote) DownloadAsset(_ context.Context, src, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSrc[src] {
		return errors.New("download failed")
	}
	f.downloads[destination]++
	return nil
}

func (f *fakeRemote) ResolveCanonicalID(_ context.Context, href string) (string, bool) {
	id, ok := f.resolve[href]
	return id, ok && id != ""
}

func (f *fakeRemote) BaseURL() string { return "https://example.atlassian.net/wiki" }

func (f *fakeRemote) totalDownloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.downloads {
		total += n
	}
	return total
}

func newTestResolver(fm layout.FileMap, remote *fakeRemote) *Resolver {
	return New(remote, fm, Options{OutDir: "out", AssetConcurrency: 2})
}

func TestResolvePageLinkRewriting(t *testing.T) {
	fm := layout.FileMap{"1": "overview.md", "2": "child-2.md"}
	r := newTestResolver(fm, newFakeRemote())

	page := &collect.Page{
		ID:      "1",
		Title:   "Overview",
		Content: `<p><a href="https://example.atlassian.net/wiki/pages/2">Child</a></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "[Child](child-2.md)")
	assert.Equal(t, 1, doc.Stats.LinksRewritten)
}

func TestResolvePageRelativeAcrossDirectories(t *testing.T) {
	fm := layout.FileMap{
		"1":  "overview.md",
		"30": "linked-content/notes-30.md",
	}
	r := newTestResolver(fm, newFakeRemote())

	page := &collect.Page{
		ID:             "30",
		Title:          "Notes",
		ExpansionDepth: 1,
		Content:        `<p><a href="/wiki/pages/1">Back up</a></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "[Back up](../overview.md)")
}

func TestResolvePageFragmentPreserved(t *testing.T) {
	fm := layout.FileMap{"1": "overview.md", "2": "child-2.md"}
	r := newTestResolver(fm, newFakeRemote())

	page := &collect.Page{
		ID:      "1",
		Content: `<p><a href="/wiki/pages/2#setup">Setup section</a></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "(child-2.md#setup)")
}

func TestResolvePageExternalPassThrough(t *testing.T) {
	fm := layout.FileMap{"1": "overview.md"}
	r := newTestResolver(fm, newFakeRemote())

	page := &collect.Page{
		ID: "1",
		Content: `<p>
			<a href="https://golang.org/doc">docs</a>
			<a href="mailto:team@example.com">mail</a>
			<a href="#local">anchor</a>
		</p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "https://golang.org/doc")
	assert.Contains(t, doc.Markdown, "mailto:team@example.com")
	assert.Contains(t, doc.Markdown, "#local")
	assert.Equal(t, 0, doc.Stats.LinksRewritten)
	assert.Equal(t, 0, doc.Stats.LinksUnchanged)
}

func TestResolvePageUnresolvableLeftUnchanged(t *testing.T) {
	fm := layout.FileMap{"1": "overview.md"}
	r := newTestResolver(fm, newFakeRemote())

	page := &collect.Page{
		ID:      "1",
		Content: `<p><a href="/wiki/pages/999">not mirrored</a></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "/wiki/pages/999")
	assert.Equal(t, 1, doc.Stats.LinksUnchanged)
}

func TestResolvePageIndirectLink(t *testing.T) {
	remote := newFakeRemote()
	remote.resolve["/wiki/x/AbCd"] = "2"
	fm := layout.FileMap{"1": "overview.md", "2": "child-2.md"}
	r := newTestResolver(fm, remote)

	page := &collect.Page{
		ID:      "1",
		Content: `<p><a href="/wiki/x/AbCd">short link</a></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)
	assert.Contains(t, doc.Markdown, "[short link](child-2.md)")
}

func TestResolvePageHeadingDemotion(t *testing.T) {
	fm := layout.FileMap{"1": "overview.md"}
	r := newTestResolver(fm, newFakeRemote())

	page := &collect.Page{
		ID:      "1",
		Content: `<h1>First Title</h1><p>intro</p><h1>Second Title</h1><p>more</p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "# First Title")
	assert.Contains(t, doc.Markdown, "## Second Title")
	assert.NotContains(t, doc.Markdown, "\n# Second Title")
}

func TestResolvePageAssetRewrite(t *testing.T) {
	remote := newFakeRemote()
	fm := layout.FileMap{"1": "overview.md"}
	r := newTestResolver(fm, remote)

	page := &collect.Page{
		ID:      "1",
		Content: `<p><img alt="diagram" src="/wiki/download/attachments/42/diagram.png?version=2"></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "![diagram](assets/42/diagram.png)")
	assert.Equal(t, 1, doc.Stats.AssetsDownloaded)
	assert.Equal(t, 1, remote.downloads[filepath.Join("out", "assets", "42", "diagram.png")])
}

func TestAssetDownloadedOncePerRun(t *testing.T) {
	remote := newFakeRemote()
	fm := layout.FileMap{
		"1": "overview.md",
		"2": "linked-content/related-2.md",
	}
	r := newTestResolver(fm, remote)

	embed := `<p><img alt="shared" src="/wiki/download/attachments/42/shared.png"></p>`

	first, err := r.ResolvePage(context.Background(), &collect.Page{ID: "1", Content: embed})
	require.NoError(t, err)
	second, err := r.ResolvePage(context.Background(), &collect.Page{ID: "2", ExpansionDepth: 1, Content: embed})
	require.NoError(t, err)

	assert.Equal(t, 1, remote.totalDownloads())
	assert.Equal(t, 1, first.Stats.AssetsDownloaded)
	assert.Equal(t, 1, second.Stats.AssetsReused)

	assert.Contains(t, first.Markdown, "(assets/42/shared.png)")
	assert.Contains(t, second.Markdown, "(../assets/42/shared.png)")
}

func TestAssetFailureKeepsReference(t *testing.T) {
	remote := newFakeRemote()
	remote.failSrc["/wiki/download/attachments/42/missing.png"] = true
	fm := layout.FileMap{"1": "overview.md"}
	r := newTestResolver(fm, remote)

	page := &collect.Page{
		ID:      "1",
		Content: `<p><img alt="missing" src="/wiki/download/attachments/42/missing.png"></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "/wiki/download/attachments/42/missing.png")
	assert.Equal(t, 1, doc.Stats.AssetsFailed)
	assert.Equal(t, 0, doc.Stats.AssetsDownloaded)
}

func TestResolvePageExternalImageUntouched(t *testing.T) {
	remote := newFakeRemote()
	fm := layout.FileMap{"1": "overview.md"}
	r := newTestResolver(fm, remote)

	page := &collect.Page{
		ID:      "1",
		Content: `<p><img alt="badge" src="https://img.shields.io/badge/build-passing.svg"></p>`,
	}
	doc, err := r.ResolvePage(context.Background(), page)
	require.NoError(t, err)

	assert.Contains(t, doc.Markdown, "https://img.shields.io/badge/build-passing.svg")
	assert.Equal(t, 0, remote.totalDownloads())
}
