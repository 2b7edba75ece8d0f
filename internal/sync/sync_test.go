package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	gitclient "github.com/go-git/go-git/v5/plumbing/transport/client"
	gitserver "github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wikimirror/internal/config"
	"git.home.luguber.info/inful/wikimirror/internal/confluence"
	cferrors "git.home.luguber.info/inful/wikimirror/internal/confluence/errors"
	"git.home.luguber.info/inful/wikimirror/internal/errors"
	"git.home.luguber.info/inful/wikimirror/internal/site"
)

func init() {
	// Local path git remotes normally exec the git binaries. Routing them
	// through the in-process server keeps these tests hermetic.
	gitclient.InstallProtocol("file", gitserver.NewClient(gitserver.DefaultLoader))
}

type fakePage struct {
	title     string
	body      string
	ancestors []confluence.PageRef
	children  []string
}

// fakeWiki serves the remote content API shapes the client consumes: page
// fetches, child listings, and attachment downloads.
type fakeWiki struct {
	pages  map[string]*fakePage
	assets map[string][]byte
}

func (f *fakeWiki) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/wiki/download/"):
			data, ok := f.assets[strings.TrimPrefix(r.URL.Path, "/wiki")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(data)

		case strings.HasPrefix(r.URL.Path, "/wiki/rest/api/content/"):
			rest := strings.TrimPrefix(r.URL.Path, "/wiki/rest/api/content/")
			w.Header().Set("Content-Type", "application/json")
			if id, isListing := strings.CutSuffix(rest, "/child/page"); isListing {
				f.writeListing(w, id)
				return
			}
			page, ok := f.pages[rest]
			if !ok {
				http.Error(w, `{"message":"no content found"}`, http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(confluence.Page{
				ID:        rest,
				Title:     page.title,
				Body:      confluence.Body{View: confluence.View{Value: page.body}},
				Ancestors: page.ancestors,
			})

		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeWiki) writeListing(w http.ResponseWriter, id string) {
	page, ok := f.pages[id]
	if !ok {
		http.Error(w, `{"message":"no content found"}`, http.StatusNotFound)
		return
	}
	results := make([]confluence.Page, 0, len(page.children))
	for _, childID := range page.children {
		results = append(results, confluence.Page{ID: childID, Title: f.pages[childID].title})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"results": results,
		"size":    len(results),
	})
}

// threePageWiki is the smallest interesting tree: a root, one hierarchy
// child, and one page reachable only through a hyperlink in the root body.
func threePageWiki() *fakeWiki {
	return &fakeWiki{
		pages: map[string]*fakePage{
			"1": {
				title: "Team Handbook",
				body: `<h1>Team Handbook</h1>` +
					`<p>Welcome to the team handbook. Start with the basics and keep the incident template close.</p>` +
					`<p><a href="/wiki/spaces/TEAM/pages/2/Getting+Started">Getting Started</a></p>` +
					`<p><a href="/wiki/spaces/TEAM/pages/30/Incident+Template">Incident Template</a></p>` +
					`<p><img src="/wiki/download/attachments/1/diagram.png" alt="diagram"/></p>`,
				children: []string{"2"},
			},
			"2": {
				title: "Getting Started",
				body: `<h1>Getting Started</h1>` +
					`<p>Read this before your first on-call shift. See <a href="https://pagerduty.example.com/schedule">the schedule</a>.</p>`,
				ancestors: []confluence.PageRef{{ID: "1", Title: "Team Handbook"}},
			},
			"30": {
				title: "Incident Template",
				body: `<h1>Incident Template</h1>` +
					`<p>Copy this template when an incident starts. Escalate per the <a href="/wiki/spaces/TEAM/pages/1/Team+Handbook">handbook</a>.</p>`,
			},
		},
		assets: map[string][]byte{
			"/download/attachments/1/diagram.png": []byte("png-data"),
		},
	}
}

func testRunConfig(srvURL, outDir string) *config.Config {
	cfg := &config.Config{}
	cfg.Source.BaseURL = srvURL + "/wiki"
	cfg.Source.Email = "docs@example.com"
	cfg.Source.APIToken = "token"
	cfg.Source.RootPageID = "1"
	cfg.Source.Timeout = "5s"
	cfg.Source.RequestsPerSecond = 1000
	cfg.Source.Burst = 1000
	cfg.Source.Retry = config.RetryConfig{Backoff: "fixed", InitialDelay: "1ms", MaxDelay: "5ms", MaxRetries: 2}
	cfg.Collect.MaxExpansionDepth = 2
	cfg.Collect.AssetConcurrency = 2
	cfg.Output.Directory = outDir
	cfg.Output.SiteName = "Team Handbook"
	return cfg
}

func readSiteFile(t *testing.T, root, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err, "read %s", name)
	return string(data)
}

func TestRunEndToEnd(t *testing.T) {
	srv := httptest.NewServer(threePageWiki().handler())
	defer srv.Close()

	tmp := t.TempDir()
	outDir := filepath.Join(tmp, "site")
	runner, err := NewRunner(testRunConfig(srv.URL, outDir))
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, int64(7), report.Requests)
	assert.Empty(t, report.Violations)
	assert.Equal(t, 1, report.AssetsDownloaded)
	assert.GreaterOrEqual(t, report.LinksRewritten, 3)

	overview := readSiteFile(t, outDir, "overview.md")
	assert.Contains(t, overview, "# Team Handbook")
	assert.Contains(t, overview, "[Getting Started](getting-started-2.md)")
	assert.Contains(t, overview, "[Incident Template](linked-content/incident-template-30.md)")
	assert.Contains(t, overview, "![diagram](assets/1/diagram.png)")

	linked := readSiteFile(t, outDir, "linked-content/incident-template-30.md")
	assert.Contains(t, linked, "*[Team Handbook](../overview.md)*")
	assert.Contains(t, linked, "[handbook](../overview.md)")

	started := readSiteFile(t, outDir, "getting-started-2.md")
	assert.Contains(t, started, "[the schedule](https://pagerduty.example.com/schedule)")

	asset, err := os.ReadFile(filepath.Join(outDir, "assets", "1", "diagram.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-data", string(asset))

	nav := readSiteFile(t, outDir, "nav.yml")
	assert.Contains(t, nav, "site_name: Team Handbook")
	assert.Contains(t, nav, "Incident Template: linked-content/incident-template-30.md")
	readSiteFile(t, outDir, "index.md")

	_, err = os.Stat(outDir + "_stage")
	assert.True(t, os.IsNotExist(err), "staging directory should be promoted away")

	data, err := os.ReadFile(filepath.Join(tmp, "run-report.json"))
	require.NoError(t, err)
	var saved RunReport
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, report.RunID, saved.RunID)
	assert.Equal(t, OutcomeSuccess, saved.Outcome)

	for _, stage := range []StageName{StageCollect, StagePlan, StageResolve, StageWrite, StageAudit, StageFinalize} {
		assert.Contains(t, report.Stages, string(stage))
	}
}

func TestRunAuditFailureKeepsPreviousOutput(t *testing.T) {
	srv := httptest.NewServer(threePageWiki().handler())
	defer srv.Close()

	tmp := t.TempDir()
	outDir := filepath.Join(tmp, "site")
	cfg := testRunConfig(srv.URL, outDir)

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	// Re-run with an extra stage that plants a dangling reference in the
	// staging tree after write, before the audit gate.
	runner2, err := NewRunner(cfg)
	require.NoError(t, err)
	staging, err := site.BeginStaging(cfg.Output.Directory)
	require.NoError(t, err)
	defer staging.Abort()
	rs := &RunState{Config: cfg, Client: runner2.client, Staging: staging, Report: newRunReport()}

	corrupt := func(_ context.Context, _ *RunState) error {
		path := filepath.Join(staging.Dir(), "overview.md")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		if _, err := f.WriteString("\nSee the [ghost](ghost-99.md) page.\n"); err != nil {
			return err
		}
		return f.Close()
	}

	defs := NewPipeline().
		Add(StageCollect, runner2.stageCollect).
		Add(StagePlan, runner2.stagePlan).
		Add(StageResolve, runner2.stageResolve).
		Add(StageWrite, runner2.stageWrite).
		Add(StageName("corrupt"), corrupt).
		Add(StageAudit, runner2.stageAudit).
		Add(StageFinalize, runner2.stageFinalize).
		Build()

	err = runner2.runStages(context.Background(), rs, defs)
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorAudit, se.Kind)
	assert.Equal(t, StageAudit, se.Stage)
	assert.True(t, errors.IsCategory(err, errors.CategoryIntegrity))
	require.Len(t, rs.Audit.Violations, 1)
	assert.Equal(t, "overview.md", rs.Audit.Violations[0].File)
	assert.Equal(t, "ghost-99.md", rs.Audit.Violations[0].Reference)

	staging.Abort()
	overview := readSiteFile(t, outDir, "overview.md")
	assert.NotContains(t, overview, "ghost-99.md", "previous output must stay untouched")
	_, err = os.Stat(outDir + "_stage")
	assert.True(t, os.IsNotExist(err), "staging directory should be removed on abort")
}

func TestRunRemoteFailureAbortsRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"no content found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	outDir := filepath.Join(tmp, "site")
	runner, err := NewRunner(testRunConfig(srv.URL, outDir))
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, cferrors.ErrNotFound)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)
	assert.Equal(t, StageCollect, se.Stage)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.NotEmpty(t, report.Error)

	_, statErr := os.Stat(outDir)
	assert.True(t, os.IsNotExist(statErr), "failed run must not produce output")
	_, statErr = os.Stat(outDir + "_stage")
	assert.True(t, os.IsNotExist(statErr), "staging directory should be cleaned up")
}

func TestRunCanceledBeforeStart(t *testing.T) {
	srv := httptest.NewServer(threePageWiki().handler())
	defer srv.Close()

	outDir := filepath.Join(t.TempDir(), "site")
	runner, err := NewRunner(testRunConfig(srv.URL, outDir))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
}

func TestRunPublishesAfterFinalize(t *testing.T) {
	srv := httptest.NewServer(threePageWiki().handler())
	defer srv.Close()

	tmp := t.TempDir()
	remote := filepath.Join(tmp, "remote.git")
	_, err := git.PlainInit(remote, true)
	require.NoError(t, err)

	outDir := filepath.Join(tmp, "site")
	cfg := testRunConfig(srv.URL, outDir)
	cfg.Publish.RemoteURL = remote
	cfg.Publish.Branch = "gh-pages"
	cfg.Publish.AuthorName = "wikimirror"
	cfg.Publish.AuthorEmail = "wikimirror@localhost"

	runner, err := NewRunner(cfg)
	require.NoError(t, err)
	report, err := runner.EnablePublish(true).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, report.Outcome)
	assert.True(t, report.Published)
	assert.Contains(t, report.Stages, string(StagePublish))

	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName("gh-pages"), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, "sync "+report.RunID, commit.Message)
	_, err = commit.File("overview.md")
	assert.NoError(t, err)
}

func TestClassifyStageError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want StageErrorKind
	}{
		{"canceled", context.Canceled, StageErrorCanceled},
		{"deadline", context.DeadlineExceeded, StageErrorCanceled},
		{"integrity", errors.New(errors.CategoryIntegrity, errors.SeverityFatal, "dangling references"), StageErrorAudit},
		{"other", fmt.Errorf("connection reset"), StageErrorFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			se := classifyStageError(StageResolve, tc.err)
			assert.Equal(t, tc.want, se.Kind)
			assert.Equal(t, StageResolve, se.Stage)
		})
	}
}
