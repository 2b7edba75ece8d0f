// Package sync orchestrates one mirror run as a staged pipeline: collect
// the page tree, plan the layout, resolve content into Markdown, write the
// site, audit link integrity, and promote the staging directory. Each
// stage either completes or classifies its failure; an audit failure
// leaves the previous output untouched.
package sync

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/wikimirror/internal/audit"
	"git.home.luguber.info/inful/wikimirror/internal/collect"
	"git.home.luguber.info/inful/wikimirror/internal/config"
	"git.home.luguber.info/inful/wikimirror/internal/confluence"
	"git.home.luguber.info/inful/wikimirror/internal/errors"
	"git.home.luguber.info/inful/wikimirror/internal/layout"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
	"git.home.luguber.info/inful/wikimirror/internal/metrics"
	"git.home.luguber.info/inful/wikimirror/internal/publish"
	"git.home.luguber.info/inful/wikimirror/internal/resolve"
	"git.home.luguber.info/inful/wikimirror/internal/site"
)

// reportFile is written next to the output directory after every run.
const reportFile = "run-report.json"

// RunState is the shared state threaded through the pipeline stages.
type RunState struct {
	Config  *config.Config
	Client  *confluence.Client
	Staging *site.Staging
	Result  *collect.Result
	FileMap layout.FileMap
	Docs    map[string]*resolve.Document
	Stats   resolve.Stats
	Audit   *audit.Report
	Report  *RunReport
}

// Runner executes sync runs. Create one per run; the client's resolution
// cache must not outlive the run that filled it.
type Runner struct {
	cfg      *config.Config
	client   *confluence.Client
	recorder metrics.Recorder
	publish  bool
}

// NewRunner builds a runner and its remote client from configuration.
func NewRunner(cfg *config.Config) (*Runner, error) {
	client, err := confluence.New(confluence.Options{
		BaseURL:           cfg.Source.BaseURL,
		Email:             cfg.Source.Email,
		APIToken:          cfg.Source.APIToken,
		Timeout:           cfg.HTTPTimeout(),
		Policy:            cfg.RetryPolicy(),
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
		Burst:             cfg.Source.Burst,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "remote client setup failed")
	}
	return &Runner{cfg: cfg, client: client, recorder: metrics.NoopRecorder{}}, nil
}

// SetRecorder injects a metrics recorder. Returns the runner for chaining.
func (r *Runner) SetRecorder(rec metrics.Recorder) *Runner {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	r.recorder = rec
	r.client.SetRecorder(rec)
	return r
}

// EnablePublish appends the publish stage after a successful finalize.
func (r *Runner) EnablePublish(on bool) *Runner {
	r.publish = on
	return r
}

// Client exposes the configured remote client (used by the audit command
// and tests).
func (r *Runner) Client() *confluence.Client { return r.client }

// Run executes the pipeline and always returns a report, alongside the
// error that stopped the run, if any.
func (r *Runner) Run(ctx context.Context) (*RunReport, error) {
	report := newRunReport()
	slog.Info("sync run starting",
		logfields.RunID(report.RunID),
		logfields.URL(r.cfg.Source.BaseURL),
		logfields.PageID(r.cfg.Source.RootPageID))

	rs := &RunState{Config: r.cfg, Client: r.client, Report: report}

	staging, err := site.BeginStaging(r.cfg.Output.Directory)
	if err != nil {
		err = errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "staging setup failed")
		report.finish(OutcomeFailed, err)
		return report, err
	}
	rs.Staging = staging
	defer staging.Abort()

	defs := NewPipeline().
		Add(StageCollect, r.stageCollect).
		Add(StagePlan, r.stagePlan).
		Add(StageResolve, r.stageResolve).
		Add(StageWrite, r.stageWrite).
		Add(StageAudit, r.stageAudit).
		Add(StageFinalize, r.stageFinalize).
		AddIf(r.publish && r.cfg.Publish.RemoteURL != "", StagePublish, r.stagePublish).
		Build()

	runErr := r.runStages(ctx, rs, defs)

	report.Requests = r.client.Requests()
	var se *StageError
	switch {
	case runErr == nil:
		report.finish(OutcomeSuccess, nil)
	case stdErrors.As(runErr, &se) && se.Kind == StageErrorCanceled:
		report.finish(OutcomeCanceled, runErr)
	case se != nil && se.Kind == StageErrorAudit:
		report.finish(OutcomeAuditFailed, runErr)
	default:
		report.finish(OutcomeFailed, runErr)
	}
	r.recorder.IncRunOutcome(string(report.Outcome))
	r.recorder.ObserveRunDuration(report.Duration())

	reportPath := filepath.Join(filepath.Dir(r.cfg.Output.Directory), reportFile)
	if err := report.Save(reportPath); err != nil {
		slog.Warn("could not save run report", logfields.Path(reportPath), logfields.Error(err))
	}

	slog.Info("sync run finished",
		logfields.RunID(report.RunID),
		slog.String("outcome", string(report.Outcome)),
		logfields.Pages(report.Pages),
		logfields.Requests(int(report.Requests)),
		logfields.DurationMS(float64(report.Duration().Milliseconds())))
	return report, runErr
}

// runStages executes stages in order, recording timing and stopping on the
// first error.
func (r *Runner) runStages(ctx context.Context, rs *RunState, defs []StageDef) error {
	for _, st := range defs {
		select {
		case <-ctx.Done():
			r.recorder.IncStageResult(string(st.Name), metrics.ResultCanceled)
			return newCanceledStageError(st.Name, ctx.Err())
		default:
		}

		slog.Debug("stage starting", logfields.Stage(string(st.Name)))
		t0 := time.Now()
		err := st.Fn(ctx, rs)
		dur := time.Since(t0)
		rs.Report.Stages[string(st.Name)] = dur
		r.recorder.ObserveStageDuration(string(st.Name), dur)

		if err != nil {
			se := classifyStageError(st.Name, err)
			r.recorder.IncStageResult(string(st.Name), stageResultLabel(se.Kind))
			slog.Error("stage failed",
				logfields.Stage(string(st.Name)),
				logfields.DurationMS(float64(dur.Milliseconds())),
				logfields.Error(se))
			return se
		}
		r.recorder.IncStageResult(string(st.Name), metrics.ResultSuccess)
		slog.Info("stage finished",
			logfields.Stage(string(st.Name)),
			logfields.DurationMS(float64(dur.Milliseconds())))
	}
	return nil
}

func classifyStageError(stage StageName, err error) *StageError {
	switch {
	case stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded):
		return newCanceledStageError(stage, err)
	case errors.IsCategory(err, errors.CategoryIntegrity):
		return newAuditStageError(stage, err)
	}
	return newFatalStageError(stage, err)
}

func stageResultLabel(kind StageErrorKind) metrics.ResultLabel {
	switch kind {
	case StageErrorCanceled:
		return metrics.ResultCanceled
	case StageErrorAudit:
		return metrics.ResultError
	}
	return metrics.ResultFatal
}

func (r *Runner) stageCollect(ctx context.Context, rs *RunState) error {
	collector := collect.New(rs.Client, collect.Options{
		FollowLinks:       rs.Config.FollowLinks(),
		MaxExpansionDepth: rs.Config.Collect.MaxExpansionDepth,
	})
	result, err := collector.Collect(ctx, rs.Config.Source.RootPageID)
	if err != nil {
		return err
	}
	rs.Result = result
	rs.Report.Pages = result.Len()
	r.recorder.AddPages(result.Len())
	return nil
}

func (r *Runner) stagePlan(_ context.Context, rs *RunState) error {
	rs.FileMap = layout.Plan(rs.Result)
	if len(rs.FileMap) != rs.Result.Len() {
		return fmt.Errorf("layout planned %d files for %d pages", len(rs.FileMap), rs.Result.Len())
	}
	return nil
}

func (r *Runner) stageResolve(ctx context.Context, rs *RunState) error {
	resolver := resolve.New(rs.Client, rs.FileMap, resolve.Options{
		OutDir:           rs.Staging.Dir(),
		AssetConcurrency: rs.Config.Collect.AssetConcurrency,
	})
	docs := make(map[string]*resolve.Document, rs.Result.Len())
	for _, id := range rs.Result.Order {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := resolver.ResolvePage(ctx, rs.Result.Get(id))
		if err != nil {
			return fmt.Errorf("resolve page %s: %w", id, err)
		}
		docs[id] = doc
		rs.Stats.Add(doc.Stats)
	}
	rs.Docs = docs

	rs.Report.LinksRewritten = rs.Stats.LinksRewritten
	rs.Report.LinksUnchanged = rs.Stats.LinksUnchanged
	rs.Report.AssetsDownloaded = rs.Stats.AssetsDownloaded
	rs.Report.AssetsReused = rs.Stats.AssetsReused
	rs.Report.AssetsFailed = rs.Stats.AssetsFailed
	r.recorder.AddAssets(rs.Stats.AssetsDownloaded)
	return nil
}

func (r *Runner) stageWrite(_ context.Context, rs *RunState) error {
	writer := site.New(rs.Result, rs.FileMap, site.Options{
		SiteName:    rs.Config.Output.SiteName,
		Numbering:   rs.Config.Output.Numbering,
		Breadcrumbs: rs.Config.Breadcrumbs(),
	})
	if err := writer.WritePages(rs.Staging.Dir(), rs.Docs); err != nil {
		return err
	}
	if err := writer.WriteLanding(rs.Staging.Dir()); err != nil {
		return err
	}
	return writer.WriteNav(rs.Staging.Dir())
}

// stageAudit is the integrity gate: the staging tree is scanned before it
// can replace the previous output, so a run with dangling references never
// reaches readers.
func (r *Runner) stageAudit(ctx context.Context, rs *RunState) error {
	auditor := audit.New(rs.Staging.Dir(), audit.Options{
		CheckExternal:   rs.Config.Audit.External,
		ExternalTimeout: rs.Config.AuditTimeout(),
		NATSURL:         rs.Config.Audit.NATSURL,
		CacheBucket:     rs.Config.Audit.CacheBucket,
	})
	rep, err := auditor.Run(ctx)
	if err != nil {
		return err
	}
	rs.Audit = rep
	rs.Report.Violations = rep.Violations
	r.recorder.AddAuditViolations(len(rep.Violations))
	if rep.Failed() {
		return errors.New(errors.CategoryIntegrity, errors.SeverityFatal,
			fmt.Sprintf("link audit found %d dangling references", len(rep.Violations)))
	}
	return nil
}

func (r *Runner) stageFinalize(_ context.Context, rs *RunState) error {
	return rs.Staging.Finalize()
}

func (r *Runner) stagePublish(ctx context.Context, rs *RunState) error {
	if err := publish.Push(ctx, rs.Config.Publish, rs.Config.Output.Directory, rs.Report.RunID); err != nil {
		return err
	}
	rs.Report.Published = true
	return nil
}
