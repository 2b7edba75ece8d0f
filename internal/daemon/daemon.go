// Package daemon keeps a mirror continuously fresh: a scheduler re-syncs
// on a fixed interval, a config watcher applies file changes between runs,
// and a small HTTP surface exposes health, status, metrics, and a manual
// trigger.
package daemon

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/wikimirror/internal/config"
	"git.home.luguber.info/inful/wikimirror/internal/history"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
	"git.home.luguber.info/inful/wikimirror/internal/metrics"
	runsync "git.home.luguber.info/inful/wikimirror/internal/sync"
)

// keepHistoryRuns bounds the run history store; older runs are pruned
// after each sync.
const keepHistoryRuns = 500

// Daemon owns the long-running sync loop and its operational endpoints.
type Daemon struct {
	configPath string
	startedAt  time.Time

	mu   sync.RWMutex
	cfg  *config.Config
	addr string

	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
	store    *history.Store

	scheduler gocron.Scheduler
	jobID     uuid.UUID
	syncTask  func()

	running    atomic.Bool
	lastReport atomic.Pointer[runsync.RunReport]
	triggerCh  chan struct{}
}

// New creates a daemon for the given configuration. configPath is watched
// for changes while the daemon runs.
func New(configPath string, cfg *config.Config) *Daemon {
	registry := prom.NewRegistry()
	registry.MustRegister(
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	)
	return &Daemon{
		configPath: configPath,
		startedAt:  time.Now(),
		cfg:        cfg,
		registry:   registry,
		recorder:   metrics.NewPrometheusRecorder(registry),
		triggerCh:  make(chan struct{}, 1),
	}
}

// Config returns the current configuration snapshot.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// Addr returns the bound listen address once Run has started the HTTP
// listener; empty before that.
func (d *Daemon) Addr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.addr
}

// Run starts the scheduler, the HTTP listener, and the config watcher, then
// blocks until ctx is canceled. An in-flight sync is canceled on shutdown;
// its staged output is discarded and the previous tree stays in place.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.Config()

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	d.store = store
	defer func() { _ = store.Close() }()

	ln, err := net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Daemon.Listen, err)
	}
	d.mu.Lock()
	d.addr = ln.Addr().String()
	d.mu.Unlock()

	srv := &http.Server{Handler: d.handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !stderrors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("daemon http server failed", logfields.Error(serveErr))
		}
	}()

	d.syncTask = func() { d.runSync(ctx) }

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	d.scheduler = scheduler
	job, err := scheduler.NewJob(
		gocron.DurationJob(cfg.DaemonInterval()),
		gocron.NewTask(d.syncTask),
		gocron.WithName("sync"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule sync job: %w", err)
	}
	d.jobID = job.ID()
	scheduler.Start()

	go d.triggerLoop(ctx)

	watcher, err := newConfigWatcher(d.configPath, d)
	if err != nil {
		slog.Warn("config watcher unavailable", logfields.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		slog.Warn("config watcher start failed", logfields.Error(err))
	} else {
		defer watcher.Stop()
	}

	slog.Info("daemon started",
		slog.String("listen", d.Addr()),
		slog.Duration("interval", cfg.DaemonInterval()),
		logfields.Path(d.configPath))

	<-ctx.Done()
	slog.Info("daemon shutting down")

	if err := scheduler.Shutdown(); err != nil {
		slog.Warn("scheduler shutdown failed", logfields.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", logfields.Error(err))
	}
	return nil
}

// triggerLoop serializes manual sync triggers onto the run context.
func (d *Daemon) triggerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.triggerCh:
			d.runSync(ctx)
		}
	}
}

// runSync executes one mirror run. Overlapping invocations are skipped; a
// slow run simply absorbs the next tick.
func (d *Daemon) runSync(ctx context.Context) {
	if !d.running.CompareAndSwap(false, true) {
		slog.Info("sync already in progress, skipping tick")
		return
	}
	defer d.running.Store(false)

	cfg := d.Config()
	runner, err := runsync.NewRunner(cfg)
	if err != nil {
		slog.Error("could not build sync runner", logfields.Error(err))
		return
	}
	runner.SetRecorder(d.recorder).EnablePublish(true)

	report, runErr := runner.Run(ctx)
	d.lastReport.Store(report)
	if runErr != nil {
		slog.Error("scheduled sync failed",
			logfields.RunID(report.RunID),
			slog.String("outcome", string(report.Outcome)),
			logfields.Error(runErr))
	}

	if d.store == nil {
		return
	}
	if err := d.store.Append(ctx, report); err != nil {
		slog.Warn("could not record run history", logfields.RunID(report.RunID), logfields.Error(err))
		return
	}
	if err := d.store.Prune(ctx, keepHistoryRuns); err != nil {
		slog.Warn("could not prune run history", logfields.Error(err))
	}
}

// applyConfig swaps in a freshly loaded configuration. Knobs bound at
// startup cannot change without a restart; the sync interval is rescheduled
// in place.
func (d *Daemon) applyConfig(newCfg *config.Config) error {
	old := d.Config()
	if newCfg.Daemon.Listen != old.Daemon.Listen {
		slog.Warn("listen address change requires a daemon restart",
			slog.String("current", old.Daemon.Listen),
			slog.String("new", newCfg.Daemon.Listen))
	}
	if newCfg.History.Path != old.History.Path {
		slog.Warn("history path change requires a daemon restart",
			slog.String("current", old.History.Path),
			slog.String("new", newCfg.History.Path))
	}

	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()

	if d.scheduler != nil && newCfg.DaemonInterval() != old.DaemonInterval() {
		job, err := d.scheduler.Update(d.jobID,
			gocron.DurationJob(newCfg.DaemonInterval()),
			gocron.NewTask(d.syncTask),
			gocron.WithName("sync"))
		if err != nil {
			return fmt.Errorf("reschedule sync job: %w", err)
		}
		d.jobID = job.ID()
		slog.Info("sync interval updated", slog.Duration("interval", newCfg.DaemonInterval()))
	}
	return nil
}
