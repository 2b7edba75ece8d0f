package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/wikimirror/internal/audit"
	"git.home.luguber.info/inful/wikimirror/internal/config"
	"git.home.luguber.info/inful/wikimirror/internal/daemon"
	"git.home.luguber.info/inful/wikimirror/internal/history"
	"git.home.luguber.info/inful/wikimirror/internal/publish"
	runsync "git.home.luguber.info/inful/wikimirror/internal/sync"
	"git.home.luguber.info/inful/wikimirror/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"wikimirror.yml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Sync struct {
		Publish bool `help:"Push the finalized tree to the configured git remote"`
	} `cmd:"" help:"Mirror the remote content tree once"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Audit struct {
		Dir      string `short:"d" help:"Directory to audit (defaults to the configured output directory)"`
		External bool   `help:"Also verify external URLs over HTTP"`
	} `cmd:"" help:"Verify every reference in an existing output tree"`

	Daemon struct{} `cmd:"" help:"Run continuously with scheduled re-syncs and an HTTP status endpoint"`

	History struct {
		RunID string `arg:"" optional:"" help:"Show the full report of one run"`
		Limit int    `short:"n" help:"Number of runs to list" default:"20"`
	} `cmd:"" help:"List recent runs or show a single run report"`

	Publish struct{} `cmd:"" help:"Push the current output tree to the configured git remote"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "sync":
		cfg := mustLoadConfig()
		if err := runSync(cfg, CLI.Sync.Publish); err != nil {
			slog.Error("Sync failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Configuration written", "path", CLI.Config)
	case "audit":
		cfg := mustLoadConfig()
		if err := runAudit(cfg, CLI.Audit.Dir, CLI.Audit.External); err != nil {
			slog.Error("Audit failed", "error", err)
			os.Exit(1)
		}
	case "daemon":
		cfg := mustLoadConfig()
		if err := runDaemon(CLI.Config, cfg); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "history", "history <run-id>":
		cfg := mustLoadConfig()
		if err := runHistory(cfg, CLI.History.RunID, CLI.History.Limit); err != nil {
			slog.Error("History lookup failed", "error", err)
			os.Exit(1)
		}
	case "publish":
		cfg := mustLoadConfig()
		if err := runPublish(cfg); err != nil {
			slog.Error("Publish failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("wikimirror %s\n", version.String())
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "path", CLI.Config, "error", err)
		os.Exit(1)
	}
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runSync(cfg *config.Config, publishAfter bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	runner, err := runsync.NewRunner(cfg)
	if err != nil {
		return err
	}
	runner.EnablePublish(publishAfter)

	report, runErr := runner.Run(ctx)
	fmt.Print(report.Summary())
	return runErr
}

func runAudit(cfg *config.Config, dir string, external bool) error {
	ctx, cancel := signalContext()
	defer cancel()

	if dir == "" {
		dir = cfg.Output.Directory
	}
	auditor := audit.New(dir, audit.Options{
		CheckExternal:   external || cfg.Audit.External,
		ExternalTimeout: cfg.AuditTimeout(),
		NATSURL:         cfg.Audit.NATSURL,
		CacheBucket:     cfg.Audit.CacheBucket,
	})
	rep, err := auditor.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("Audit completed",
		"documents", rep.ScannedDocs,
		"references", rep.CheckedRefs,
		"external", rep.ExternalRefs)
	if rep.Failed() {
		for _, v := range rep.Violations {
			fmt.Println(v)
		}
		return fmt.Errorf("%d dangling references", len(rep.Violations))
	}
	return nil
}

func runDaemon(configPath string, cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	slog.Info("Daemon starting",
		"listen", cfg.Daemon.Listen,
		"interval", cfg.DaemonInterval())
	return daemon.New(configPath, cfg).Run(ctx)
}

func runHistory(cfg *config.Config, runID string, limit int) error {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if runID != "" {
		report, err := store.Get(ctx, runID)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	entries, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %-12s pages=%-4d requests=%-5d violations=%-3d %s\n",
			e.StartedAt.Format(time.RFC3339), e.Outcome, e.Pages, e.Requests, e.Violations, e.RunID)
	}
	return nil
}

// runPublish pushes an already finalized tree. The audit gate applies here
// the same as during a sync: a tree with dangling references never leaves
// the machine.
func runPublish(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	auditor := audit.New(cfg.Output.Directory, audit.Options{})
	rep, err := auditor.Run(ctx)
	if err != nil {
		return err
	}
	if rep.Failed() {
		for _, v := range rep.Violations {
			fmt.Println(v)
		}
		return fmt.Errorf("refusing to publish: %d dangling references", len(rep.Violations))
	}

	runID := "manual-" + time.Now().Format("20060102-150405")
	return publish.Push(ctx, cfg.Publish, cfg.Output.Directory, runID)
}
