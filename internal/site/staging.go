package site

import (
	"fmt"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/wikimirror/internal/logfields"
	siteerrors "git.home.luguber.info/inful/wikimirror/internal/site/errors"
)

// Staging holds a freshly written tree in a sibling directory until the run
// is known good, then promotes it atomically over the previous output. The
// audit gate runs against the staging tree before Finalize is ever called.
type Staging struct {
	outputDir string
	stageDir  string
}

// BeginStaging creates the staging directory next to the output directory.
func BeginStaging(outputDir string) (*Staging, error) {
	stage := outputDir + "_stage"
	if err := os.RemoveAll(stage); err != nil {
		return nil, fmt.Errorf("clear stale staging directory: %w", err)
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	slog.Debug("initialized staging directory", logfields.Path(stage))
	return &Staging{outputDir: outputDir, stageDir: stage}, nil
}

// Dir returns the staging directory all writes should target.
func (s *Staging) Dir() string { return s.stageDir }

// Finalize promotes the staging tree: the existing output moves aside as a
// .prev backup, staging renames into place, and the backup is removed in
// the background. If promotion fails the backup is restored.
func (s *Staging) Finalize() error {
	if s.stageDir == "" {
		return siteerrors.ErrNoStaging
	}
	if _, err := os.Stat(s.stageDir); err != nil {
		return fmt.Errorf("staging directory missing: %w", err)
	}

	prev := s.outputDir + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		slog.Warn("could not remove old backup", logfields.Path(prev), logfields.Error(err))
	}

	backedUp := false
	if _, err := os.Stat(s.outputDir); err == nil {
		if err := os.Rename(s.outputDir, prev); err != nil {
			return fmt.Errorf("backup existing output: %w", err)
		}
		backedUp = true
	}
	if err := os.Rename(s.stageDir, s.outputDir); err != nil {
		if backedUp {
			if restoreErr := os.Rename(prev, s.outputDir); restoreErr != nil {
				slog.Error("could not restore previous output",
					logfields.Path(s.outputDir), logfields.Error(restoreErr))
			}
		}
		return fmt.Errorf("promote staging: %w", err)
	}
	s.stageDir = ""

	go func() {
		if err := os.RemoveAll(prev); err != nil {
			slog.Warn("could not remove previous backup", logfields.Path(prev), logfields.Error(err))
		}
	}()
	slog.Info("promoted staging directory", logfields.Path(s.outputDir))
	return nil
}

// Abort discards the staging tree after a failed run. Safe to call after
// Finalize; it then does nothing.
func (s *Staging) Abort() {
	if s.stageDir == "" {
		return
	}
	dir := s.stageDir
	s.stageDir = ""
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("could not remove staging directory after abort", logfields.Path(dir), logfields.Error(err))
	} else {
		slog.Debug("removed staging directory after abort", logfields.Path(dir))
	}
}
