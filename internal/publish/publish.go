// Package publish pushes a finalized output tree to a git remote, the
// handoff point for static site hosting. It only ever runs after the link
// audit passed; a failed run never reaches the published branch.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"git.home.luguber.info/inful/wikimirror/internal/config"
	"git.home.luguber.info/inful/wikimirror/internal/logfields"
)

// Push commits the output tree onto the configured branch and pushes it.
// The work happens in a sibling workspace so the output directory itself
// never carries git state and stays safe to promote atomically.
func Push(ctx context.Context, cfg config.PublishConfig, outputDir, runID string) error {
	if cfg.RemoteURL == "" {
		return errors.New("publish remote URL is not configured")
	}

	workDir := outputDir + ".publish"
	if err := os.RemoveAll(workDir); err != nil {
		return fmt.Errorf("clear publish workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			slog.Warn("could not remove publish workspace", logfields.Path(workDir), logfields.Error(err))
		}
	}()

	repo, err := cloneOrInit(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	if err := clearWorktree(workDir); err != nil {
		return err
	}
	if err := copyTree(outputDir, workDir); err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage published tree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		slog.Info("published tree unchanged, nothing to push", logfields.URL(cfg.RemoteURL))
		return nil
	}

	commit, err := wt.Commit(fmt.Sprintf("sync %s", runID), &git.CommitOptions{
		Author: &object.Signature{
			Name:  cfg.AuthorName,
			Email: cfg.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit published tree: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", cfg.Branch, cfg.Branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       auth(cfg),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push to %s: %w", cfg.RemoteURL, err)
	}

	slog.Info("published output tree",
		logfields.URL(cfg.RemoteURL),
		slog.String("branch", cfg.Branch),
		slog.String("commit", commit.String()[:8]))
	return nil
}

// cloneOrInit brings the publish branch into the workspace. An empty
// remote gets a fresh repository whose first push creates the branch.
func cloneOrInit(ctx context.Context, cfg config.PublishConfig, workDir string) (*git.Repository, error) {
	repo, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           cfg.RemoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(cfg.Branch),
		SingleBranch:  true,
		Auth:          auth(cfg),
	})
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, transport.ErrEmptyRemoteRepository) && !isMissingBranch(err) {
		return nil, fmt.Errorf("clone %s: %w", cfg.RemoteURL, err)
	}

	repo, err = git.PlainInit(workDir, false)
	if err != nil {
		return nil, fmt.Errorf("init publish workspace: %w", err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(cfg.Branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("select publish branch: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{cfg.RemoteURL},
	}); err != nil {
		return nil, fmt.Errorf("configure remote: %w", err)
	}
	return repo, nil
}

// isMissingBranch matches the clone failure for a remote that exists but
// does not have the publish branch yet. go-git reports this with an
// unexported error, so string matching is the only option.
func isMissingBranch(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "couldn't find remote ref") ||
		strings.Contains(msg, "reference not found")
}

func auth(cfg config.PublishConfig) transport.AuthMethod {
	if cfg.Token == "" {
		return nil
	}
	// For token-based HTTPS remotes the username is ignored but must be
	// non-empty.
	return &githttp.BasicAuth{Username: "wikimirror", Password: cfg.Token}
}

// clearWorktree removes everything except git state, so files deleted from
// the output tree disappear from the published branch too.
func clearWorktree(workDir string) error {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		return fmt.Errorf("read publish workspace: %w", err)
	}
	for _, e := range entries {
		if e.Name() == git.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(workDir, e.Name())); err != nil {
			return fmt.Errorf("clear publish workspace: %w", err)
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	return out.Close()
}
