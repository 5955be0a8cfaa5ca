package containermgr

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/previewd/orchestrator/internal/errs"
)

// VCS is the subset of git operations the container manager needs, kept
// behind an interface so deploy/update can be tested without a real git
// binary or network access — the same swap-the-collaborator shape as the
// teacher's process.HealthChecker.
type VCS interface {
	Clone(ctx context.Context, cloneURL, dir string) error
	Checkout(ctx context.Context, dir, branch string) error
	ResetHard(ctx context.Context, dir, commitSHA string) error
	FetchOrigin(ctx context.Context, dir string) error
}

// GitVCS shells out to the git binary, the same os/exec pattern
// internal/hooks uses for build/startup commands.
type GitVCS struct{}

func (GitVCS) Clone(ctx context.Context, cloneURL, dir string) error {
	return runGit(ctx, "", "clone", cloneURL, dir)
}

func (GitVCS) Checkout(ctx context.Context, dir, branch string) error {
	return runGit(ctx, dir, "checkout", branch)
}

func (GitVCS) ResetHard(ctx context.Context, dir, commitSHA string) error {
	return runGit(ctx, dir, "reset", "--hard", commitSHA)
}

func (GitVCS) FetchOrigin(ctx context.Context, dir string) error {
	return runGit(ctx, dir, "fetch", "origin")
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: git %v: %v: %s", errs.ErrGitOperationFailed, args, err, out)
	}
	return nil
}
