// Package gitops is the git boundary of the pipeline. Reads (revision
// resolution, change stats) go through go-git; mutations (branching,
// merging, pushing) shell out to the git porcelain, which owns merge
// semantics go-git does not implement.
package gitops

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"incubator/internal/executor"
	"incubator/internal/logging"
)

// ChangeStats summarizes one revision range for the risk classifier.
type ChangeStats struct {
	Files        []string
	LinesAdded   int
	LinesRemoved int
}

// Repo wraps one local repository.
type Repo struct {
	path string
	repo *git.Repository
	log  *slog.Logger
}

// Open opens the repository at path (worktree root).
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &Repo{path: path, repo: repo, log: logging.New("gitops")}, nil
}

// Path returns the worktree root.
func (r *Repo) Path() string { return r.path }

// ResolveSHA resolves any revision (branch, tag, sha prefix) to a full
// commit sha.
func (r *Repo) ResolveSHA(rev string) (string, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", rev, err)
	}
	return h.String(), nil
}

// HeadSHA returns the sha of HEAD.
func (r *Repo) HeadSHA() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return ref.Hash().String(), nil
}

// CurrentBranch returns the short name of the checked-out branch.
func (r *Repo) CurrentBranch() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !ref.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", ref.Hash())
	}
	return ref.Name().Short(), nil
}

// ChangeStats diffs base..head and aggregates per-file line counts, the
// inputs the risk classifier works from.
func (r *Repo) ChangeStats(ctx context.Context, base, head string) (*ChangeStats, error) {
	baseCommit, err := r.commit(base)
	if err != nil {
		return nil, err
	}
	headCommit, err := r.commit(head)
	if err != nil {
		return nil, err
	}

	patch, err := baseCommit.PatchContext(ctx, headCommit)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", base, head, err)
	}

	stats := &ChangeStats{}
	for _, fs := range patch.Stats() {
		stats.Files = append(stats.Files, fs.Name)
		stats.LinesAdded += fs.Addition
		stats.LinesRemoved += fs.Deletion
	}
	return stats, nil
}

func (r *Repo) commit(rev string) (*object.Commit, error) {
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rev, err)
	}
	c, err := r.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", h, err)
	}
	return c, nil
}

// CreateBranch creates (or resets) a branch at the given revision.
func (r *Repo) CreateBranch(ctx context.Context, name, at string) error {
	return r.git(ctx, "branch", "-f", name, at)
}

// Checkout switches the worktree to branch.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	return r.git(ctx, "checkout", branch)
}

// Merge merges source into the checked-out branch. Returns clean=false
// with the porcelain's conflict output when the merge does not apply;
// the conflicted worktree is aborted before returning.
func (r *Repo) Merge(ctx context.Context, source string) (bool, error) {
	cmd := executor.New("git", "merge", "--no-ff", "--no-edit", source)
	res, err := cmd.Execute(ctx, executor.WithWorkingDir(r.path))
	if err == nil {
		return true, nil
	}
	if res != nil && res.ExitCode > 0 {
		r.log.Warn("merge conflict", "source", source, "output", firstLine(res.Stdout))
		if aerr := r.git(ctx, "merge", "--abort"); aerr != nil {
			r.log.Warn("merge abort failed", "error", aerr)
		}
		return false, nil
	}
	return false, err
}

// FastForward advances target to match source without creating a merge
// commit, the shape of a promotion push.
func (r *Repo) FastForward(ctx context.Context, target, source string) error {
	if err := r.Checkout(ctx, target); err != nil {
		return err
	}
	return r.git(ctx, "merge", "--ff-only", source)
}

// Push publishes branch to remote.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	return r.git(ctx, "push", remote, branch)
}

func (r *Repo) git(ctx context.Context, args ...string) error {
	_, err := executor.New("git", args...).Execute(ctx, executor.WithWorkingDir(r.path))
	if err != nil {
		return fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
