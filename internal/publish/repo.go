// Package publish commits and pushes the exported knowledge files with git,
// so a coach that reads them from the repository host sees fresh data.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo is a git working tree.
type Repo struct {
	root string
}

// Open finds the repository containing path.
func Open(path string) (*Repo, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, ErrGitNotAvailable
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = absPath
	output, err := cmd.Output()
	if err != nil {
		return nil, ErrNotInRepo
	}

	root := filepath.FromSlash(strings.TrimSpace(string(output)))
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return &Repo{root: root}, nil
}

// Root returns the working tree root.
func (r *Repo) Root() string {
	return r.root
}

// Rel returns path relative to the working tree root, for use as a git
// pathspec.
func (r *Repo) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the repository at %s", path, r.root)
	}
	return filepath.ToSlash(rel), nil
}

// exec runs git in the working tree and returns its combined output.
func (r *Repo) exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\n%s", strings.Join(args, " "), err, string(output))
	}
	return output, nil
}

// FileStatus is one entry of git status.
type FileStatus struct {
	Path string
	// Code is the two-letter porcelain status, e.g. " M" or "??".
	Code string
}

// Untracked reports whether the file is not yet known to git.
func (s FileStatus) Untracked() bool {
	return s.Code == "??"
}

// Status returns the changed files under paths.
func (r *Repo) Status(ctx context.Context, paths ...string) ([]FileStatus, error) {
	args := append([]string{"status", "--porcelain", "--untracked-files=all", "--"}, paths...)
	output, err := r.exec(ctx, args...)
	if err != nil {
		return nil, err
	}

	var statuses []FileStatus
	for _, line := range strings.Split(string(output), "\n") {
		if len(line) < 4 {
			continue
		}
		path := strings.TrimSpace(line[3:])
		if i := strings.Index(path, " -> "); i >= 0 {
			path = path[i+4:]
		}
		statuses = append(statuses, FileStatus{Path: strings.Trim(path, `"`), Code: line[:2]})
	}
	return statuses, nil
}

// Commit stages paths and commits them with message. Only the given paths
// are committed; other staged changes are left alone.
func (r *Repo) Commit(ctx context.Context, message string, paths ...string) error {
	if message == "" {
		return fmt.Errorf("commit message is required")
	}
	if len(paths) == 0 {
		return fmt.Errorf("no paths to commit")
	}

	if _, err := r.exec(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return err
	}
	args := append([]string{"commit", "-m", message, "--"}, paths...)
	if _, err := r.exec(ctx, args...); err != nil {
		return err
	}
	return nil
}

// CurrentBranch returns the checked-out branch, or "" when HEAD is detached.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.exec(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// HasRemote reports whether any remote is configured.
func (r *Repo) HasRemote(ctx context.Context) bool {
	output, err := r.exec(ctx, "remote")
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// Push pushes branch to remote. Empty values default to the current
// branch and its configured remote, or origin.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	if !r.HasRemote(ctx) {
		return ErrNoRemote
	}

	if branch == "" {
		var err error
		branch, err = r.CurrentBranch(ctx)
		if err != nil {
			return err
		}
		if branch == "" {
			return ErrDetached
		}
	}
	if remote == "" {
		if output, err := r.exec(ctx, "config", "--get", "branch."+branch+".remote"); err == nil {
			remote = strings.TrimSpace(string(output))
		}
		if remote == "" {
			remote = "origin"
		}
	}

	output, err := r.exec(ctx, "push", remote, branch)
	if err != nil {
		out := string(output)
		if strings.Contains(out, "rejected") || strings.Contains(out, "non-fast-forward") {
			return fmt.Errorf("%w: %s", ErrPushRejected, strings.TrimSpace(out))
		}
		return err
	}
	return nil
}
