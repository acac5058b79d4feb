// Package gitcli runs the git executable against a shadow repository.
//
// go-git handles objects, refs and commits. The operations here (staging with
// ignore-errors, reset --hard, clean, branch deletion) go through the git CLI
// because go-git's worktree status and reset delete untracked directories and
// ignore the info/exclude file in ways the shadow repository cannot tolerate.
package gitcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Environment variables that would redirect git away from the shadow
// repository. They are stripped from every command.
var overridingEnv = []string{
	"GIT_DIR",
	"GIT_WORK_TREE",
	"GIT_INDEX_FILE",
	"GIT_OBJECT_DIRECTORY",
	"GIT_ALTERNATE_OBJECT_DIRECTORIES",
	"GIT_CEILING_DIRECTORIES",
	"GIT_NAMESPACE",
}

// Runner executes git commands bound to one git directory and, optionally,
// one work tree.
type Runner struct {
	gitDir   string
	workTree string
	dir      string
}

// New creates a runner for the given git directory and work tree.
// An empty workTree runs commands with --git-dir only.
func New(gitDir, workTree string) *Runner {
	return &Runner{gitDir: gitDir, workTree: workTree}
}

// WithDir returns a copy of the runner whose commands start in dir.
func (r *Runner) WithDir(dir string) *Runner {
	c := *r
	c.dir = dir
	return &c
}

// Run executes git with the given arguments and returns trimmed stdout.
// Failures are returned as *CommandError.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	full := r.baseArgs()
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, "git", full...) //nolint:gosec // args are built internally
	cmd.Env = sanitizedEnv(os.Environ())
	if r.dir != "" {
		cmd.Dir = r.dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %w", ErrNotInstalled, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), ctxErr)
		}
		return "", newCommandError(args, stderr.String(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (r *Runner) baseArgs() []string {
	args := []string{"-c", "gc.auto=0", "-c", "core.quotepath=false"}
	if r.gitDir != "" {
		args = append(args, "--git-dir="+r.gitDir)
	}
	if r.workTree != "" {
		args = append(args, "--work-tree="+r.workTree)
	}
	return args
}

func sanitizedEnv(environ []string) []string {
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		key, _, _ := strings.Cut(kv, "=")
		if isOverriding(key) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "GIT_TERMINAL_PROMPT=0")
}

func isOverriding(key string) bool {
	for _, k := range overridingEnv {
		if k == key {
			return true
		}
	}
	return false
}

// RefExists reports whether a fully-qualified ref exists.
// git show-ref exits 1 for "not found" and 128 for fatal errors, so only
// exit code 1 maps to false.
func (r *Runner) RefExists(ctx context.Context, ref string) (bool, error) {
	_, err := r.Run(ctx, "show-ref", "--verify", "--quiet", ref)
	if err == nil {
		return true, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// ConfigGet reads a config value. A missing key yields "" and no error.
func (r *Runner) ConfigGet(ctx context.Context, key string) (string, error) {
	out, err := r.Run(ctx, "config", "--get", key)
	if err == nil {
		return out, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 {
		return "", nil
	}
	return "", err
}

// ConfigSet writes a config value.
func (r *Runner) ConfigSet(ctx context.Context, key, value string) error {
	_, err := r.Run(ctx, "config", key, value)
	return err
}

// ConfigUnset removes a config value. Removing a missing key is not an error.
func (r *Runner) ConfigUnset(ctx context.Context, key string) error {
	_, err := r.Run(ctx, "config", "--unset", key)
	if err == nil {
		return nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode == 5 {
		return nil
	}
	return err
}
