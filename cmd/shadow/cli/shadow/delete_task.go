package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/entireio/shadow/cmd/shadow/cli/retry"
	"github.com/entireio/shadow/cmd/shadow/cli/validation"
)

// Defaults for waiting on the fallback checkout in DeleteTask.
const (
	DefaultCheckoutTimeout  = 2 * time.Second
	DefaultCheckoutInterval = 500 * time.Millisecond
)

// ErrNoCheckpoints is returned by DeleteTask in task mode when the task has
// no shadow repository.
var ErrNoCheckpoints = errors.New("no checkpoints stored for task")

// DeleteTaskOptions identify the task whose checkpoints are deleted.
type DeleteTaskOptions struct {
	TaskID       string
	StorageRoot  string
	WorkspaceDir string
	Mode         Mode

	// CheckoutTimeout bounds the wait for the fallback branch checkout.
	CheckoutTimeout time.Duration
	// CheckoutInterval is the poll interval for that wait.
	CheckoutInterval time.Duration
	Retry            retry.Policy
}

// DeleteTask deletes a task's checkpoints. In task mode the task's shadow
// repository is removed. In workspace mode the task branch is deleted from
// the workspace's shared repository; ErrBranchNotFound is returned when it
// does not exist.
//
// No Engine for the task may be live while DeleteTask runs.
func DeleteTask(ctx context.Context, opts DeleteTaskOptions) error {
	if err := validation.ValidateTaskID(opts.TaskID); err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	if opts.StorageRoot == "" {
		return errors.New("storage root is required")
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return err
	}

	ctx = logging.WithComponent(logging.WithTask(ctx, opts.TaskID), "shadow")

	if mode == ModeTask {
		return deleteTaskRepository(ctx, paths.TaskCheckpointsDir(opts.StorageRoot, opts.TaskID))
	}

	workspace, err := paths.NormalizeDir(opts.WorkspaceDir)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	storageDir := paths.WorkspaceCheckpointsDir(opts.StorageRoot, workspace)
	return deleteTaskBranch(ctx, storageDir, paths.TaskBranchName(opts.TaskID), opts)
}

func deleteTaskRepository(ctx context.Context, storageDir string) error {
	if _, err := os.Stat(storageDir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoCheckpoints, storageDir)
		}
		return fmt.Errorf("failed to stat %s: %w", storageDir, err)
	}
	if err := os.RemoveAll(storageDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", storageDir, err)
	}
	logging.Info(ctx, "deleted task shadow repository", slog.String("storage_dir", storageDir))
	return nil
}

// deleteTaskBranch deletes branch from the shadow repository in storageDir.
//
// A branch cannot be deleted while checked out. In that case the work tree
// binding is removed first so reset, clean and checkout act on the storage
// directory instead of the user's workspace, and it is restored afterwards
// whatever happens.
func deleteTaskBranch(ctx context.Context, storageDir, branch string, opts DeleteTaskOptions) (err error) {
	gitDir := paths.GitDir(storageDir)
	if _, statErr := os.Stat(gitDir); statErr != nil {
		if os.IsNotExist(statErr) {
			return fmt.Errorf("%w: %s (no shadow repository for this workspace)", ErrBranchNotFound, branch)
		}
		return fmt.Errorf("failed to stat %s: %w", gitDir, statErr)
	}

	timeout := opts.CheckoutTimeout
	if timeout <= 0 {
		timeout = DefaultCheckoutTimeout
	}
	interval := opts.CheckoutInterval
	if interval <= 0 {
		interval = DefaultCheckoutInterval
	}

	g := gitcli.New(gitDir, "").WithDir(storageDir)

	exists, err := g.RefExists(ctx, "refs/heads/"+branch)
	if err != nil {
		return fmt.Errorf("failed to check branch %s: %w", branch, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}

	current, err := g.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return fmt.Errorf("failed to read current branch: %w", err)
	}

	if current == branch {
		worktree, cfgErr := g.ConfigGet(ctx, "core.worktree")
		if cfgErr != nil {
			return fmt.Errorf("failed to read core.worktree: %w", cfgErr)
		}
		if err := g.ConfigUnset(ctx, "core.worktree"); err != nil {
			return fmt.Errorf("failed to detach work tree: %w", err)
		}
		defer func() {
			if worktree == "" {
				return
			}
			if restoreErr := g.ConfigSet(context.WithoutCancel(ctx), "core.worktree", worktree); restoreErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to restore core.worktree to %s: %w", worktree, restoreErr))
			}
		}()

		if err := switchAwayFrom(ctx, g, opts.Retry, timeout, interval); err != nil {
			return fmt.Errorf("failed to leave branch %s: %w", branch, err)
		}
	}

	if err := retry.Do(ctx, opts.Retry, "branch -D", func(ctx context.Context) error {
		_, err := g.Run(ctx, "branch", "-D", "--", branch)
		return err //nolint:wrapcheck // wrapped by retry.Do
	}); err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", branch, err)
	}
	if err := deleteDroppedRefs(ctx, g, opts.TaskID); err != nil {
		return err
	}

	logging.Info(ctx, "deleted task branch",
		slog.String("branch", branch),
		slog.String("storage_dir", storageDir),
	)
	return nil
}

// deleteDroppedRefs removes the refs keeping a task's restore-dropped commits.
func deleteDroppedRefs(ctx context.Context, g *gitcli.Runner, taskID string) error {
	out, err := g.Run(ctx, "for-each-ref", "--format=%(refname)", paths.DroppedRefNamespace(taskID))
	if err != nil {
		return fmt.Errorf("failed to list dropped refs: %w", err)
	}
	for _, ref := range strings.Fields(out) {
		if _, err := g.Run(ctx, "update-ref", "-d", ref); err != nil {
			return fmt.Errorf("failed to delete %s: %w", ref, err)
		}
	}
	return nil
}

// switchAwayFrom resets and cleans the detached work tree, force-checks out
// main (or master) and waits until HEAD reports it.
func switchAwayFrom(ctx context.Context, g *gitcli.Runner, policy retry.Policy, timeout, interval time.Duration) error {
	if err := retry.Do(ctx, policy, "reset", func(ctx context.Context) error {
		_, err := g.Run(ctx, "reset", "--hard")
		return err //nolint:wrapcheck // wrapped by retry.Do
	}); err != nil {
		return err //nolint:wrapcheck // wrapped by retry.Do
	}
	if err := retry.Do(ctx, policy, "clean", func(ctx context.Context) error {
		_, err := g.Run(ctx, "clean", "-f", "-d")
		return err //nolint:wrapcheck // wrapped by retry.Do
	}); err != nil {
		return err //nolint:wrapcheck // wrapped by retry.Do
	}

	fallback := "master"
	hasMain, err := g.RefExists(ctx, "refs/heads/main")
	if err != nil {
		return fmt.Errorf("failed to check branch main: %w", err)
	}
	if hasMain {
		fallback = "main"
	}

	if err := retry.Do(ctx, policy, "checkout", func(ctx context.Context) error {
		_, err := g.Run(ctx, "checkout", "--force", fallback)
		return err //nolint:wrapcheck // wrapped by retry.Do
	}); err != nil {
		return err //nolint:wrapcheck // wrapped by retry.Do
	}

	return waitForBranch(ctx, g, fallback, timeout, interval)
}

// waitForBranch polls until HEAD names branch or timeout elapses.
func waitForBranch(ctx context.Context, g *gitcli.Runner, branch string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		current, err := g.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
		if err == nil && current == branch {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out after %s waiting for checkout of %s", timeout, branch)
		case <-ticker.C:
		}
	}
}
