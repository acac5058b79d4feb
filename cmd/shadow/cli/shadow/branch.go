package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// TaskBranch returns the branch that holds this engine's checkpoints in
// workspace mode.
func (e *Engine) TaskBranch() string {
	return paths.TaskBranchName(e.taskID)
}

// checkoutTaskBranch points HEAD at the task branch, creating the branch at
// the current HEAD if it does not exist yet, and returns the branch tip.
//
// Only HEAD moves. The workspace and index are left alone: every save and
// diff restages the whole workspace, so the next checkpoint on this branch
// records the workspace as it is.
func (e *Engine) checkoutTaskBranch(ctx context.Context, repo *git.Repository) (string, error) {
	branch := plumbing.NewBranchReferenceName(e.TaskBranch())

	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", fmt.Errorf("failed to read shadow repository HEAD: %w", err)
	}

	tip, err := repo.Reference(branch, true)
	switch {
	case err == nil:
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		current, err := repo.Head()
		if err != nil {
			return "", fmt.Errorf("failed to resolve HEAD for branch %s: %w", branch.Short(), err)
		}
		tip = plumbing.NewHashReference(branch, current.Hash())
		if err := repo.Storer.SetReference(tip); err != nil {
			return "", fmt.Errorf("failed to create branch %s: %w", branch.Short(), err)
		}
		logging.Debug(ctx, "created task branch",
			slog.String("branch", branch.Short()),
			slog.String("at", current.Hash().String()),
		)
	default:
		return "", fmt.Errorf("failed to read branch %s: %w", branch.Short(), err)
	}

	if head.Type() == plumbing.SymbolicReference && head.Target() == branch {
		return tip.Hash().String(), nil
	}

	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, branch)); err != nil {
		return "", fmt.Errorf("failed to switch to branch %s: %w", branch.Short(), err)
	}
	logging.Debug(ctx, "switched to task branch", slog.String("branch", branch.Short()))
	return tip.Hash().String(), nil
}
