package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/entireio/shadow/cmd/shadow/cli/retry"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// SaveOptions control SaveCheckpoint.
type SaveOptions struct {
	// AllowEmpty records a checkpoint even when nothing changed.
	AllowEmpty bool
	// SuppressMessage is passed through to the CheckpointEvent so listeners
	// can skip user-visible messaging.
	SuppressMessage bool
}

// SaveResult describes a SaveCheckpoint call.
type SaveResult struct {
	// Hash is the new checkpoint, or "" when Skipped.
	Hash string
	// Skipped is true when there was nothing to commit.
	Skipped  bool
	Duration time.Duration
}

// RestoreResult describes a completed RestoreCheckpoint.
type RestoreResult struct {
	Hash     string
	Duration time.Duration
}

// SaveCheckpoint stages the whole workspace and commits it. When nothing
// changed and AllowEmpty is not set, no checkpoint is recorded and the result
// is Skipped with a nil error.
func (e *Engine) SaveCheckpoint(ctx context.Context, message string, opts SaveOptions) (SaveResult, error) {
	repo, err := e.ready()
	if err != nil {
		return SaveResult{}, err
	}
	ctx = e.logCtx(ctx)
	start := time.Now()

	if e.mode == ModeWorkspace {
		if _, err := e.checkoutTaskBranch(ctx, repo); err != nil {
			return SaveResult{}, e.fail(err)
		}
	}

	from := e.lastHash()

	if err := e.stageAll(ctx); err != nil {
		return SaveResult{}, e.fail(err)
	}

	hash, err := commit(repo, message, opts.AllowEmpty)
	if errors.Is(err, git.ErrEmptyCommit) {
		logging.Debug(ctx, "no changes to checkpoint")
		return SaveResult{Skipped: true, Duration: time.Since(start)}, nil
	}
	if err != nil {
		return SaveResult{}, e.fail(fmt.Errorf("failed to commit checkpoint: %w", err))
	}

	to := hash.String()
	e.mu.Lock()
	e.checkpoints = append(e.checkpoints, to)
	e.mu.Unlock()

	duration := time.Since(start)
	logging.Info(ctx, "checkpoint saved",
		slog.String("from", from),
		slog.String("to", to),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)
	e.events.emit(CheckpointEvent{
		FromHash:        from,
		ToHash:          to,
		Duration:        duration,
		SuppressMessage: opts.SuppressMessage,
	})

	return SaveResult{Hash: to, Duration: duration}, nil
}

// RestoreCheckpoint removes untracked files and resets the workspace to hash,
// then drops every later checkpoint from the checkpoint list. The repository
// keeps the dropped commits. A restore that fails after retries leaves the
// workspace in whatever state the last attempt produced.
func (e *Engine) RestoreCheckpoint(ctx context.Context, hash string) (RestoreResult, error) {
	repo, err := e.ready()
	if err != nil {
		return RestoreResult{}, err
	}
	ctx = e.logCtx(ctx)
	start := time.Now()

	if e.mode == ModeWorkspace {
		if _, err := e.checkoutTaskBranch(ctx, repo); err != nil {
			return RestoreResult{}, e.fail(err)
		}
	}

	target, err := resolveCommit(repo, hash)
	if err != nil {
		return RestoreResult{}, e.fail(err)
	}
	full := target.Hash.String()

	if err := e.keepDroppedTip(ctx, repo, target); err != nil {
		return RestoreResult{}, e.fail(err)
	}

	if err := retry.Do(ctx, e.retry, "clean", func(ctx context.Context) error {
		_, err := e.git.Run(ctx, "clean", "-f", "-f", "-d")
		return err //nolint:wrapcheck // wrapped by retry.Do
	}); err != nil {
		return RestoreResult{}, e.fail(fmt.Errorf("failed to restore checkpoint %s: %w", full, err))
	}

	if err := retry.Do(ctx, e.retry, "reset", func(ctx context.Context) error {
		_, err := e.git.Run(ctx, "reset", "--hard", full)
		return err //nolint:wrapcheck // wrapped by retry.Do
	}); err != nil {
		return RestoreResult{}, e.fail(fmt.Errorf("failed to restore checkpoint %s: %w", full, err))
	}

	if !e.truncateTo(full) {
		logging.Warn(ctx, "restored revision is not a tracked checkpoint, checkpoint list unchanged",
			slog.String("hash", full),
		)
	}

	duration := time.Since(start)
	logging.Info(ctx, "checkpoint restored",
		slog.String("hash", full),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)
	e.events.emit(RestoreEvent{Hash: full, Duration: duration})

	return RestoreResult{Hash: full, Duration: duration}, nil
}

// keepDroppedTip points a ref at the current tip when resetting to target
// would leave it unreachable from the branch.
func (e *Engine) keepDroppedTip(ctx context.Context, repo *git.Repository, target *object.Commit) error {
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("failed to read shadow repository HEAD: %w", err)
	}
	if head.Hash() == target.Hash {
		return nil
	}
	tip, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("failed to read shadow repository HEAD: %w", err)
	}
	onBranch, err := tip.IsAncestor(target)
	if err != nil {
		return fmt.Errorf("failed to compare %s with %s: %w", tip.Hash, target.Hash, err)
	}
	if onBranch {
		return nil
	}

	name := plumbing.ReferenceName(paths.DroppedRefNamespace(e.taskID) + tip.Hash.String())
	if err := repo.Storer.SetReference(plumbing.NewHashReference(name, tip.Hash)); err != nil {
		return fmt.Errorf("failed to keep dropped commit %s: %w", tip.Hash, err)
	}
	logging.Debug(ctx, "kept dropped checkpoint tip", slog.String("ref", name.String()))
	return nil
}

// truncateTo drops the checkpoints after hash. Restoring the base revision
// empties the list. Returns false when hash is neither.
func (e *Engine) truncateTo(hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.checkpoints {
		if h == hash {
			e.checkpoints = e.checkpoints[:i+1]
			return true
		}
	}
	if hash == e.baseHash {
		e.checkpoints = nil
		return true
	}
	return false
}

// stageAll stages every change in the workspace, honoring the exclude file.
// Unreadable files are skipped rather than failing the whole add.
func (e *Engine) stageAll(ctx context.Context) error {
	return retry.Do(ctx, e.retry, "stage", func(ctx context.Context) error { //nolint:wrapcheck // retry.Do wraps
		_, err := e.git.Run(ctx, "add", "--all", "--ignore-errors", ".")
		return err //nolint:wrapcheck // wrapped by retry.Do
	})
}

// commit records the staged index. Returns git.ErrEmptyCommit when the tree
// is unchanged and allowEmpty is false.
func commit(repo *git.Repository, message string, allowEmpty bool) (plumbing.Hash, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open worktree: %w", err)
	}
	sig := &object.Signature{Name: authorName, Email: authorEmail, When: time.Now()}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: allowEmpty,
	})
	if err != nil {
		return plumbing.ZeroHash, err //nolint:wrapcheck // callers match git.ErrEmptyCommit
	}
	return hash, nil
}

// resolveCommit resolves a full or abbreviated revision to a commit.
func resolveCommit(repo *git.Repository, rev string) (*object.Commit, error) {
	if rev == "" {
		return nil, errors.New("revision is required")
	}
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint %s: %w", gitcli.ErrUnknownRevision, rev, err)
	}
	c, err := repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %s is not a commit: %w", rev, err)
	}
	return c, nil
}
