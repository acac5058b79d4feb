package shadow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/excludes"
	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/nested"
	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/format/config"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// InitResult describes a completed Initialize.
type InitResult struct {
	// Created is true when a new shadow repository was created, false when
	// an existing one was reattached.
	Created  bool
	Duration time.Duration
}

// Initialize creates the shadow repository for the workspace, or reattaches
// to an existing one. It may be called once per Engine; an Engine whose
// initialization failed must be discarded.
func (e *Engine) Initialize(ctx context.Context) (InitResult, error) {
	e.mu.Lock()
	switch e.state {
	case StateUninitialized:
	case StateDisposed:
		e.mu.Unlock()
		return InitResult{}, ErrDisposed
	case StateFailed:
		e.mu.Unlock()
		return InitResult{}, ErrInitFailed
	default:
		e.mu.Unlock()
		return InitResult{}, ErrAlreadyInitialized
	}
	e.state = StateInitializing
	e.mu.Unlock()

	ctx = e.logCtx(ctx)
	start := time.Now()

	repo, storage, base, created, err := e.initialize(ctx)
	if err != nil {
		e.mu.Lock()
		if e.state == StateInitializing {
			e.state = StateFailed
		}
		e.mu.Unlock()
		logging.Error(ctx, "shadow repository initialization failed", slog.String("error", err.Error()))
		return InitResult{}, err
	}

	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		_ = storage.Close() //nolint:errcheck // engine already disposed
		return InitResult{}, ErrDisposed
	}
	e.repo = repo
	e.storage = storage
	e.baseHash = base
	e.checkpoints = nil
	e.state = StateReady
	e.mu.Unlock()

	duration := time.Since(start)
	logging.Info(ctx, "shadow repository ready",
		slog.String("storage_dir", e.storageDir),
		slog.String("base_hash", base),
		slog.Bool("created", created),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)
	e.events.emit(InitializeEvent{
		WorkspaceDir: e.workspaceDir,
		BaseHash:     base,
		Created:      created,
		Duration:     duration,
	})

	return InitResult{Created: created, Duration: duration}, nil
}

func (e *Engine) initialize(ctx context.Context) (*git.Repository, *filesystem.Storage, string, bool, error) {
	if paths.IsProtectedDir(e.workspaceDir, e.homeDir) {
		return nil, nil, "", false, fmt.Errorf("%w: %s", ErrProtectedDirectory, e.workspaceDir)
	}

	if err := gitcli.CheckVersion(ctx); err != nil {
		return nil, nil, "", false, fmt.Errorf("git is required for checkpoints: %w", err)
	}

	patterns := excludes.Patterns(e.workspaceDir, e.extra...)

	detector := nested.NewDetector(e.searcher, patterns)
	if found, ok := detector.Find(ctx, e.workspaceDir); ok {
		rel := paths.ToRelativePath(found, e.workspaceDir)
		return nil, nil, "", false, fmt.Errorf("%w: %s (remove or move it out of the workspace to enable checkpoints)", ErrNestedRepository, rel)
	}

	if _, err := os.Stat(e.gitDir); err == nil {
		repo, storage, base, err := e.reattach(ctx, patterns)
		return repo, storage, base, false, err
	} else if !os.IsNotExist(err) {
		return nil, nil, "", false, fmt.Errorf("failed to stat %s: %w", e.gitDir, err)
	}

	repo, storage, base, err := e.create(ctx, patterns)
	return repo, storage, base, true, err
}

// reattach opens an existing shadow repository after a restart.
func (e *Engine) reattach(ctx context.Context, patterns []string) (*git.Repository, *filesystem.Storage, string, error) {
	storage := newStorage(e.gitDir)
	repo, err := git.Open(storage, osfs.New(e.workspaceDir))
	if err != nil {
		_ = storage.Close() //nolint:errcheck // returning the open error
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil, "", fmt.Errorf("%w: %s", gitcli.ErrNotRepository, e.gitDir)
		}
		return nil, nil, "", fmt.Errorf("failed to open shadow repository %s: %w", e.gitDir, err)
	}

	cleanup := func(err error) (*git.Repository, *filesystem.Storage, string, error) {
		_ = storage.Close() //nolint:errcheck // returning the original error
		return nil, nil, "", err
	}

	cfg, err := repo.Config()
	if err != nil {
		return cleanup(fmt.Errorf("failed to read shadow repository config: %w", err))
	}
	if bound := cfg.Core.Worktree; filepath.Clean(bound) != e.workspaceDir {
		return cleanup(fmt.Errorf("%w: %s is bound to %q, expected %q", ErrWorktreeMismatch, e.storageDir, bound, e.workspaceDir))
	}

	if err := excludes.WriteFile(paths.ExcludeFile(e.storageDir), patterns); err != nil {
		return cleanup(err)
	}

	head, err := repo.Head()
	switch {
	case err == nil:
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// Interrupted before the initial commit
		logging.Warn(ctx, "shadow repository has no commits, recreating initial commit")
		if err := e.stageAll(ctx); err != nil {
			return cleanup(err)
		}
		hash, err := commit(repo, initialCommitMessage, true)
		if err != nil {
			return cleanup(fmt.Errorf("failed to create initial commit: %w", err))
		}
		head = plumbing.NewHashReference(plumbing.HEAD, hash)
	default:
		return cleanup(fmt.Errorf("failed to read shadow repository HEAD: %w", err))
	}

	base := head.Hash().String()
	if e.mode == ModeWorkspace {
		if base, err = e.checkoutTaskBranch(ctx, repo); err != nil {
			return cleanup(err)
		}
	}
	return repo, storage, base, nil
}

// create initializes a new shadow repository and records the initial commit.
func (e *Engine) create(ctx context.Context, patterns []string) (repo *git.Repository, storage *filesystem.Storage, base string, err error) {
	if err := os.MkdirAll(e.storageDir, 0o750); err != nil {
		return nil, nil, "", fmt.Errorf("failed to create storage directory %s: %w", e.storageDir, err)
	}

	storage = newStorage(e.gitDir)
	defer func() {
		if err != nil {
			_ = storage.Close() //nolint:errcheck // returning the original error
			// Leave no half-created repository that a restart would reattach to
			_ = os.RemoveAll(e.gitDir) //nolint:errcheck // best effort
		}
	}()

	// Initialize bare so go-git does not write a .git file into the
	// workspace, then bind the work tree through core.worktree.
	bare, err := git.Init(storage, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to init shadow repository %s: %w", e.gitDir, err)
	}
	cfg, err := bare.Config()
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to read shadow repository config: %w", err)
	}
	cfg.Core.IsBare = false
	cfg.Core.Worktree = e.workspaceDir
	cfg.User.Name = authorName
	cfg.User.Email = authorEmail
	if cfg.Raw == nil {
		cfg.Raw = config.New()
	}
	cfg.Raw.Section("commit").SetOption("gpgsign", "false")
	if err := bare.SetConfig(cfg); err != nil {
		return nil, nil, "", fmt.Errorf("failed to write shadow repository config: %w", err)
	}

	repo, err = git.Open(storage, osfs.New(e.workspaceDir))
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to open shadow repository %s: %w", e.gitDir, err)
	}

	if err := excludes.WriteFile(paths.ExcludeFile(e.storageDir), patterns); err != nil {
		return nil, nil, "", err
	}

	if err := e.stageAll(ctx); err != nil {
		return nil, nil, "", err
	}
	hash, err := commit(repo, initialCommitMessage, true)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create initial commit: %w", err)
	}
	base = hash.String()

	if e.mode == ModeWorkspace {
		if base, err = e.checkoutTaskBranch(ctx, repo); err != nil {
			return nil, nil, "", err
		}
	}

	logging.Debug(ctx, "created shadow repository",
		slog.String("git_dir", e.gitDir),
		slog.String("initial_commit", hash.String()),
	)
	return repo, storage, base, nil
}

func newStorage(gitDir string) *filesystem.Storage {
	return filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
}
