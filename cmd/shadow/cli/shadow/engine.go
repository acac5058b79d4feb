// Package shadow implements checkpoints of a workspace stored in a hidden git
// repository.
//
// The shadow repository keeps its metadata under a storage directory outside
// the workspace and points core.worktree at the workspace, so it tracks the
// same files as any repository the user keeps there without touching it.
//
// Each Engine belongs to one task. Engines do not serialize their own
// operations: callers must not run Save, Restore and Diff concurrently on the
// same Engine.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/entireio/shadow/cmd/shadow/cli/gitcli"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/nested"
	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/entireio/shadow/cmd/shadow/cli/retry"
	"github.com/entireio/shadow/cmd/shadow/cli/validation"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Mode selects how shadow repositories are laid out in the storage root.
type Mode string

const (
	// ModeTask keeps one shadow repository per task under tasks/<id>/checkpoints.
	ModeTask Mode = "task"
	// ModeWorkspace shares one repository per workspace under
	// checkpoints/<hash>, isolating each task on branch shadow-<id>.
	ModeWorkspace Mode = "workspace"
)

// ParseMode converts a settings value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTask, ModeWorkspace:
		return Mode(s), nil
	case "":
		return ModeTask, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// State is the lifecycle state of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateDisposed:
		return "disposed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Identity recorded on every shadow commit.
const (
	authorName           = "Shadow"
	authorEmail          = "noreply@shadow.local"
	initialCommitMessage = "initial commit"
)

// Options configure a new Engine.
type Options struct {
	// TaskID identifies the owning task. Required.
	TaskID string
	// WorkspaceDir is the absolute path of the tracked directory. Required.
	WorkspaceDir string
	// StorageRoot is the global storage root. Required.
	StorageRoot string
	// Mode defaults to ModeTask.
	Mode Mode
	// ExtraExcludes are appended to the built-in exclude patterns.
	ExtraExcludes []string
	// HomeDir is used for the protected directory check.
	// Defaults to os.UserHomeDir().
	HomeDir string
	// Searcher backs nested repository detection. Defaults to nested.WalkSearcher.
	Searcher nested.Searcher
	// Retry bounds retries of git mutations under lock contention.
	// The zero value uses retry defaults.
	Retry retry.Policy
}

// Engine captures, restores and diffs checkpoints of one workspace for one task.
type Engine struct {
	taskID       string
	workspaceDir string
	storageDir   string
	gitDir       string
	mode         Mode
	extra        []string
	homeDir      string
	searcher     nested.Searcher
	retry        retry.Policy
	git          *gitcli.Runner

	mu          sync.Mutex
	state       State
	repo        *git.Repository
	storage     *filesystem.Storage
	baseHash    string
	checkpoints []string

	events subscribers
}

// New validates opts and returns an uninitialized Engine.
func New(opts Options) (*Engine, error) {
	if err := validation.ValidateTaskID(opts.TaskID); err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	if err := validation.ValidateWorkspaceDir(opts.WorkspaceDir); err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	if opts.StorageRoot == "" {
		return nil, errors.New("storage root is required")
	}
	workspace, err := paths.NormalizeDir(opts.WorkspaceDir)
	if err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}

	home := opts.HomeDir
	if home == "" {
		// A missing home only disables the protected directory check
		home, _ = os.UserHomeDir()
	}

	var storageDir string
	switch mode {
	case ModeWorkspace:
		storageDir = paths.WorkspaceCheckpointsDir(opts.StorageRoot, workspace)
	default:
		storageDir = paths.TaskCheckpointsDir(opts.StorageRoot, opts.TaskID)
	}
	gitDir := paths.GitDir(storageDir)

	return &Engine{
		taskID:       opts.TaskID,
		workspaceDir: workspace,
		storageDir:   storageDir,
		gitDir:       gitDir,
		mode:         mode,
		extra:        append([]string(nil), opts.ExtraExcludes...),
		homeDir:      home,
		searcher:     opts.Searcher,
		retry:        opts.Retry,
		git:          gitcli.New(gitDir, workspace).WithDir(workspace),
	}, nil
}

// TaskID returns the owning task's identifier.
func (e *Engine) TaskID() string { return e.taskID }

// WorkspaceDir returns the tracked workspace.
func (e *Engine) WorkspaceDir() string { return e.workspaceDir }

// StorageDir returns the directory holding the shadow repository.
func (e *Engine) StorageDir() string { return e.storageDir }

// Mode returns the repository layout mode.
func (e *Engine) Mode() Mode { return e.mode }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// BaseHash returns the revision checkpoints are anchored to, or "" before
// initialization.
func (e *Engine) BaseHash() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseHash
}

// Checkpoints returns a copy of the checkpoint hashes in creation order.
func (e *Engine) Checkpoints() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.checkpoints))
	copy(out, e.checkpoints)
	return out
}

// Subscribe registers l for all engine events and returns a function that
// removes it.
func (e *Engine) Subscribe(l Listener) func() {
	return e.events.add(l)
}

// Dispose releases the repository handle, removes every subscription and
// clears the checkpoint list. Every step runs even if an earlier one fails;
// the first failure is returned. Calling Dispose again is a no-op.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return nil
	}
	storage := e.storage
	e.state = StateDisposed
	e.repo = nil
	e.storage = nil
	e.checkpoints = nil
	e.mu.Unlock()

	var first error
	if storage != nil {
		if err := storage.Close(); err != nil {
			first = fmt.Errorf("failed to close shadow repository %s: %w", e.gitDir, err)
		}
	}
	e.events.clear()

	logging.Debug(e.logCtx(context.Background()), "shadow engine disposed")
	return first
}

// ready returns the repository when the engine can serve operations.
func (e *Engine) ready() (*git.Repository, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateReady:
		return e.repo, nil
	case StateDisposed:
		return nil, ErrDisposed
	case StateFailed:
		return nil, ErrInitFailed
	default:
		return nil, ErrNotInitialized
	}
}

func (e *Engine) lastHash() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := len(e.checkpoints); n > 0 {
		return e.checkpoints[n-1]
	}
	return e.baseHash
}

func (e *Engine) logCtx(ctx context.Context) context.Context {
	ctx = logging.WithTask(ctx, e.taskID)
	ctx = logging.WithWorkspace(ctx, e.workspaceDir)
	return logging.WithComponent(ctx, "shadow")
}

// fail publishes an ErrorEvent for err and returns it.
func (e *Engine) fail(err error) error {
	e.events.emit(ErrorEvent{Err: err})
	return err
}
