package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/entireio/shadow/cmd/shadow/cli/lifecycle"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/entireio/shadow/cmd/shadow/cli/retry"
	"github.com/entireio/shadow/cmd/shadow/cli/settings"
	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/entireio/shadow/cmd/shadow/cli/validation"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// app carries the state shared by every command of one invocation.
type app struct {
	storageDirFlag string
	workspaceFlag  string
	taskID         string
	modeFlag       string
	logLevelFlag   string

	storageRoot string
	workspace   string
	settings    *settings.Settings
	manager     *lifecycle.Manager
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&a.storageDirFlag, "storage-dir", "", "Storage root (default $SHADOW_STORAGE_DIR or the user config dir)")
	fs.StringVarP(&a.workspaceFlag, "workspace", "w", "", "Workspace directory (default current directory)")
	fs.StringVarP(&a.taskID, "task", "t", "", "Task ID that owns the checkpoints")
	fs.StringVar(&a.modeFlag, "mode", "", `Repository layout: "task" or "workspace" (overrides settings)`)
	fs.StringVar(&a.logLevelFlag, "log-level", "", "Log level: debug, info, warn or error (overrides settings)")
}

// setup resolves paths and settings. It runs before every command.
func (a *app) setup(cmd *cobra.Command) error {
	root, err := a.resolveStorageRoot()
	if err != nil {
		return err
	}
	a.storageRoot = root

	ws := a.workspaceFlag
	if ws == "" {
		if ws, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	if a.workspace, err = paths.NormalizeDir(ws); err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	s, err := settings.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err := s.ApplyFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	a.settings = s
	a.manager = lifecycle.NewManager()

	logging.SetLogLevelGetter(func() string { return s.LogLevel })
	if a.taskID != "" {
		if err := validation.ValidateTaskID(a.taskID); err != nil {
			return err //nolint:wrapcheck // already names the task ID
		}
		if err := logging.Init(root, a.taskID); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
	}
	return nil
}

func (a *app) resolveStorageRoot() (string, error) {
	if a.storageDirFlag != "" {
		root, err := paths.NormalizeDir(a.storageDirFlag)
		if err != nil {
			return "", fmt.Errorf("invalid storage dir: %w", err)
		}
		return root, nil
	}
	root, err := paths.DefaultStorageRoot()
	if err != nil {
		return "", err //nolint:wrapcheck // already descriptive
	}
	return root, nil
}

func (a *app) requireTask() error {
	if a.taskID == "" {
		return errors.New("a task ID is required (use --task)")
	}
	return nil
}

func (a *app) mode() (shadow.Mode, error) {
	m, err := shadow.ParseMode(a.settings.Mode)
	if err != nil {
		return "", fmt.Errorf("invalid mode: %w", err)
	}
	return m, nil
}

func (a *app) retryPolicy() retry.Policy {
	return retry.Policy{
		Attempts: a.settings.LockRetryAttempts,
		Delay:    a.settings.LockRetryDelay(),
	}
}

// newEngine builds and registers an engine for the current task without
// touching disk.
func (a *app) newEngine(ctx context.Context) (*shadow.Engine, error) {
	if err := a.requireTask(); err != nil {
		return nil, err
	}
	mode, err := a.mode()
	if err != nil {
		return nil, err
	}
	e, err := shadow.New(shadow.Options{
		TaskID:        a.taskID,
		WorkspaceDir:  a.workspace,
		StorageRoot:   a.storageRoot,
		Mode:          mode,
		ExtraExcludes: a.settings.ExtraExcludes,
		Retry:         a.retryPolicy(),
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // already descriptive
	}
	a.manager.Register(ctx, a.taskID, e)
	return e, nil
}

// withEngine initializes the task's engine, runs fn and disposes every
// engine afterwards, whether fn failed or not.
func (a *app) withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *shadow.Engine, initRes shadow.InitResult) error) (err error) {
	ctx := logging.WithComponent(cmd.Context(), "cli")
	defer func() {
		err = errors.Join(err, a.shutdown(ctx))
	}()

	e, err := a.newEngine(ctx)
	if err != nil {
		return err
	}
	initRes, err := e.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize checkpoints: %w", err)
	}
	return fn(ctx, e, initRes)
}

// shutdown disposes every registered engine and flushes logs.
func (a *app) shutdown(ctx context.Context) error {
	defer logging.Close()
	if a.manager == nil {
		return nil
	}
	if err := a.manager.DisposeAll(context.WithoutCancel(ctx)); err != nil {
		logging.Warn(ctx, "failed to dispose engines", slog.String("error", err.Error()))
		return fmt.Errorf("failed to release checkpoint storage: %w", err)
	}
	return nil
}
