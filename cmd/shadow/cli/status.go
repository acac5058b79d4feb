package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/entireio/shadow/cmd/shadow/cli/jsonutil"
	"github.com/entireio/shadow/cmd/shadow/cli/lifecycle"
	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/paths"
	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/spf13/cobra"
)

type statusReport struct {
	StorageRoot  string              `json:"storage_root"`
	WorkspaceDir string              `json:"workspace_dir"`
	Mode         string              `json:"mode"`
	TaskID       string              `json:"task_id,omitempty"`
	StorageDir   string              `json:"storage_dir,omitempty"`
	TaskBranch   string              `json:"task_branch,omitempty"`
	Initialized  bool                `json:"initialized"`
	Engines      *lifecycle.Snapshot `json:"engines,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show where checkpoints for the workspace are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := logging.WithComponent(cmd.Context(), "cli")
			defer func() {
				err = errors.Join(err, a.shutdown(ctx))
			}()

			report := statusReport{
				StorageRoot:  a.storageRoot,
				WorkspaceDir: a.workspace,
				Mode:         a.settings.Mode,
				TaskID:       a.taskID,
			}

			if a.taskID != "" {
				e, err := a.newEngine(ctx)
				if err != nil {
					return err
				}
				report.StorageDir = e.StorageDir()
				if e.Mode() == shadow.ModeWorkspace {
					report.TaskBranch = e.TaskBranch()
				}
				report.Initialized, err = dirExists(paths.GitDir(e.StorageDir()))
				if err != nil {
					return err
				}
				snap := a.manager.Snapshot()
				report.Engines = &snap
			}

			if asJSON {
				return jsonutil.Write(cmd.OutOrStdout(), report) //nolint:wrapcheck // already descriptive
			}
			writeStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func writeStatus(w io.Writer, r statusReport) {
	fmt.Fprintf(w, "Storage root: %s\n", r.StorageRoot)
	fmt.Fprintf(w, "Workspace:    %s\n", r.WorkspaceDir)
	fmt.Fprintf(w, "Mode:         %s\n", r.Mode)
	if r.TaskID == "" {
		fmt.Fprintln(w, "No task selected (use --task to show its repository)")
		return
	}
	fmt.Fprintf(w, "Task:         %s\n", r.TaskID)
	fmt.Fprintf(w, "Repository:   %s\n", r.StorageDir)
	if r.TaskBranch != "" {
		fmt.Fprintf(w, "Branch:       %s\n", r.TaskBranch)
	}
	if r.Initialized {
		fmt.Fprintln(w, "✓ shadow repository exists")
	} else {
		fmt.Fprintln(w, "○ not initialized (run `shadow init` to create it)")
	}
}

func dirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot access %s: %w", path, err)
	}
	return info.IsDir(), nil
}
