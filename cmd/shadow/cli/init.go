package cli

import (
	"context"
	"fmt"

	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or reattach the shadow repository for a task",
		Long: `Create the shadow repository for the task and record the workspace's
current content as the base checkpoint. Running init again reattaches to
the existing repository.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(_ context.Context, e *shadow.Engine, res shadow.InitResult) error {
				w := cmd.OutOrStdout()
				verb := "Reattached to"
				if res.Created {
					verb = "Created"
				}
				fmt.Fprintf(w, "%s shadow repository at %s\n", verb, e.StorageDir())
				fmt.Fprintf(w, "Base checkpoint: %s\n", e.BaseHash())
				if e.Mode() == shadow.ModeWorkspace {
					fmt.Fprintf(w, "Task branch: %s\n", e.TaskBranch())
				}
				return nil
			})
		},
	}
}
