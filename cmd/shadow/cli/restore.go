package cli

import (
	"context"
	"fmt"

	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/spf13/cobra"
)

func newRestoreCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <checkpoint>",
		Short: "Restore the workspace to a checkpoint",
		Long: `Reset every tracked file in the workspace to its content at the checkpoint
and remove files created since. Excluded files are left alone. Checkpoints
saved after the restored one are dropped from the task's list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := args[0]
			ok, err := confirmDestructive(cmd.ErrOrStderr(), force,
				"Restore workspace to checkpoint "+hash+"?",
				"Uncommitted changes in the workspace will be lost.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "Restore cancelled")
				return nil
			}

			return a.withEngine(cmd, func(ctx context.Context, e *shadow.Engine, _ shadow.InitResult) error {
				res, err := e.RestoreCheckpoint(ctx, hash)
				if err != nil {
					return fmt.Errorf("failed to restore checkpoint: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored workspace to %s\n", res.Hash)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Restore without asking for confirmation")

	return cmd
}
