package cli

import (
	"errors"
	"fmt"

	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/spf13/cobra"
)

func newDeleteTaskCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete-task",
		Short: "Delete every checkpoint of a task",
		Long: `Delete the task's checkpoints. In task mode the task's shadow repository
is removed. In workspace mode the task's branch is deleted from the
workspace's shared repository. The workspace itself is never modified.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := logging.WithComponent(cmd.Context(), "cli")
			defer func() {
				err = errors.Join(err, a.shutdown(ctx))
			}()

			if err := a.requireTask(); err != nil {
				return err
			}
			mode, err := a.mode()
			if err != nil {
				return err
			}

			ok, err := confirmDestructive(cmd.ErrOrStderr(), force,
				"Delete all checkpoints of task "+a.taskID+"?",
				"This cannot be undone.")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "Delete cancelled")
				return nil
			}

			err = shadow.DeleteTask(ctx, shadow.DeleteTaskOptions{
				TaskID:           a.taskID,
				StorageRoot:      a.storageRoot,
				WorkspaceDir:     a.workspace,
				Mode:             mode,
				CheckoutTimeout:  a.settings.CheckoutTimeout(),
				CheckoutInterval: a.settings.CheckoutInterval(),
				Retry:            a.retryPolicy(),
			})
			w := cmd.OutOrStdout()
			switch {
			case errors.Is(err, shadow.ErrNoCheckpoints), errors.Is(err, shadow.ErrBranchNotFound):
				fmt.Fprintf(w, "No checkpoints stored for task %s\n", a.taskID)
				return nil
			case err != nil:
				return fmt.Errorf("failed to delete checkpoints: %w", err)
			}
			fmt.Fprintf(w, "Deleted checkpoints of task %s\n", a.taskID)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without asking for confirmation")

	return cmd
}
