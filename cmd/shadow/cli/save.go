package cli

import (
	"context"
	"fmt"

	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/spf13/cobra"
)

const defaultSaveMessage = "checkpoint"

func newSaveCmd(a *app) *cobra.Command {
	var (
		message    string
		allowEmpty bool
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a checkpoint of the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *shadow.Engine, _ shadow.InitResult) error {
				res, err := e.SaveCheckpoint(ctx, message, shadow.SaveOptions{
					AllowEmpty:      allowEmpty,
					SuppressMessage: quiet,
				})
				if err != nil {
					return fmt.Errorf("failed to save checkpoint: %w", err)
				}
				w := cmd.OutOrStdout()
				if res.Skipped {
					fmt.Fprintln(w, "No changes to save")
					return nil
				}
				if quiet {
					fmt.Fprintln(w, res.Hash)
					return nil
				}
				fmt.Fprintf(w, "Saved checkpoint %s (%d total)\n", res.Hash, len(e.Checkpoints()))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", defaultSaveMessage, "Checkpoint message")
	cmd.Flags().BoolVar(&allowEmpty, "allow-empty", false, "Save even when nothing changed")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Print only the checkpoint hash")

	return cmd
}
