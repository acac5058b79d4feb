package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entireio/shadow/cmd/shadow/cli/jsonutil"
	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/spf13/cobra"
)

type logEntry struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	When    time.Time `json:"when"`
	Tracked bool      `json:"tracked"`
}

func newLogCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List the task's checkpoints, newest first",
		Long: `List the commits of the task's shadow history, newest first. Commits
marked with * are in the task's current checkpoint list. The others were
dropped by a restore and stay reachable under refs/shadow/dropped/, so they
can still be diffed or restored by hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *shadow.Engine, _ shadow.InitResult) error {
				history, err := e.History(ctx)
				if err != nil {
					return fmt.Errorf("failed to read history: %w", err)
				}
				w := cmd.OutOrStdout()

				if asJSON {
					entries := make([]logEntry, 0, len(history))
					for _, c := range history {
						entries = append(entries, logEntry(c))
					}
					return jsonutil.Write(w, entries) //nolint:wrapcheck // already descriptive
				}

				for _, c := range history {
					marker := " "
					if c.Tracked {
						marker = "*"
					}
					fmt.Fprintf(w, "%s %s  %s  %s\n", marker, shortHash(c.Hash), c.When.Local().Format(time.DateTime), strings.TrimSpace(c.Message))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func shortHash(hash string) string {
	const n = 12
	if len(hash) <= n {
		return hash
	}
	return hash[:n]
}
