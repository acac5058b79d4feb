package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/entireio/shadow/cmd/shadow/cli/shadow"
	"github.com/entireio/shadow/redact"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

func newDiffCmd(a *app) *cobra.Command {
	var (
		from     string
		to       string
		patch    bool
		noRedact bool
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show changes between checkpoints or against the workspace",
		Long: `Show the files that changed between two checkpoints. Without --to the
live workspace is compared. Without --from the comparison starts at the
first checkpoint (in workspace mode, at the parent of --to when given).

Secrets in file content are masked unless --no-redact is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd, func(ctx context.Context, e *shadow.Engine, _ shadow.InitResult) error {
				diffs, err := e.Diff(ctx, shadow.DiffOptions{From: from, To: to})
				if err != nil {
					return fmt.Errorf("failed to diff checkpoints: %w", err)
				}
				w := cmd.OutOrStdout()
				if len(diffs) == 0 {
					fmt.Fprintln(w, "No changes")
					return nil
				}
				for _, d := range diffs {
					if !noRedact {
						d.Before = redact.String(d.Before)
						d.After = redact.String(d.After)
					}
					if patch {
						writePatch(w, d)
					} else {
						writeStat(w, d)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Checkpoint to compare from")
	cmd.Flags().StringVar(&to, "to", "", "Checkpoint to compare to (default live workspace)")
	cmd.Flags().BoolVarP(&patch, "patch", "p", false, "Show line changes instead of a summary")
	cmd.Flags().BoolVar(&noRedact, "no-redact", false, "Show file content without masking secrets")

	return cmd
}

// fileStatus is the one-letter change marker of a diff entry.
func fileStatus(d shadow.FileDiff) string {
	switch {
	case d.Before == "" && d.After != "":
		return "A"
	case d.Before != "" && d.After == "":
		return "D"
	default:
		return "M"
	}
}

func writeStat(w io.Writer, d shadow.FileDiff) {
	added, removed := lineStats(d.Before, d.After)
	fmt.Fprintf(w, "%s %s | +%d -%d\n", fileStatus(d), d.RelativePath, added, removed)
}

func writePatch(w io.Writer, d shadow.FileDiff) {
	fmt.Fprintf(w, "--- a/%s\n+++ b/%s\n", d.RelativePath, d.RelativePath)
	for _, diff := range diffLines(d.Before, d.After) {
		prefix := " "
		switch diff.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffEqual:
		}
		for _, line := range splitLines(diff.Text) {
			fmt.Fprintf(w, "%s%s\n", prefix, line)
		}
	}
}

// diffLines returns a line-level diff of before and after.
func diffLines(before, after string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	text1, text2, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(text1, text2, false)
	return dmp.DiffCharsToLines(diffs, lineArray)
}

// lineStats counts added and removed lines between before and after.
func lineStats(before, after string) (added, removed int) {
	if before == after {
		return 0, 0
	}
	for _, d := range diffLines(before, after) {
		n := len(splitLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		case diffmatchpatch.DiffEqual:
		}
	}
	return added, removed
}

// splitLines splits s into lines without their terminators. A trailing
// newline does not start an extra line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}
