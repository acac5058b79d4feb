package cli

import (
	"fmt"
	"runtime"

	"github.com/entireio/shadow/cmd/shadow/cli/logging"
	"github.com/entireio/shadow/cmd/shadow/cli/telemetry"
	"github.com/spf13/cobra"
)

const storageHelp = `

Checkpoints are kept in shadow git repositories under the storage root,
never in the workspace's own .git. The storage root defaults to the
user config directory and can be moved with SHADOW_STORAGE_DIR or
--storage-dir.
`

const accessibilityHelp = `
Environment Variables:
  SHADOW_STORAGE_DIR       Storage root for shadow repositories and logs.
  SHADOW_LOG_LEVEL         Log level (debug, info, warn, error).
  SHADOW_TELEMETRY_OPTOUT  Set to any value to disable telemetry.
  ACCESSIBLE               Set to any value (e.g., ACCESSIBLE=1) to enable
                           accessibility mode. This uses simpler text prompts
                           instead of interactive TUI elements.
`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "shadow",
		Short: "Checkpoint a workspace in a shadow git repository",
		Long:  "Save, restore and diff checkpoints of a workspace without touching its git history." + storageHelp + accessibilityHelp,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			defer logging.Close()
			// Settings failed to load means setup never completed
			if a.settings == nil {
				return
			}
			client := telemetry.NewClient(Version, a.settings.Telemetry)
			defer client.Close()
			client.TrackCommand(cmd, a.settings.Mode)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	a.bindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newInitCmd(a))
	cmd.AddCommand(newSaveCmd(a))
	cmd.AddCommand(newRestoreCmd(a))
	cmd.AddCommand(newDiffCmd(a))
	cmd.AddCommand(newLogCmd(a))
	cmd.AddCommand(newDeleteTaskCmd(a))
	cmd.AddCommand(newStatusCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Shadow CLI %s (%s)\n", Version, Commit)
			fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
