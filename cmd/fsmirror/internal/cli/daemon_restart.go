package cli

import (
	"github.com/spf13/cobra"
)

var daemonRestartFlags struct {
	force bool
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the daemon",
	Long: `Restart the fsmirror daemon, dropping everything its mirror and
baselines held.

This is equivalent to 'fsmirror daemon stop' followed by
'fsmirror daemon start'.

Examples:
  fsmirror daemon restart
  fsmirror daemon restart --force`,
	Args: cobra.NoArgs,
	RunE: runDaemonRestart,
}

func init() {
	daemonRestartCmd.Flags().BoolVar(&daemonRestartFlags.force, "force", false,
		"Force kill if graceful shutdown fails")

	daemonCmd.AddCommand(daemonRestartCmd)
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}
	if err := stopDaemon(cmd.Context(), cmd.OutOrStdout(), paths, daemonRestartFlags.force); err != nil {
		return err
	}

	daemonStartFlags.foreground = false
	return runDaemonBackground(cmd, paths)
}
