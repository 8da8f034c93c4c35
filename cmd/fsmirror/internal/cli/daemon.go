package cli

import (
	"errors"
	"fmt"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/daemon"
	"github.com/spf13/cobra"
)

var daemonFlags struct {
	socket string
}

// daemonCmd is the parent command for daemon operations.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the fsmirror daemon",
	Long: `Manage the fsmirror background daemon.

The daemon keeps one mirror alive across invocations, so unchanged
immutable locations are never walked twice and baselines captured by one
command can be compared by the next. Clients talk to it over a Unix socket.

Commands:
  start    - Start the daemon process
  stop     - Stop the running daemon
  status   - Show daemon and mirror status
  restart  - Restart the daemon
  snapshot - Summarize paths through the daemon's mirror
  capture  - Record the outputs of a unit of work
  diff     - Compare outputs with their recorded baseline
  signal   - Send a lifecycle signal to the mirror
  watch    - Watch outputs in the daemon and stream changes

Examples:
  fsmirror daemon start
  fsmirror daemon capture compile -o build/
  fsmirror daemon diff compile -o build/
  fsmirror daemon stop`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	daemonCmd.PersistentFlags().StringVar(&daemonFlags.socket, "socket", "",
		"Custom socket path (default: <user cache dir>/fsmirror/daemon.sock)")

	rootCmd.AddCommand(daemonCmd)
}

// daemonPaths returns the daemon files for --socket or the defaults.
func daemonPaths() (*daemon.Paths, error) {
	return daemon.ResolvePaths(daemonFlags.socket)
}

// connectDaemon connects to the running daemon.
func connectDaemon() (*daemon.Client, error) {
	paths, err := daemonPaths()
	if err != nil {
		return nil, err
	}
	client, err := daemon.Connect(paths.Socket)
	if errors.Is(err, daemon.ErrDaemonNotRunning) {
		return nil, fmt.Errorf("%w (start it with 'fsmirror daemon start')", err)
	}
	return client, err
}
