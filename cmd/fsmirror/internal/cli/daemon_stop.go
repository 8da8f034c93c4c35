package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/daemon"
	"github.com/spf13/cobra"
)

// ErrShutdownTimeout is returned when the daemon does not exit in time.
var ErrShutdownTimeout = errors.New("daemon shutdown timed out")

var daemonStopFlags struct {
	force bool
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long: `Stop the fsmirror daemon.

Sends a shutdown request over the socket and waits up to 5 seconds for
the process to exit. With --force an unresponsive daemon is killed.

Examples:
  fsmirror daemon stop
  fsmirror daemon stop --force`,
	Args: cobra.NoArgs,
	RunE: runDaemonStop,
}

func init() {
	daemonStopCmd.Flags().BoolVar(&daemonStopFlags.force, "force", false,
		"Force kill if graceful shutdown fails")

	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}
	return stopDaemon(cmd.Context(), cmd.OutOrStdout(), paths, daemonStopFlags.force)
}

// stopDaemon stops the daemon at paths, killing it when force is set and it
// does not exit on request. A daemon that is not running is not an error.
func stopDaemon(ctx context.Context, w io.Writer, paths *daemon.Paths, force bool) error {
	status := daemon.GetStatus(paths)
	if status.Stale {
		fmt.Fprintln(w, "Daemon not running (cleaning up stale files)")
		return paths.Cleanup()
	}
	if !status.Running {
		fmt.Fprintln(w, "Daemon not running")
		return nil
	}

	fmt.Fprintf(w, "Stopping daemon (PID: %d)...\n", status.PID)
	if err := requestShutdown(ctx, paths); err == nil {
		if waitForExit(status.PID, 5*time.Second) {
			fmt.Fprintln(w, "Daemon stopped")
			return nil
		}
	}

	if !force {
		fmt.Fprintln(w, "Graceful shutdown timed out. Use --force to kill.")
		return ErrShutdownTimeout
	}

	fmt.Fprintln(w, "Forcing shutdown...")
	if err := daemon.KillProcess(status.PID); err != nil && daemon.IsProcessRunning(status.PID) {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	if !waitForExit(status.PID, 2*time.Second) {
		return fmt.Errorf("failed to stop daemon (PID: %d)", status.PID)
	}
	fmt.Fprintln(w, "Daemon stopped (forced)")
	return paths.Cleanup()
}

func requestShutdown(ctx context.Context, paths *daemon.Paths) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = client.Shutdown(ctx)
	return err
}

// waitForExit polls until pid is gone or timeout passes.
func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !daemon.IsProcessRunning(pid)
}
