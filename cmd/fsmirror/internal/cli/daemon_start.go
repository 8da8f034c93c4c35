package cli

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/daemon"
	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/incremental"
	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/spf13/cobra"
)

// startupWait is how long a background start waits for the PID file.
const startupWait = 2 * time.Second

var daemonStartFlags struct {
	foreground bool
	logFile    string
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon process",
	Long: `Start the fsmirror daemon.

By default the daemon detaches and runs in the background, logging to
daemon.log next to its socket. Use --foreground to keep it attached for
debugging.

Examples:
  fsmirror daemon start
  fsmirror daemon start --foreground -v 3
  fsmirror daemon start --socket /tmp/fsm.sock`,
	Args: cobra.NoArgs,
	RunE: runDaemonStart,
}

func init() {
	daemonStartCmd.Flags().BoolVar(&daemonStartFlags.foreground, "foreground", false,
		"Run in foreground (don't daemonize)")
	daemonStartCmd.Flags().StringVar(&daemonStartFlags.logFile, "log", "",
		"Log file path (default: next to the socket)")

	daemonCmd.AddCommand(daemonStartCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	status := daemon.GetStatus(paths)
	if status.Running {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (PID: %d)\n", status.PID)
		return nil
	}
	if status.Stale {
		if _, err := daemon.CleanupStale(paths); err != nil {
			log.Warn("failed to clean up stale files", "error", err)
		}
	}

	if daemonStartFlags.foreground {
		return runDaemonForeground(cmd, paths)
	}
	return runDaemonBackground(cmd, paths)
}

// newDaemonServer wires a fresh engine into a daemon server.
func newDaemonServer(paths *daemon.Paths) (*daemon.Server, error) {
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	handler := daemon.NewHandler(daemon.HandlerConfig{
		Mirror:  eng.mirror,
		FS:      eng.fs,
		Outputs: eng.outputs,
		Signals: eng.signals,
		Tracker: incremental.NewTracker(eng.outputs, eng.signals, nil),
	})
	return daemon.NewServer(daemon.ServerConfig{
		Paths:   paths,
		Version: Version,
		Handler: handler,
	}), nil
}

func runDaemonForeground(cmd *cobra.Command, paths *daemon.Paths) error {
	server, err := newDaemonServer(paths)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Starting daemon in foreground (PID: %d)\n", os.Getpid())
	fmt.Fprintf(w, "Socket: %s\n", paths.Socket)
	fmt.Fprintln(w, "Press Ctrl+C to stop")
	fmt.Fprintln(w)

	return server.Start(cmd.Context())
}

func runDaemonBackground(cmd *cobra.Command, paths *daemon.Paths) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	logPath := paths.Log
	if daemonStartFlags.logFile != "" {
		logPath = daemonStartFlags.logFile
	}

	// The child loads the same configuration; explicit flags are passed on.
	args := []string{"daemon", "start", "--foreground", "--socket", paths.Socket}
	flags := cmd.Flags()
	if flags.Changed("verbosity") {
		args = append(args, "-v", fmt.Sprint(globalFlags.verbosity))
	}
	if flags.Changed("log-format") {
		args = append(args, "--log-format", globalFlags.logFormat)
	}
	if globalFlags.hash != "" {
		args = append(args, "--hash", globalFlags.hash)
	}
	for _, root := range globalFlags.immutable {
		args = append(args, "--immutable", root)
	}

	if err := paths.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create daemon directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(executable, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	child.SysProcAttr = daemonSysProcAttr()

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = child.Process.Release()

	deadline := time.Now().Add(startupWait)
	status := daemon.GetStatus(paths)
	for !status.Running && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
		status = daemon.GetStatus(paths)
	}
	if !status.Running {
		return fmt.Errorf("daemon failed to start (check %s for details)", logPath)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Daemon started (PID: %d)\n", status.PID)
	fmt.Fprintf(w, "Socket: %s\n", paths.Socket)
	fmt.Fprintf(w, "Log: %s\n", logPath)
	return nil
}
