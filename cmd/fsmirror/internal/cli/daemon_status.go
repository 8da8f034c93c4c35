package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/daemon"
	"github.com/albertocavalcante/fsmirror/pkg/mirror"
	"github.com/spf13/cobra"
)

var daemonStatusFlags struct {
	json bool
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Show whether the fsmirror daemon is running and, if it is, its
version, uptime, watch state and how much its mirror holds.

Examples:
  fsmirror daemon status
  fsmirror daemon status --json`,
	Args: cobra.NoArgs,
	RunE: runDaemonStatus,
}

func init() {
	daemonStatusCmd.Flags().BoolVar(&daemonStatusFlags.json, "json", false,
		"Output as JSON")

	daemonCmd.AddCommand(daemonStatusCmd)
}

// DaemonStatusOutput is the JSON output format for daemon status.
type DaemonStatusOutput struct {
	Running    bool          `json:"running"`
	PID        int           `json:"pid,omitempty"`
	SocketPath string        `json:"socket_path"`
	Version    string        `json:"version,omitempty"`
	Uptime     string        `json:"uptime,omitempty"`
	StartTime  string        `json:"start_time,omitempty"`
	Watching   bool          `json:"watching"`
	WatchPaths []string      `json:"watch_paths,omitempty"`
	FileCount  int           `json:"file_count,omitempty"`
	Immutable  *mirror.Stats `json:"immutable,omitempty"`
	Mutable    *mirror.Stats `json:"mutable,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	paths, err := daemonPaths()
	if err != nil {
		return err
	}

	status := daemon.GetStatus(paths)
	out := DaemonStatusOutput{
		Running:    status.Running,
		PID:        status.PID,
		SocketPath: paths.Socket,
	}
	if status.Running {
		if err := queryDaemonStatus(cmd.Context(), paths, &out); err != nil {
			out.Error = err.Error()
		}
	} else if status.Stale {
		out.Error = "stale PID file (daemon crashed)"
	}

	if daemonStatusFlags.json {
		return outputJSON(cmd.OutOrStdout(), out)
	}
	printDaemonStatus(cmd.OutOrStdout(), out, status)
	return nil
}

// queryDaemonStatus fills in what only the running daemon knows.
func queryDaemonStatus(ctx context.Context, paths *daemon.Paths, out *DaemonStatusOutput) error {
	client, err := daemon.Connect(paths.Socket)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ping, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	out.Version = ping.Version
	out.Uptime = ping.Uptime
	out.StartTime = ping.StartTime

	watchStatus, err := client.WatchStatus(ctx)
	if err != nil {
		return fmt.Errorf("watch status failed: %w", err)
	}
	out.Watching = watchStatus.Watching
	out.WatchPaths = watchStatus.Paths
	out.FileCount = watchStatus.FileCount

	stats, err := client.MirrorStats(ctx)
	if err != nil {
		return fmt.Errorf("mirror stats failed: %w", err)
	}
	out.Immutable = &stats.Immutable
	out.Mutable = &stats.Mutable
	return nil
}

func printDaemonStatus(w io.Writer, out DaemonStatusOutput, status *daemon.Status) {
	if !out.Running {
		fmt.Fprintln(w, "Daemon: not running")
		if status.Stale {
			fmt.Fprintf(w, "  (stale PID file found for PID %d)\n", status.PID)
			fmt.Fprintln(w, "  Run 'fsmirror daemon start' to start the daemon")
		}
		return
	}

	fmt.Fprintf(w, "Daemon: running (PID: %d)\n", out.PID)
	fmt.Fprintf(w, "Socket: %s\n", out.SocketPath)
	if out.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", out.Version)
	}
	if out.Uptime != "" {
		fmt.Fprintf(w, "Uptime: %s\n", formatUptime(out.Uptime))
	}

	if out.Watching {
		fmt.Fprintf(w, "Watching: yes (%d files)\n", out.FileCount)
		for _, p := range out.WatchPaths {
			fmt.Fprintf(w, "    - %s\n", p)
		}
	} else {
		fmt.Fprintln(w, "Watching: no")
	}

	if out.Immutable != nil && out.Mutable != nil {
		fmt.Fprintf(w, "Mirror: %d files, %d trees, %d contents cached (immutable)\n",
			out.Immutable.Files, out.Immutable.Trees, out.Immutable.Contents)
		fmt.Fprintf(w, "Mirror: %d files, %d trees, %d contents cached (mutable)\n",
			out.Mutable.Files, out.Mutable.Trees, out.Mutable.Contents)
	}

	if out.Error != "" {
		fmt.Fprintf(w, "Warning: %s\n", out.Error)
	}
}

// formatUptime renders a Go duration string with at most two units.
func formatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}
