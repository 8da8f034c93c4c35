package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/daemon"
	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/watch"
	"github.com/spf13/cobra"
)

// ErrOutputsChanged is returned by daemon diff --exit-code when outputs
// differ from their baseline.
var ErrOutputsChanged = errors.New("outputs changed")

var daemonQueryFlags struct {
	outputs  []string
	json     bool
	first    bool
	exitCode bool
	noColor  bool
	debounce int
	stop     bool
}

var daemonSnapshotCmd = &cobra.Command{
	Use:   "snapshot PATH...",
	Short: "Summarize paths through the daemon's mirror",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDaemonSnapshot,
}

var daemonCaptureCmd = &cobra.Command{
	Use:   "capture NAME",
	Short: "Record the outputs of a unit of work",
	Long: `Snapshot the given outputs in the daemon and keep them as the
baseline of NAME, replacing any earlier baseline.`,
	Args: cobra.ExactArgs(1),
	RunE: runDaemonCapture,
}

var daemonDiffCmd = &cobra.Command{
	Use:   "diff NAME",
	Short: "Compare outputs with their recorded baseline",
	Long: `Snapshot the given outputs in the daemon and print how they differ
from the baseline of NAME. The baseline is left as it is.

With --exit-code the command fails when anything changed, which makes it
usable as an up-to-date check in scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: runDaemonDiff,
}

var daemonSignalCmd = &cobra.Command{
	Use:   "signal outputs-changing|build-complete",
	Short: "Send a lifecycle signal to the daemon's mirror",
	Long: `Tell the daemon that outputs are about to change, which drops its
mutable cache, or that a build has completed.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"outputs-changing", "build-complete"},
	RunE:      runDaemonSignal,
}

var daemonWatchCmd = &cobra.Command{
	Use:   "watch PATH...",
	Short: "Watch outputs in the daemon and stream changes",
	Long: `Start watching the given outputs inside the daemon and print the
changes it reports until interrupted. The watch keeps running in the
daemon after this command exits; stop it with --stop.`,
	Args: cobra.ArbitraryArgs,
	RunE: runDaemonWatch,
}

func init() {
	for _, c := range []*cobra.Command{daemonCaptureCmd, daemonDiffCmd} {
		c.Flags().StringSliceVarP(&daemonQueryFlags.outputs, "output", "o", nil,
			"Output file or directory (repeatable, comma-separated)")
		_ = c.MarkFlagRequired("output")
	}
	daemonSnapshotCmd.Flags().BoolVar(&daemonQueryFlags.json, "json", false, "Output as JSON")
	daemonDiffCmd.Flags().BoolVar(&daemonQueryFlags.json, "json", false, "Output as JSON")
	daemonDiffCmd.Flags().BoolVar(&daemonQueryFlags.first, "first", false,
		"Stop at the first difference")
	daemonDiffCmd.Flags().BoolVar(&daemonQueryFlags.exitCode, "exit-code", false,
		"Exit with status 1 when outputs changed")
	daemonDiffCmd.Flags().BoolVar(&daemonQueryFlags.noColor, "no-color", false,
		"Disable colored output")
	daemonWatchCmd.Flags().IntVar(&daemonQueryFlags.debounce, "debounce", 0,
		"Debounce window in milliseconds (default from config, 500)")
	daemonWatchCmd.Flags().BoolVar(&daemonQueryFlags.json, "json", false,
		"Stream JSON events")
	daemonWatchCmd.Flags().BoolVar(&daemonQueryFlags.noColor, "no-color", false,
		"Disable colored output")
	daemonWatchCmd.Flags().BoolVar(&daemonQueryFlags.stop, "stop", false,
		"Stop the daemon's watch instead of starting one")

	daemonCmd.AddCommand(daemonSnapshotCmd, daemonCaptureCmd, daemonDiffCmd, daemonSignalCmd, daemonWatchCmd)
}

func runDaemonSnapshot(cmd *cobra.Command, args []string) error {
	paths, err := absPaths(args)
	if err != nil {
		return err
	}
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	res, err := client.Snapshot(cmd.Context(), paths)
	if err != nil {
		return err
	}
	if daemonQueryFlags.json {
		return outputJSON(cmd.OutOrStdout(), res)
	}
	for _, r := range res.Roots {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d files, %s)\n", r.Path, r.Type, r.Files, r.Fingerprint)
	}
	return nil
}

func runDaemonCapture(cmd *cobra.Command, args []string) error {
	outputs, err := absPaths(daemonQueryFlags.outputs)
	if err != nil {
		return err
	}
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	res, err := client.Capture(cmd.Context(), &daemon.CaptureParams{Name: args[0], Outputs: outputs})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "captured %s (%d files)\n", res.Name, res.Files)
	return nil
}

func runDaemonDiff(cmd *cobra.Command, args []string) error {
	outputs, err := absPaths(daemonQueryFlags.outputs)
	if err != nil {
		return err
	}
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	res, err := client.Changes(cmd.Context(), &daemon.ChangesParams{
		Name:    args[0],
		Outputs: outputs,
		First:   daemonQueryFlags.first,
	})
	var rpcErr *daemon.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == daemon.ErrCodeNoBaseline {
		return fmt.Errorf("no baseline for %s (record one with 'fsmirror daemon capture')", args[0])
	}
	if err != nil {
		return err
	}

	if daemonQueryFlags.json {
		if err := outputJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	} else {
		printChanges(cmd, res.Changes, daemonQueryFlags.first, daemonQueryFlags.noColor)
	}
	if daemonQueryFlags.exitCode && res.Changed {
		return ErrOutputsChanged
	}
	return nil
}

func runDaemonSignal(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	var res *daemon.SignalResult
	switch args[0] {
	case "outputs-changing":
		res, err = client.OutputsChanging(cmd.Context())
	default:
		res, err = client.BuildComplete(cmd.Context())
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d files, %d trees, %d contents left in the mutable partition\n",
		args[0], res.Mutable.Files, res.Mutable.Trees, res.Mutable.Contents)
	return nil
}

func runDaemonWatch(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon()
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if daemonQueryFlags.stop {
		res, err := client.WatchStop(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "watch: %s\n", res.Status)
		return nil
	}
	if len(args) == 0 {
		return errors.New("requires at least 1 path")
	}
	roots, err := absPaths(args)
	if err != nil {
		return err
	}

	debounce := cfg.Debounce()
	if cmd.Flags().Changed("debounce") {
		debounce = time.Duration(daemonQueryFlags.debounce) * time.Millisecond
	}
	res, err := client.WatchStart(cmd.Context(), &daemon.WatchStartParams{
		Paths:    roots,
		Debounce: int(debounce / time.Millisecond),
	})
	if err != nil {
		return err
	}

	disable, force := colorMode(daemonQueryFlags.noColor, cmd.Flags().Changed("no-color"))
	logger := watch.NewLogger(watch.LoggerConfig{
		Writer:     cmd.OutOrStdout(),
		NoColor:    disable,
		ForceColor: force,
		JSON:       daemonQueryFlags.json,
	})
	if res.Status == "already_watching" {
		fmt.Fprintf(cmd.ErrOrStderr(), "daemon is already watching %v\n", res.Paths)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			logger.Shutdown()
			return nil
		case notif, ok := <-client.Events():
			if !ok {
				return daemon.ErrNotConnected
			}
			if notif.Method != daemon.MethodWatchEvent {
				continue
			}
			var event daemon.WatchEventParams
			if err := json.Unmarshal(notif.Params, &event); err != nil {
				logger.Error(fmt.Errorf("invalid watch event: %w", err))
				continue
			}
			switch event.Type {
			case daemon.EventChange:
				logger.Changes(event.Changes)
			case daemon.EventShutdown:
				fmt.Fprintln(cmd.ErrOrStderr(), event.Message)
				return nil
			}
		}
	}
}
