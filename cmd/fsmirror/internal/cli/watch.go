package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/watch"
	"github.com/spf13/cobra"
)

var watchFlags struct {
	debounce int
	verbose  bool
	json     bool
	noColor  bool
}

var watchCmd = &cobra.Command{
	Use:   "watch [path...]",
	Short: "Watch outputs and report changes as they happen",
	Long: `Watches output files and directories and, after each burst of
file-system events, snapshots them again and prints what changed.

Each batch first signals that outputs are about to change, so the mirror
drops what it cached for mutable locations.

Example output:

  $ fsmirror watch build/

  fsmirror: watching 1247 files in 1 roots
  fsmirror: ready
  [14:32:15] ~ Output file /src/build/app.o has changed.
  [14:32:15] + Output file /src/build/gen/api.go has been added.

Press Ctrl+C to stop watching.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchFlags.debounce, "debounce", 0,
		"Debounce window in milliseconds (default from config, 500)")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show snapshot batches and empty results")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")
	watchCmd.Flags().BoolVar(&watchFlags.noColor, "no-color", false,
		"Disable colored output")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	roots, err := absPaths(args)
	if err != nil {
		return err
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	debounce := cfg.Debounce()
	if cmd.Flags().Changed("debounce") {
		debounce = time.Duration(watchFlags.debounce) * time.Millisecond
	}
	disable, _ := colorMode(watchFlags.noColor, cmd.Flags().Changed("no-color"))

	// Setup signal handling for graceful shutdown
	// Include SIGHUP to handle terminal hangup
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	w, err := watch.New(watch.Config{
		Roots:    roots,
		Debounce: debounce,
		Verbose:  watchFlags.verbose,
		NoColor:  disable,
		JSON:     watchFlags.json,
		Writer:   cmd.OutOrStdout(),
	}, eng.outputs, eng.signals)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	err = w.Run(ctx)
	eng.signals.BuildComplete()
	return err
}
