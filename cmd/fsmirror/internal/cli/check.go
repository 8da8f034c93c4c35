package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/incremental"
	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/runner"
	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/watch"
	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/snapshotter"
	"github.com/spf13/cobra"
)

var checkFlags struct {
	outputs []string
	name    string
	dir     string
	json    bool
	first   bool
	noColor bool
}

var checkCmd = &cobra.Command{
	Use:   "check --output PATH... -- COMMAND [ARG...]",
	Short: "Run a command and report how its outputs changed",
	Long: `Snapshots the output paths, runs the command and snapshots them again,
then prints every output file that was added, removed or modified.

Outputs are reported even when the command fails; fsmirror then exits
with the command's exit status.

Example:

  $ fsmirror check --output build/ -- make

  [14:32:16] + Output file /src/build/app has been added.
  [14:32:16] ~ Output file /src/build/app.o has changed.
  1 added, 1 modified, 0 removed`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVarP(&checkFlags.outputs, "output", "o", nil,
		"Output files or directories of the command (repeatable)")
	checkCmd.Flags().StringVar(&checkFlags.name, "name", "",
		"Name of the unit of work (defaults to the command)")
	checkCmd.Flags().StringVar(&checkFlags.dir, "dir", "",
		"Working directory of the command")
	checkCmd.Flags().BoolVar(&checkFlags.json, "json", false,
		"Output as JSON")
	checkCmd.Flags().BoolVar(&checkFlags.first, "first", false,
		"Stop at the first changed output")
	checkCmd.Flags().BoolVar(&checkFlags.noColor, "no-color", false,
		"Disable colored output")
	_ = checkCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(checkCmd)
}

// CheckOutput is the JSON output format for fsmirror check.
type CheckOutput struct {
	Name     string               `json:"name"`
	Changed  bool                 `json:"changed"`
	Changes  []logical.FileChange `json:"changes"`
	Summary  *logical.ChangeSet   `json:"summary"`
	Duration string               `json:"duration"`
	ExitCode int                  `json:"exit_code"`
	Error    string               `json:"error,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	outputs, err := absPaths(checkFlags.outputs)
	if err != nil {
		return err
	}
	name := checkFlags.name
	if name == "" {
		name = args[0]
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.signals.BuildComplete()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := runner.New(runner.WithDir(checkFlags.dir), runner.WithOutput(cmd.ErrOrStderr(), cmd.ErrOrStderr()))
	work := func(ctx context.Context) error {
		return run.Run(ctx, args)
	}

	var opts []incremental.TrackOption
	if checkFlags.first {
		opts = append(opts, incremental.FirstChangeOnly())
	}

	tracker := incremental.NewTracker(eng.outputs, eng.signals, nil)
	res, err := tracker.Track(ctx, name, snapshotter.Files(outputs...), work, opts...)
	if res == nil {
		return err
	}
	if errors.Is(err, runner.ErrNoCommand) || errors.Is(err, runner.ErrCommandNotFound) {
		return err
	}

	if checkFlags.json {
		out := CheckOutput{
			Name:     name,
			Changed:  len(res.Changes) > 0,
			Changes:  res.Changes,
			Summary:  res.ChangeSet(),
			Duration: res.Duration.String(),
			ExitCode: runner.ExitCode(err),
		}
		if out.Changes == nil {
			out.Changes = []logical.FileChange{}
		}
		if err != nil {
			out.Error = err.Error()
		}
		if jsonErr := outputJSON(cmd.OutOrStdout(), out); jsonErr != nil {
			return jsonErr
		}
		return err
	}

	printChanges(cmd, res.Changes, checkFlags.first, checkFlags.noColor)
	return err
}

// printChanges prints one line per change followed by a summary line. With
// first set, a non-empty list holds only the first difference found.
func printChanges(cmd *cobra.Command, changes []logical.FileChange, first, noColor bool) {
	disable, force := colorMode(noColor, cmd.Flags().Changed("no-color"))
	logger := watch.NewLogger(watch.LoggerConfig{
		Writer:     cmd.OutOrStdout(),
		NoColor:    disable,
		ForceColor: force,
	})
	logger.Changes(changes)
	if first && len(changes) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "outputs changed")
		return
	}
	cs := logical.NewChangeSet(changes)
	fmt.Fprintf(cmd.OutOrStdout(), "%d added, %d modified, %d removed\n",
		len(cs.Added), len(cs.Modified), len(cs.Removed))
}

// colorMode resolves the --no-color flag against the [log] color setting.
// An explicit flag wins; an unset setting leaves colour to terminal
// detection.
func colorMode(noColorFlag, changed bool) (disable, force bool) {
	if changed || cfg == nil || cfg.Log.Color == nil {
		return noColorFlag, false
	}
	return !*cfg.Log.Color, *cfg.Log.Color
}
