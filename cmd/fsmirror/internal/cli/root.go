// Package cli implements the fsmirror command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/fsmirror/cmd/fsmirror/internal/runner"
	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/pkg/config"
	"github.com/albertocavalcante/fsmirror/pkg/hashing"
	"github.com/albertocavalcante/fsmirror/pkg/lifecycle"
	"github.com/albertocavalcante/fsmirror/pkg/mirror"
	"github.com/albertocavalcante/fsmirror/pkg/snapshotter"
	"github.com/albertocavalcante/fsmirror/pkg/walk"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity int
	logFormat string
	hash      string
	immutable []string
}

// cfg is the effective configuration, loaded before each command runs.
var cfg *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fsmirror",
	Short: "Snapshot and diff build outputs",
	Long: `fsmirror snapshots files and directories, caches the result in a
process-wide mirror and reports how outputs changed across a unit of work.

Use 'fsmirror check --output DIR -- COMMAND' to see what a command changed.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	// Default behavior: show help
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fsmirror %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags (persistent across all commands)
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", config.DefaultVerbosity,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", config.DefaultLogFormat,
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.hash, "hash", "",
		"Content hash algorithm (xxh3, xxhash, sha256)")
	rootCmd.PersistentFlags().StringSliceVar(&globalFlags.immutable, "immutable", nil,
		"Additional immutable roots (comma-separated)")
}

// setup loads configuration, applies flag overrides and initializes logging.
// Flags win over configuration only when given explicitly.
func setup(cmd *cobra.Command, _ []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}
	loaded := config.LoadFrom(wd)

	flags := cmd.Flags()
	if flags.Changed("verbosity") {
		v := globalFlags.verbosity
		loaded.Log.Verbosity = &v
	}
	if flags.Changed("log-format") {
		loaded.Log.Format = globalFlags.logFormat
	}
	if globalFlags.hash != "" {
		loaded.Hash.Algorithm = globalFlags.hash
	}
	loaded.Merge(&config.Config{Locations: config.LocationsConfig{Immutable: globalFlags.immutable}})

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	verbosity := config.DefaultVerbosity
	if loaded.Log.Verbosity != nil {
		verbosity = *loaded.Log.Verbosity
	}
	log.Init(verbosity, loaded.Log.Format)

	cfg = loaded
	return nil
}

// engine wires the mirror, walker and snapshotters for one command.
type engine struct {
	mirror  *mirror.Mirror
	fs      *snapshotter.FileSystemSnapshotter
	outputs *snapshotter.OutputSnapshotter
	signals *lifecycle.Broadcaster
}

func newEngine(c *config.Config) (*engine, error) {
	h, err := hashing.New(c.Hash.Algorithm)
	if err != nil {
		return nil, err
	}
	if size := c.HashCacheSize(); size > 0 {
		if h, err = hashing.NewCachingHasher(h, size); err != nil {
			return nil, err
		}
	}

	roots := make([]string, 0, len(c.Locations.Immutable))
	for _, root := range c.Locations.Immutable {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve immutable root %s: %w", root, err)
		}
		roots = append(roots, abs)
	}

	m := mirror.New(mirror.NewPrefixLocations(roots...))
	fs := snapshotter.NewFileSystemSnapshotter(m, walk.New(h), h)
	log.Component("cli").Debugw("engine ready",
		"hash", c.Hash.Algorithm, "cache_size", c.HashCacheSize(), "immutable", roots)

	return &engine{
		mirror:  m,
		fs:      fs,
		outputs: snapshotter.NewOutputSnapshotter(fs),
		signals: lifecycle.NewBroadcaster(m),
	}, nil
}

// absPaths resolves command-line paths against the working directory.
func absPaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

// Execute runs the root command. A failing unit of work passes its exit
// status through.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if code := runner.ExitCode(err); code > 0 {
			os.Exit(code)
		}
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
