package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/pkg/lifecycle"
	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/albertocavalcante/fsmirror/pkg/snapshotter"
	"github.com/fsnotify/fsnotify"
)

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// Outputs snapshots a file collection into a logical collection.
type Outputs interface {
	Snapshot(fc snapshotter.FileCollection) (*logical.Collection, error)
}

// Config configures the watcher.
type Config struct {
	Roots    []string // absolute output roots
	Debounce time.Duration
	Verbose  bool
	NoColor  bool
	JSON     bool
	Writer   io.Writer

	// OnChanges, if set, receives every non-empty batch of changes after it
	// has been logged.
	OnChanges func([]logical.FileChange)
}

// Watcher watches output roots and reports how they changed. Before each
// re-snapshot it signals that outputs are changing so cached mutable state is
// dropped.
type Watcher struct {
	config    Config
	fsWatcher *fsnotify.Watcher
	outputs   Outputs
	signals   lifecycle.OutputChangesListener
	debouncer *Debouncer
	logger    *Logger

	// mu serializes snapshots and guards current.
	mu      sync.Mutex
	current *logical.Collection
}

// New creates a watcher over cfg.Roots.
func New(cfg Config, outputs Outputs, signals lifecycle.OutputChangesListener) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	roots := make([]string, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fsWatcher.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
		}
		roots = append(roots, abs)
	}
	cfg.Roots = roots

	return &Watcher{
		config:    cfg,
		fsWatcher: fsWatcher,
		outputs:   outputs,
		signals:   signals,
		logger: NewLogger(LoggerConfig{
			Writer:  cfg.Writer,
			Verbose: cfg.Verbose,
			NoColor: cfg.NoColor,
			JSON:    cfg.JSON,
		}),
	}, nil
}

// Run takes the baseline snapshot and processes events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	window := w.config.Debounce
	if window <= 0 {
		window = DefaultDebounce
	}
	w.debouncer = NewDebouncer(window, w.handleChangedRoots)
	defer w.debouncer.Stop()

	baseline, err := w.outputs.Snapshot(snapshotter.Files(w.config.Roots...))
	if err != nil {
		return fmt.Errorf("failed to snapshot outputs: %w", err)
	}
	w.mu.Lock()
	w.current = baseline
	w.mu.Unlock()

	for _, root := range w.config.Roots {
		if err := w.watchRoot(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	w.logger.Ready(w.config.Roots, baseline.FileCount())

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// watchRoot watches a directory root recursively. File roots and roots that
// do not exist yet are observed through their parent directory.
func (w *Watcher) watchRoot(root string) error {
	info, err := os.Stat(root)
	if err == nil && info.IsDir() {
		return w.addRecursive(root)
	}
	parent := filepath.Dir(root)
	if _, err := os.Stat(parent); err != nil {
		log.Component("watch").Debugw("parent of output root does not exist", "root", root)
		return nil
	}
	return w.add(parent)
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.add(path)
	})
}

func (w *Watcher) add(dir string) error {
	if err := w.fsWatcher.Add(dir); err != nil {
		if isWatchLimitError(err) {
			return fmt.Errorf("%w for %s: %w\n"+
				"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288", ErrWatchLimitReached, dir, err)
		}
		if w.config.Verbose {
			w.logger.Error(fmt.Errorf("failed to watch %s: %w", dir, err))
		}
	}
	return nil
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// rootFor returns the output root that contains path, or "".
func (w *Watcher) rootFor(path string) string {
	for _, root := range w.config.Roots {
		if snapshot.PathStartsWith(path, root) {
			return root
		}
	}
	return ""
}

// handleEvent maps a file-system event to the output root it affects.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	root := w.rootFor(event.Name)
	if root == "" {
		return
	}
	log.Trace("file event", "path", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", event.Name, err))
			}
		}
	}

	w.debouncer.Add(root)
}

// handleChangedRoots is called when the debouncer flushes.
func (w *Watcher) handleChangedRoots(roots []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Snapshotting(roots)
	w.signals.BeforeOutputsChange()

	next, err := w.outputs.Snapshot(snapshotter.Files(w.config.Roots...))
	if err != nil {
		w.logger.Error(fmt.Errorf("failed to snapshot outputs: %w", err))
		return
	}
	changes := next.Changes(w.current)
	w.current = next
	w.logger.Changes(changes)
	if len(changes) > 0 && w.config.OnChanges != nil {
		w.config.OnChanges(changes)
	}
}

// FileCount returns the number of files in the latest snapshot.
func (w *Watcher) FileCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return 0
	}
	return w.current.FileCount()
}

// Roots returns the absolute output roots being watched.
func (w *Watcher) Roots() []string {
	return w.config.Roots
}

// Logger returns the event logger.
func (w *Watcher) Logger() *Logger {
	return w.logger
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
