package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// Logger formats watch and check events for the terminal or as JSON lines.
type Logger struct {
	writer  io.Writer
	verbose bool
	jsonOut bool

	added    *color.Color
	modified *color.Color
	removed  *color.Color

	statsMu sync.Mutex
	stats   Stats
}

// Stats tracks counters for a session.
type Stats struct {
	Snapshots int
	Changes   int
	Errors    int
	StartTime time.Time
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	// ForceColor colours output even when Writer is not a terminal.
	ForceColor bool
	JSON       bool
}

// NewLogger creates a logger. Colour is used on terminals unless NoColor is
// set, and everywhere with ForceColor.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	l := &Logger{
		writer:   writer,
		verbose:  cfg.Verbose,
		jsonOut:  cfg.JSON,
		added:    color.New(color.FgGreen),
		modified: color.New(color.FgYellow),
		removed:  color.New(color.FgRed),
		stats:    Stats{StartTime: time.Now()},
	}
	for _, c := range []*color.Color{l.added, l.modified, l.removed} {
		if cfg.NoColor || (!isTTY && !cfg.ForceColor) {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return l
}

// Ready logs that the roots are being watched.
func (l *Logger) Ready(roots []string, files int) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "ready",
			"roots": roots,
			"files": files,
		})
		return
	}

	l.printf("fsmirror: watching %d files in %d roots\n", files, len(roots))
	if l.verbose {
		for _, root := range roots {
			l.printf("  %s\n", root)
		}
	}
	l.println("fsmirror: ready")
}

// Snapshotting logs that roots are about to be snapshotted again.
func (l *Logger) Snapshotting(roots []string) {
	l.statsMu.Lock()
	l.stats.Snapshots++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "snapshotting",
			"roots": roots,
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	if !l.verbose {
		return
	}
	if len(roots) == 1 {
		l.printf("[%s] snapshotting %s...\n", l.timestamp(), roots[0])
	} else {
		l.printf("[%s] snapshotting %d roots...\n", l.timestamp(), len(roots))
	}
}

// Changes logs one line per change, in the order given.
func (l *Logger) Changes(changes []logical.FileChange) {
	l.statsMu.Lock()
	l.stats.Changes += len(changes)
	l.statsMu.Unlock()

	if l.jsonOut {
		for _, c := range changes {
			l.writeJSON(map[string]any{
				"event":  "change",
				"change": c,
				"time":   time.Now().Format(time.RFC3339),
			})
		}
		return
	}

	if len(changes) == 0 {
		if l.verbose {
			l.printf("[%s] no output changes\n", l.timestamp())
		}
		return
	}
	for _, c := range changes {
		l.printf("[%s] %s %s\n", l.timestamp(), l.symbol(c.Kind), c)
	}
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.statsMu.Lock()
	l.stats.Errors++
	l.statsMu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	l.printf("[%s] %s error: %v\n", l.timestamp(), l.removed.Sprint("✗"), err)
}

// Shutdown logs the session summary.
func (l *Logger) Shutdown() {
	stats := l.Stats()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":     "shutdown",
			"snapshots": stats.Snapshots,
			"changes":   stats.Changes,
			"errors":    stats.Errors,
			"duration":  time.Since(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("fsmirror: shutting down (%d snapshots, %d changes, %d errors)\n",
		stats.Snapshots, stats.Changes, stats.Errors)
}

// Stats returns the session counters.
func (l *Logger) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

func (l *Logger) symbol(kind logical.ChangeKind) string {
	switch kind {
	case logical.Added:
		return l.added.Sprint("+")
	case logical.Removed:
		return l.removed.Sprint("-")
	default:
		return l.modified.Sprint("~")
	}
}

// timestamp returns the current time formatted as HH:MM:SS.
func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// Output errors are ignored; the log is informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
