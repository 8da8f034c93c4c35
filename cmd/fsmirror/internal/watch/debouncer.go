// Package watch re-snapshots output roots when the file system reports
// changes below them, acting as a source of "outputs about to change"
// signals for the mirror.
package watch

import (
	"sync"
	"time"

	"github.com/albertocavalcante/fsmirror/pkg/util"
)

// MaxPendingRoots bounds the pending set. Reaching it flushes immediately.
const MaxPendingRoots = 1000

// Debouncer coalesces bursts of change events into one batch of affected
// roots. A batch is delivered once no event has arrived for the window.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	window  time.Duration
	onFlush func(roots []string)
	stopped bool
}

// NewDebouncer creates a debouncer. onFlush receives the affected roots in
// sorted order.
func NewDebouncer(window time.Duration, onFlush func(roots []string)) *Debouncer {
	return &Debouncer{
		pending: make(map[string]struct{}),
		window:  window,
		onFlush: onFlush,
	}
}

// Add records a change below root and restarts the quiet window.
func (d *Debouncer) Add(root string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[root] = struct{}{}

	if len(d.pending) >= MaxPendingRoots {
		d.stopTimerLocked()
		roots := d.takeLocked()
		d.mu.Unlock()
		d.deliver(roots)
		return
	}

	// A timer that already fired may still run flush; it finds the set
	// empty or picks up the newer events, both fine.
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.window, d.flush)
	d.mu.Unlock()
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	roots := d.takeLocked()
	d.mu.Unlock()
	d.deliver(roots)
}

// FlushNow delivers pending roots without waiting for the window.
func (d *Debouncer) FlushNow() {
	d.mu.Lock()
	d.stopTimerLocked()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	roots := d.takeLocked()
	d.mu.Unlock()
	d.deliver(roots)
}

// Stop delivers anything pending and ignores later events.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.stopTimerLocked()
	roots := d.takeLocked()
	d.mu.Unlock()
	d.deliver(roots)
}

// PendingCount returns the number of roots waiting to be flushed.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// takeLocked empties the pending set. Caller must hold d.mu.
func (d *Debouncer) takeLocked() []string {
	if len(d.pending) == 0 {
		return nil
	}
	roots := util.SortedKeys(d.pending)
	d.pending = make(map[string]struct{})
	return roots
}

// deliver runs the handler outside the lock so it may call Add.
func (d *Debouncer) deliver(roots []string) {
	if len(roots) > 0 && d.onFlush != nil {
		d.onFlush(roots)
	}
}
