// Package incremental tracks the outputs of named units of work: it records
// what a unit produced and reports how its outputs changed since.
package incremental

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/pkg/lifecycle"
	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/snapshotter"
)

// ErrNoBaseline is returned by Status when a unit has never been captured.
var ErrNoBaseline = errors.New("no baseline recorded")

// Outputs snapshots a file collection into a logical collection.
type Outputs interface {
	Snapshot(fc snapshotter.FileCollection) (*logical.Collection, error)
}

// Tracker provides high-level change tracking over output snapshots.
type Tracker struct {
	store   Store
	outputs Outputs
	signals lifecycle.OutputChangesListener
}

// NewTracker creates a tracker. A nil store gets a fresh MemoryStore.
func NewTracker(outputs Outputs, signals lifecycle.OutputChangesListener, store Store) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{store: store, outputs: outputs, signals: signals}
}

// Result describes one tracked run of a unit of work.
type Result struct {
	Name     string
	Before   *logical.Collection
	After    *logical.Collection
	Changes  []logical.FileChange
	Duration time.Duration
}

// ChangeSet summarizes the changes by kind.
func (r *Result) ChangeSet() *logical.ChangeSet {
	return logical.NewChangeSet(r.Changes)
}

type trackOptions struct {
	firstOnly bool
}

// TrackOption configures Track.
type TrackOption func(*trackOptions)

// FirstChangeOnly stops the comparison at the first difference.
func FirstChangeOnly() TrackOption {
	return func(o *trackOptions) {
		o.firstOnly = true
	}
}

// Capture snapshots fc and records it as the baseline for name.
func (t *Tracker) Capture(name string, fc snapshotter.FileCollection) (*logical.Collection, error) {
	c, err := t.outputs.Snapshot(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot outputs of %s: %w", name, err)
	}
	if err := t.store.Save(name, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Track snapshots fc, signals that outputs are about to change, runs work,
// snapshots fc again and records the result as the new baseline. The
// changes are reported even when work fails; its error is returned
// alongside the result.
func (t *Tracker) Track(ctx context.Context, name string, fc snapshotter.FileCollection, work func(context.Context) error, opts ...TrackOption) (*Result, error) {
	var o trackOptions
	for _, opt := range opts {
		opt(&o)
	}

	before, err := t.outputs.Snapshot(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot outputs of %s before running: %w", name, err)
	}

	t.signals.BeforeOutputsChange()
	start := time.Now()
	workErr := work(ctx)
	duration := time.Since(start)

	after, err := t.Capture(name, fc)
	if err != nil {
		return nil, errors.Join(workErr, err)
	}

	res := &Result{
		Name:     name,
		Before:   before,
		After:    after,
		Changes:  diff(after, before, o.firstOnly),
		Duration: duration,
	}
	log.Component("incremental").Debugw("tracked unit of work",
		"name", name, "changes", len(res.Changes), "duration", duration, "failed", workErr != nil)

	if workErr != nil {
		return res, fmt.Errorf("%s failed: %w", name, workErr)
	}
	return res, nil
}

// Status compares the current outputs against the baseline of name without
// replacing it.
func (t *Tracker) Status(name string, fc snapshotter.FileCollection, opts ...TrackOption) ([]logical.FileChange, error) {
	var o trackOptions
	for _, opt := range opts {
		opt(&o)
	}

	b, ok := t.store.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoBaseline, name)
	}

	// Outputs may have changed since the baseline was taken.
	t.signals.BeforeOutputsChange()
	current, err := t.outputs.Snapshot(fc)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot outputs of %s: %w", name, err)
	}
	return diff(current, b.Outputs, o.firstOnly), nil
}

// HasChanges reports whether the outputs of name differ from its baseline.
func (t *Tracker) HasChanges(name string, fc snapshotter.FileCollection) (bool, error) {
	changes, err := t.Status(name, fc, FirstChangeOnly())
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}

// HasBaseline returns true if name has been captured.
func (t *Tracker) HasBaseline(name string) bool {
	return t.store.Exists(name)
}

// TrackedFileCount returns the number of regular files in the baseline of
// name, or 0 if there is none.
func (t *Tracker) TrackedFileCount(name string) int {
	b, ok := t.store.Load(name)
	if !ok {
		return 0
	}
	return b.Outputs.FileCount()
}

func diff(current, previous *logical.Collection, firstOnly bool) []logical.FileChange {
	if !firstOnly {
		return current.Changes(previous)
	}
	var (
		stop    atomic.Bool
		changes []logical.FileChange
	)
	current.VisitDifferences(previous, &stop, func(fc logical.FileChange) {
		changes = append(changes, fc)
		stop.Store(true)
	})
	return changes
}
