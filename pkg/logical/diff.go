package logical

import (
	"path/filepath"
	"sync/atomic"

	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/albertocavalcante/fsmirror/pkg/util"
)

// VisitDifferences reports every change from old to c, in this order: roots
// only in c (whole subtrees, Added), roots only in old (whole subtrees,
// Removed), then shared roots compared child by child. Paths within each
// group are visited in sorted order.
//
// A type change is reported as one Modified event for the path followed by
// events for the subtree of the directory side: the old directory's
// descendants as Removed, or the new directory's descendants as Added.
//
// stop is checked after every event; once it reads true no further events
// are emitted, so a flag that is already set yields exactly one event. A nil
// stop never halts. A nil old behaves like an empty collection.
func (c *Collection) VisitDifferences(old *Collection, stop *atomic.Bool, visit func(FileChange)) {
	if stop == nil {
		stop = new(atomic.Bool)
	}
	if old == nil {
		old = NewCollection()
	}
	d := &differ{stop: stop, visit: visit}

	for _, path := range util.MissingKeys(c.roots, old.roots) {
		if !d.subtree(path, c.roots[path], true, Added) {
			return
		}
	}
	for _, path := range util.MissingKeys(old.roots, c.roots) {
		if !d.subtree(path, old.roots[path], true, Removed) {
			return
		}
	}
	for _, path := range c.Paths() {
		previous, ok := old.roots[path]
		if !ok {
			continue
		}
		if !d.compare(path, c.roots[path], previous) {
			return
		}
	}
}

// Changes collects every change from old to c.
func (c *Collection) Changes(old *Collection) []FileChange {
	var out []FileChange
	c.VisitDifferences(old, nil, func(fc FileChange) {
		out = append(out, fc)
	})
	return out
}

// HasChanges reports whether anything changed from old to c. It stops at the
// first difference.
func (c *Collection) HasChanges(old *Collection) bool {
	var stop atomic.Bool
	c.VisitDifferences(old, &stop, func(FileChange) {
		stop.Store(true)
	})
	return stop.Load()
}

// differ walks NEW and OLD trees in lockstep. Every method returns false once
// the walk must halt.
type differ struct {
	stop  *atomic.Bool
	visit func(FileChange)
}

func (d *differ) emit(fc FileChange) bool {
	d.visit(fc)
	return !d.stop.Load()
}

// subtree reports node and all its descendants as kind. With includeRoot
// false node itself is skipped.
func (d *differ) subtree(path string, node Snapshot, includeRoot bool, kind ChangeKind) bool {
	if includeRoot {
		fc := added(path, node.Type())
		if kind == Removed {
			fc = removed(path, node.Type())
		}
		if !d.emit(fc) {
			return false
		}
	}
	dir, ok := node.(*Directory)
	if !ok {
		return true
	}
	for _, name := range dir.Names() {
		if !d.subtree(filepath.Join(path, name), dir.children[name], true, kind) {
			return false
		}
	}
	return true
}

// compare reports the differences between current and previous, both found
// at path.
func (d *differ) compare(path string, current, previous Snapshot) bool {
	switch cur := current.(type) {
	case *File:
		switch prev := previous.(type) {
		case *File:
			if cur.content != prev.content {
				return d.emit(modified(path, snapshot.TypeRegularFile, snapshot.TypeRegularFile))
			}
		case *Directory:
			if !d.emit(modified(path, snapshot.TypeDirectory, snapshot.TypeRegularFile)) {
				return false
			}
			return d.subtree(path, prev, false, Removed)
		}

	case *Directory:
		switch prev := previous.(type) {
		case *File:
			if !d.emit(modified(path, snapshot.TypeRegularFile, snapshot.TypeDirectory)) {
				return false
			}
			return d.subtree(path, cur, false, Added)
		case *Directory:
			for _, name := range cur.Names() {
				childPath := filepath.Join(path, name)
				child := cur.children[name]
				if old, ok := prev.children[name]; ok {
					if !d.compare(childPath, child, old) {
						return false
					}
				} else if !d.subtree(childPath, child, true, Added) {
					return false
				}
			}
			for _, name := range util.MissingKeys(prev.children, cur.children) {
				if !d.subtree(filepath.Join(path, name), prev.children[name], true, Removed) {
					return false
				}
			}
		}
	}
	return true
}
