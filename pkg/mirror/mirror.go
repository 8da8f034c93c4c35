// Package mirror provides a process-wide cache of file-system snapshots.
//
// Entries are keyed by absolute path and split into two partitions chosen by
// a Locations classifier. The immutable partition holds well-known locations
// and survives until the build completes. The mutable partition is
// invalidated whenever outputs are about to change; at that point its
// directory trees, content snapshots and physical trie are dropped while its
// single-file entries are kept.
package mirror

import (
	"sync"

	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/internal/metrics"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
)

// Partition names, also used as metric labels.
const (
	PartitionImmutable = "immutable"
	PartitionMutable   = "mutable"
)

// Lookup kinds, used as metric labels.
const (
	kindFile    = "file"
	kindTree    = "tree"
	kindContent = "content"
)

// store is a concurrency-safe map from path to value.
type store[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

func newStore[V any]() *store[V] {
	return &store[V]{entries: make(map[string]V)}
}

func (s *store[V]) get(path string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[path]
	return v, ok
}

func (s *store[V]) put(path string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[path] = v
}

func (s *store[V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *store[V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]V)
}

type partition struct {
	name     string
	files    *store[*snapshot.Entry]
	trees    *store[*snapshot.DirectoryTree]
	contents *store[snapshot.ContentSnapshot]
}

func newPartition(name string) *partition {
	return &partition{
		name:     name,
		files:    newStore[*snapshot.Entry](),
		trees:    newStore[*snapshot.DirectoryTree](),
		contents: newStore[snapshot.ContentSnapshot](),
	}
}

func (p *partition) clear() {
	p.files.clear()
	p.trees.clear()
	p.contents.clear()
}

// Mirror caches file, directory-tree and content snapshots. It is safe for
// concurrent use.
type Mirror struct {
	locations Locations
	immutable *partition
	mutable   *partition

	// root indexes every directory tree stored in the mutable partition so
	// single-file lookups can be answered from a previous walk.
	root *snapshot.Root
}

// New creates an empty mirror. A nil classifier puts everything in the
// mutable partition.
func New(locations Locations) *Mirror {
	if locations == nil {
		locations = NoImmutable
	}
	return &Mirror{
		locations: locations,
		immutable: newPartition(PartitionImmutable),
		mutable:   newPartition(PartitionMutable),
		root:      snapshot.NewRoot(),
	}
}

func (m *Mirror) partitionFor(path string) *partition {
	if m.locations.IsImmutable(path) {
		return m.immutable
	}
	return m.mutable
}

// GetFile returns the single-entity snapshot for path. In the mutable
// partition a path without a direct entry is answered from the physical trie
// when a previous walk covered it. A false result means the caller must probe
// the file system.
func (m *Mirror) GetFile(path string) (*snapshot.Entry, bool) {
	p := m.partitionFor(path)
	if e, ok := p.files.get(path); ok {
		metrics.RecordMirrorLookup(p.name, kindFile, true)
		return e, true
	}
	if p == m.mutable {
		if node := m.root.Find(path); node != nil {
			metrics.RecordMirrorLookup(p.name, kindFile, true)
			return snapshot.EntryOf(path, node), true
		}
	}
	metrics.RecordMirrorLookup(p.name, kindFile, false)
	return nil, false
}

// PutFile stores the single-entity snapshot for path.
func (m *Mirror) PutFile(path string, e *snapshot.Entry) {
	m.partitionFor(path).files.put(path, e)
}

// GetDirectoryTree returns the whole-subtree snapshot rooted at path.
func (m *Mirror) GetDirectoryTree(path string) (*snapshot.DirectoryTree, bool) {
	p := m.partitionFor(path)
	t, ok := p.trees.get(path)
	metrics.RecordMirrorLookup(p.name, kindTree, ok)
	return t, ok
}

// PutDirectory stores a whole-subtree snapshot. Trees in the mutable
// partition are also merged into the physical trie; if a walk of the same
// path was merged first, that earlier tree stays canonical there.
func (m *Mirror) PutDirectory(path string, tree *snapshot.DirectoryTree) error {
	p := m.partitionFor(path)
	if p == m.mutable {
		if _, err := m.root.Add(path, tree.Root); err != nil {
			return err
		}
	}
	p.trees.put(path, tree)
	return nil
}

// GetContent returns the opaque content snapshot for path.
func (m *Mirror) GetContent(path string) (snapshot.ContentSnapshot, bool) {
	p := m.partitionFor(path)
	c, ok := p.contents.get(path)
	metrics.RecordMirrorLookup(p.name, kindContent, ok)
	return c, ok
}

// PutContent stores the opaque content snapshot for path.
func (m *Mirror) PutContent(path string, c snapshot.ContentSnapshot) {
	m.partitionFor(path).contents.put(path, c)
}

// BeforeOutputsChange drops the mutable directory trees, content snapshots
// and physical trie. Mutable single-file entries are retained.
func (m *Mirror) BeforeOutputsChange() {
	trees, contents := m.mutable.trees.len(), m.mutable.contents.len()
	m.mutable.trees.clear()
	m.mutable.contents.clear()
	m.root.Clear()

	metrics.RecordInvalidation("outputs_change")
	log.Component("mirror").Debugw("invalidated mutable snapshots",
		"trees", trees,
		"contents", contents,
		"retained_files", m.mutable.files.len(),
	)
}

// BuildComplete drops every cached snapshot in both partitions.
func (m *Mirror) BuildComplete() {
	m.immutable.clear()
	m.mutable.clear()
	m.root.Clear()

	metrics.RecordInvalidation("build_complete")
	log.Component("mirror").Debugw("invalidated all snapshots")
}

// Stats is a point-in-time count of cached entries per partition.
type Stats struct {
	Files    int `json:"files"`
	Trees    int `json:"trees"`
	Contents int `json:"contents"`
}

// Stats returns entry counts for the immutable and mutable partitions.
func (m *Mirror) Stats() (immutable, mutable Stats) {
	count := func(p *partition) Stats {
		return Stats{Files: p.files.len(), Trees: p.trees.len(), Contents: p.contents.len()}
	}
	return count(m.immutable), count(m.mutable)
}

// IsImmutable reports whether path belongs to the immutable partition.
func (m *Mirror) IsImmutable(path string) bool {
	return m.locations.IsImmutable(path)
}
