// Package snapshot defines the physical snapshot model: hashed file nodes,
// directory nodes and missing entries, plus the concurrently-mutable trie
// that indexes them by absolute path.
package snapshot

import (
	"fmt"
	"sync"

	"github.com/albertocavalcante/fsmirror/pkg/util"
)

// FileType is the kind of a file-system entry.
type FileType int

const (
	TypeMissing FileType = iota
	TypeRegularFile
	TypeDirectory
)

func (t FileType) String() string {
	switch t {
	case TypeRegularFile:
		return "RegularFile"
	case TypeDirectory:
		return "Directory"
	default:
		return "Missing"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t FileType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FileType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "RegularFile":
		*t = TypeRegularFile
	case "Directory":
		*t = TypeDirectory
	case "Missing":
		*t = TypeMissing
	default:
		return fmt.Errorf("unknown file type %q", text)
	}
	return nil
}

// Physical is a node of a physical snapshot tree. The concrete types are
// *File, *Directory and *Missing.
type Physical interface {
	Path() string
	Name() string
	Type() FileType
}

// File is a regular file together with its content hash and the metadata
// observed when it was hashed.
type File struct {
	path string
	name string
	hash HashCode
	meta FileMetadata
}

// NewRegularFile creates a file node.
func NewRegularFile(path, name string, hash HashCode, meta FileMetadata) *File {
	return &File{path: path, name: name, hash: hash, meta: meta}
}

func (f *File) Path() string     { return f.path }
func (f *File) Name() string     { return f.name }
func (f *File) Type() FileType   { return TypeRegularFile }
func (f *File) Hash() HashCode   { return f.hash }
func (f *File) Size() int64      { return f.meta.Size }
func (f *File) Timestamp() int64 { return f.meta.ModTime }

// Missing records that nothing exists at a path.
type Missing struct {
	path string
	name string
}

// NewMissing creates a missing-entry node.
func NewMissing(path, name string) *Missing {
	return &Missing{path: path, name: name}
}

func (m *Missing) Path() string   { return m.path }
func (m *Missing) Name() string   { return m.name }
func (m *Missing) Type() FileType { return TypeMissing }

// Directory is the only node kind with children. Children are keyed by name;
// their order carries no meaning.
type Directory struct {
	path   string
	name   string
	sealed bool

	mu       sync.RWMutex
	children map[string]Physical
}

// NewDirectory creates a directory node that takes ownership of children.
// A nil map is allowed. The trie may add children to it later.
func NewDirectory(path, name string, children map[string]Physical) *Directory {
	if children == nil {
		children = make(map[string]Physical)
	}
	return &Directory{path: path, name: name, children: children}
}

// NewSealedDirectory creates a directory node whose children are the complete
// listing taken at one point in time. The trie never adds to it.
func NewSealedDirectory(path, name string, children map[string]Physical) *Directory {
	d := NewDirectory(path, name, children)
	d.sealed = true
	return d
}

func (d *Directory) Path() string   { return d.path }
func (d *Directory) Name() string   { return d.name }
func (d *Directory) Type() FileType { return TypeDirectory }

// Sealed reports whether d is a complete listing that the trie leaves alone.
func (d *Directory) Sealed() bool { return d.sealed }

// Child returns the direct child with the given name.
func (d *Directory) Child(name string) (Physical, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.children[name]
	return c, ok
}

// Len returns the number of direct children.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.children)
}

// Names returns the child names in sorted order.
func (d *Directory) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return util.SortedKeys(d.children)
}

// Children returns a copy of the child mapping.
func (d *Directory) Children() map[string]Physical {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]Physical, len(d.children))
	for k, v := range d.children {
		out[k] = v
	}
	return out
}

// putIfAbsent stores candidate under name unless a child already exists.
// The stored child is returned either way; the first writer wins. A sealed
// directory stores nothing and reports false when name is absent.
func (d *Directory) putIfAbsent(name string, candidate Physical) (Physical, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.children[name]; ok {
		return existing, true
	}
	if d.sealed {
		return nil, false
	}
	d.children[name] = candidate
	return candidate, true
}

func (d *Directory) String() string {
	return fmt.Sprintf("Directory(%s, %d children)", d.path, d.Len())
}
