// Package logical holds path-relative snapshot trees and the structural diff
// engine that compares them.
//
// Logical trees carry names and content fingerprints but no absolute paths,
// so two trees taken at different times of the same location can be compared
// child by child. They are built for one comparison and never cached.
package logical

import (
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/albertocavalcante/fsmirror/pkg/util"
)

// Snapshot is a node of a logical tree: *File or *Directory.
type Snapshot interface {
	Name() string
	Type() snapshot.FileType
}

// File is a leaf with a content fingerprint.
type File struct {
	name    string
	content snapshot.HashCode
}

// NewFile creates a logical file.
func NewFile(name string, content snapshot.HashCode) *File {
	return &File{name: name, content: content}
}

func (f *File) Name() string               { return f.name }
func (f *File) Type() snapshot.FileType    { return snapshot.TypeRegularFile }
func (f *File) Content() snapshot.HashCode { return f.content }

// Directory maps child names to children. It is not safe for concurrent
// mutation.
type Directory struct {
	name     string
	children map[string]Snapshot
}

// NewDirectory creates an empty logical directory.
func NewDirectory(name string) *Directory {
	return &Directory{name: name, children: make(map[string]Snapshot)}
}

func (d *Directory) Name() string            { return d.name }
func (d *Directory) Type() snapshot.FileType { return snapshot.TypeDirectory }

// Put adds or replaces a child and returns d.
func (d *Directory) Put(child Snapshot) *Directory {
	d.children[child.Name()] = child
	return d
}

// Child returns the child with the given name.
func (d *Directory) Child(name string) (Snapshot, bool) {
	c, ok := d.children[name]
	return c, ok
}

// Len returns the number of direct children.
func (d *Directory) Len() int { return len(d.children) }

// Names returns the child names in sorted order.
func (d *Directory) Names() []string { return util.SortedKeys(d.children) }

// FromPhysical converts a physical node into a logical one. Missing entries
// have no logical form and yield nil.
func FromPhysical(node snapshot.Physical) Snapshot {
	switch n := node.(type) {
	case *snapshot.File:
		return NewFile(n.Name(), n.Hash())
	case *snapshot.Directory:
		return NewDirectory(n.Name()).PutTree(n)
	default:
		return nil
	}
}

// PutTree copies the descendants of src into d with a pre-order traversal,
// keeping the chain of open directories on a stack indexed by depth.
// Absolute paths and timestamps are dropped. It returns d.
func (d *Directory) PutTree(src *snapshot.Directory) *Directory {
	parents := []*Directory{d}
	snapshot.VisitTree(src, func(_, name string, relativePath []string, content snapshot.FileContent) {
		depth := len(relativePath)
		parents = parents[:depth]
		parent := parents[depth-1]
		switch content.Type {
		case snapshot.TypeRegularFile:
			parent.Put(NewFile(name, content.Hash))
		case snapshot.TypeDirectory:
			child := NewDirectory(name)
			parent.Put(child)
			parents = append(parents, child)
		}
	})
	return d
}
