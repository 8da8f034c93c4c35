package logical

import (
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/albertocavalcante/fsmirror/pkg/util"
)

// Collection maps absolute base paths to logical roots. No root path lies at
// or below another root path.
type Collection struct {
	roots map[string]Snapshot
}

// NewCollection creates an empty collection.
func NewCollection() *Collection {
	return &Collection{roots: make(map[string]Snapshot)}
}

// FindPossibleRoot returns the root registered at exactly basePath, or nil.
// A root that contains basePath, or that basePath contains, is an
// ErrUnsupportedStructure.
func (c *Collection) FindPossibleRoot(basePath string) (Snapshot, error) {
	if root, ok := c.roots[basePath]; ok {
		return root, nil
	}
	for _, candidate := range util.SortedKeys(c.roots) {
		if snapshot.PathStartsWith(basePath, candidate) {
			return nil, snapshot.Unsupported("find root", basePath, "nested in existing root %s", candidate)
		}
		if snapshot.PathStartsWith(candidate, basePath) {
			return nil, snapshot.Unsupported("find root", basePath, "would split existing root %s", candidate)
		}
	}
	return nil, nil
}

// AddRoot registers a root for a regular file or directory at path. If a
// root of the same kind is already registered there it is kept and returned.
func (c *Collection) AddRoot(path, name string, content snapshot.FileContent) (Snapshot, error) {
	existing, err := c.FindPossibleRoot(path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Type() != content.Type {
			return nil, snapshot.Unsupported("add root", path, "expected %s but found %s", content.Type, existing.Type())
		}
		return existing, nil
	}

	var root Snapshot
	switch content.Type {
	case snapshot.TypeRegularFile:
		root = NewFile(name, content.Hash)
	case snapshot.TypeDirectory:
		root = NewDirectory(name)
	default:
		return nil, snapshot.Unsupported("add root", path, "unsupported root type %s", content.Type)
	}
	c.roots[path] = root
	return root, nil
}

// FindOrCreateTree returns the directory root at basePath, registering an
// empty one if none exists. A file root at basePath is an
// ErrUnsupportedOperation.
func (c *Collection) FindOrCreateTree(basePath string) (*Directory, error) {
	root, err := c.FindPossibleRoot(basePath)
	if err != nil {
		return nil, err
	}
	if root == nil {
		dir := NewDirectory("")
		c.roots[basePath] = dir
		return dir, nil
	}
	dir, ok := root.(*Directory)
	if !ok {
		return nil, &snapshot.PathError{Op: "find tree", Path: basePath, Kind: snapshot.ErrUnsupportedOperation}
	}
	return dir, nil
}

// Roots returns a copy of the base path to root mapping.
func (c *Collection) Roots() map[string]Snapshot {
	out := make(map[string]Snapshot, len(c.roots))
	for k, v := range c.roots {
		out[k] = v
	}
	return out
}

// Root returns the root registered at basePath.
func (c *Collection) Root(basePath string) (Snapshot, bool) {
	r, ok := c.roots[basePath]
	return r, ok
}

// Paths returns the root paths in sorted order.
func (c *Collection) Paths() []string {
	return util.SortedKeys(c.roots)
}

// Len returns the number of roots.
func (c *Collection) Len() int {
	return len(c.roots)
}

// FileCount returns the number of regular files across all roots.
func (c *Collection) FileCount() int {
	n := 0
	for _, r := range c.roots {
		n += CountFiles(r)
	}
	return n
}

// CountFiles returns the number of regular files in node, counting a file
// node as one.
func CountFiles(node Snapshot) int {
	d, ok := node.(*Directory)
	if !ok {
		return 1
	}
	n := 0
	for _, child := range d.children {
		n += CountFiles(child)
	}
	return n
}
