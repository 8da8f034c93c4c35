package snapshotter

import (
	"path/filepath"

	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/samber/lo"
)

// Element is one root element of a FileCollection: Paths, Tree or
// FilteredTree.
type Element interface {
	element()
}

// Paths is a plain set of files and directories. Directories are snapshotted
// with their whole subtree.
type Paths []string

// Tree is a directory snapshotted with its whole subtree.
type Tree string

// FilteredTree is a directory restricted by include patterns. Snapshotting
// it is not supported.
type FilteredTree struct {
	Dir     string
	Include []string
}

func (Paths) element()        {}
func (Tree) element()         {}
func (FilteredTree) element() {}

// FileCollection is an ordered set of root elements.
type FileCollection []Element

// Files returns a collection of plain paths.
func Files(paths ...string) FileCollection {
	return FileCollection{Paths(paths)}
}

// OutputSnapshotter builds logical collections for output file collections.
type OutputSnapshotter struct {
	fs *FileSystemSnapshotter
}

// NewOutputSnapshotter creates an output snapshotter over fs.
func NewOutputSnapshotter(fs *FileSystemSnapshotter) *OutputSnapshotter {
	return &OutputSnapshotter{fs: fs}
}

// Snapshot builds a logical collection with one root per existing file or
// directory of fc. Missing paths are ignored. Roots nested in one another
// are an ErrUnsupportedStructure.
func (o *OutputSnapshotter) Snapshot(fc FileCollection) (*logical.Collection, error) {
	out := logical.NewCollection()
	for _, el := range fc {
		var err error
		switch el := el.(type) {
		case Paths:
			err = o.addPaths(out, el)
		case Tree:
			err = o.addTree(out, string(el))
		case FilteredTree:
			err = &snapshot.PathError{Op: "snapshot filtered tree", Path: el.Dir, Kind: snapshot.ErrUnsupportedOperation}
		default:
			err = &snapshot.PathError{Op: "snapshot", Path: "", Kind: snapshot.ErrUnsupportedOperation}
		}
		if err != nil {
			return nil, err
		}
	}
	log.Component("snapshotter").Debugw("snapshotted outputs", "roots", out.Len())
	return out, nil
}

func (o *OutputSnapshotter) addPaths(out *logical.Collection, paths Paths) error {
	for _, path := range lo.Uniq(paths) {
		self, err := o.fs.SnapshotSelf(path)
		if err != nil {
			return err
		}
		if err := o.addRoot(out, self); err != nil {
			return err
		}
	}
	return nil
}

func (o *OutputSnapshotter) addTree(out *logical.Collection, dir string) error {
	self, err := o.fs.SnapshotSelf(dir)
	if err != nil {
		return err
	}
	if self.Type == snapshot.TypeRegularFile {
		return snapshot.Unsupported("snapshot tree", self.Path, "not a directory")
	}
	return o.addRoot(out, self)
}

func (o *OutputSnapshotter) addRoot(out *logical.Collection, self *snapshot.Entry) error {
	if self.Type == snapshot.TypeMissing {
		log.Component("snapshotter").Debugw("ignoring missing output", "path", self.Path)
		return nil
	}

	name := self.Name
	if name == "" {
		name = filepath.Base(self.Path)
	}
	if _, err := out.AddRoot(self.Path, name, snapshot.FileContent{Type: self.Type, Hash: self.Hash, Timestamp: self.ModTime}); err != nil {
		return err
	}
	if self.Type != snapshot.TypeDirectory {
		return nil
	}

	tree, err := o.fs.SnapshotDirectoryTree(self.Path)
	if err != nil {
		return err
	}
	dst, err := out.FindOrCreateTree(tree.Path)
	if err != nil {
		return err
	}
	dst.PutTree(tree.Root)
	return nil
}
