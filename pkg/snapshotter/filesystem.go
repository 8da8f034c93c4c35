// Package snapshotter answers snapshot requests from the mirror, walking and
// hashing the file system on a miss.
package snapshotter

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/pkg/hashing"
	"github.com/albertocavalcante/fsmirror/pkg/mirror"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/albertocavalcante/fsmirror/pkg/walk"
	"golang.org/x/sync/singleflight"
)

// FileSystemSnapshotter produces single-entity, directory-tree and content
// snapshots of absolute paths. It is safe for concurrent use; concurrent
// requests for the same tree share one walk.
type FileSystemSnapshotter struct {
	mirror *mirror.Mirror
	walker *walk.Walker
	hasher hashing.Hasher
	walks  singleflight.Group
}

// NewFileSystemSnapshotter creates a snapshotter backed by m.
func NewFileSystemSnapshotter(m *mirror.Mirror, w *walk.Walker, h hashing.Hasher) *FileSystemSnapshotter {
	return &FileSystemSnapshotter{mirror: m, walker: w, hasher: h}
}

// Mirror returns the backing mirror.
func (s *FileSystemSnapshotter) Mirror() *mirror.Mirror {
	return s.mirror
}

// SnapshotSelf describes what path itself points to, without descending into
// directories. Live probes are cached only for immutable locations; mutable
// paths are answered from previous walks or probed again.
func (s *FileSystemSnapshotter) SnapshotSelf(path string) (*snapshot.Entry, error) {
	path, err := absolute(path)
	if err != nil {
		return nil, err
	}
	if e, ok := s.mirror.GetFile(path); ok {
		return e, nil
	}

	e, err := s.probe(path)
	if err != nil {
		return nil, err
	}
	if s.mirror.IsImmutable(path) {
		s.mirror.PutFile(path, e)
	}
	return e, nil
}

func (s *FileSystemSnapshotter) probe(path string) (*snapshot.Entry, error) {
	e := &snapshot.Entry{Path: path, Name: filepath.Base(path)}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		e.Type = snapshot.TypeMissing
		return e, nil
	case err != nil:
		return nil, snapshot.Unreadable("stat", path, err)
	}

	if info.IsDir() {
		e.Type = snapshot.TypeDirectory
		return e, nil
	}

	e.Type = snapshot.TypeRegularFile
	e.ModTime = walk.Timestamp(info)
	e.Size = info.Size()
	e.Hash, err = s.hasher.Hash(path, snapshot.FileMetadata{Size: e.Size, ModTime: e.ModTime})
	if err != nil {
		return nil, snapshot.Unreadable("hash", path, err)
	}
	log.Trace("probed file", "path", path, "hash", e.Hash)
	return e, nil
}

// SnapshotDirectoryTree returns the hashed tree below the directory at path,
// walking it on a miss and merging the result into the mirror.
func (s *FileSystemSnapshotter) SnapshotDirectoryTree(path string) (*snapshot.DirectoryTree, error) {
	path, err := absolute(path)
	if err != nil {
		return nil, err
	}
	if t, ok := s.mirror.GetDirectoryTree(path); ok {
		return t, nil
	}

	v, err, shared := s.walks.Do(path, func() (any, error) {
		if t, ok := s.mirror.GetDirectoryTree(path); ok {
			return t, nil
		}
		root, err := s.walker.Walk(path)
		if err != nil {
			return nil, err
		}
		t := &snapshot.DirectoryTree{Path: path, Root: root}
		if err := s.mirror.PutDirectory(path, t); err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Component("snapshotter").Debugw("shared directory walk", "path", path)
	}
	return v.(*snapshot.DirectoryTree), nil
}

// SnapshotContent fingerprints whatever lives at path: a file's hash, a
// directory's tree fingerprint, or the zero fingerprint for a missing path.
func (s *FileSystemSnapshotter) SnapshotContent(path string) (snapshot.ContentSnapshot, error) {
	path, err := absolute(path)
	if err != nil {
		return nil, err
	}
	if c, ok := s.mirror.GetContent(path); ok {
		return c, nil
	}

	self, err := s.SnapshotSelf(path)
	if err != nil {
		return nil, err
	}

	var c snapshot.ContentSnapshot
	switch self.Type {
	case snapshot.TypeRegularFile:
		c = snapshot.Fingerprint(self.Hash)
	case snapshot.TypeDirectory:
		tree, err := s.SnapshotDirectoryTree(path)
		if err != nil {
			return nil, err
		}
		c = snapshot.Fingerprint(hashing.TreeFingerprint(tree.Root))
	default:
		c = snapshot.Fingerprint{}
	}
	s.mirror.PutContent(path, c)
	return c, nil
}

func absolute(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", snapshot.Unreadable("resolve", path, err)
	}
	return abs, nil
}
