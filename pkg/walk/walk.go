// Package walk builds hashed physical snapshot trees from the file system.
package walk

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/albertocavalcante/fsmirror/internal/log"
	"github.com/albertocavalcante/fsmirror/internal/metrics"
	"github.com/albertocavalcante/fsmirror/pkg/hashing"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/djherbis/times"
)

// Walker performs one recursive traversal per root. Symlinks are followed;
// a symlink that leads back to one of its own ancestors is recorded as an
// empty directory.
type Walker struct {
	hasher hashing.Hasher
}

// New creates a walker that hashes regular files with hasher.
func New(hasher hashing.Hasher) *Walker {
	return &Walker{hasher: hasher}
}

type walkStats struct {
	files int
	dirs  int
	loops int
}

// Walk snapshots the directory at root. The returned tree is immutable and
// owned by the caller.
func (w *Walker) Walk(root string) (*snapshot.Directory, error) {
	root = filepath.Clean(root)
	start := time.Now()

	info, err := os.Stat(root)
	if err != nil {
		return nil, snapshot.Unreadable("walk", root, err)
	}
	if !info.IsDir() {
		return nil, snapshot.Unsupported("walk", root, "not a directory")
	}

	var stats walkStats
	dir, err := w.walkDir(root, filepath.Base(root), []os.FileInfo{info}, &stats)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.ObserveWalk(elapsed, stats.files)
	log.Component("walk").Debugw("walked directory",
		"root", root,
		"files", stats.files,
		"dirs", stats.dirs,
		"loops", stats.loops,
		"duration", elapsed,
	)
	return dir, nil
}

func (w *Walker) walkDir(path, name string, ancestors []os.FileInfo, stats *walkStats) (*snapshot.Directory, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, snapshot.Unreadable("read directory", path, err)
	}

	children := make(map[string]snapshot.Physical, len(entries))
	for _, e := range entries {
		childPath := filepath.Join(path, e.Name())

		var info os.FileInfo
		symlink := e.Type()&os.ModeSymlink != 0
		if symlink {
			info, err = os.Stat(childPath)
			if err != nil {
				return nil, snapshot.Unreadable("follow symlink", childPath, err)
			}
		} else {
			info, err = e.Info()
			if err != nil {
				return nil, snapshot.Unreadable("stat", childPath, err)
			}
		}

		switch {
		case info.IsDir():
			if symlink && isAncestor(ancestors, info) {
				stats.loops++
				metrics.RecordSymlinkLoop()
				log.Component("walk").Debugw("skipping symlink loop", "path", childPath)
				children[e.Name()] = snapshot.NewSealedDirectory(childPath, e.Name(), nil)
				continue
			}
			sub, err := w.walkDir(childPath, e.Name(), append(ancestors, info), stats)
			if err != nil {
				return nil, err
			}
			stats.dirs++
			children[e.Name()] = sub

		case info.Mode().IsRegular():
			meta := snapshot.FileMetadata{Size: info.Size(), ModTime: Timestamp(info)}
			hash, err := w.hasher.Hash(childPath, meta)
			if err != nil {
				return nil, snapshot.Unreadable("hash", childPath, err)
			}
			stats.files++
			log.Trace("hashed file", "path", childPath, "hash", hash)
			children[e.Name()] = snapshot.NewRegularFile(childPath, e.Name(), hash, meta)

		default:
			// Devices, sockets and pipes have no content to fingerprint.
			log.Trace("skipping special file", "path", childPath, "mode", fmt.Sprint(info.Mode().Type()))
		}
	}

	return snapshot.NewSealedDirectory(path, name, children), nil
}

// isAncestor reports whether info refers to a directory already on the
// current descent path.
func isAncestor(ancestors []os.FileInfo, info os.FileInfo) bool {
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return true
		}
	}
	return false
}

// Timestamp returns the last-modified time of info in Unix nanoseconds. On
// platforms that record a change time the later of the two is used, so
// metadata-only rewrites that preserve mtime are still noticed.
func Timestamp(info os.FileInfo) int64 {
	t := times.Get(info)
	ts := t.ModTime()
	if t.HasChangeTime() && t.ChangeTime().After(ts) {
		ts = t.ChangeTime()
	}
	return ts.UnixNano()
}
