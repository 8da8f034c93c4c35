package snapshot

import (
	"os"
	"strings"
	"sync"
)

// Root is a concurrently-mutable trie of physical snapshots keyed by path
// segments. Nodes are append-only until Clear.
type Root struct {
	mu  sync.RWMutex
	top *Directory
}

// NewRoot creates an empty trie.
func NewRoot() *Root {
	return &Root{top: NewDirectory("", "", nil)}
}

func (r *Root) current() *Directory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.top
}

// Find returns the node stored at path, or nil if the trie knows nothing
// about it.
func (r *Root) Find(path string) Physical {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil
	}
	var node Physical = r.current()
	for _, seg := range segments {
		dir, ok := node.(*Directory)
		if !ok {
			return nil
		}
		child, ok := dir.Child(seg)
		if !ok {
			return nil
		}
		node = child
	}
	return node
}

// Add inserts node at path, creating intermediate directories as needed, and
// returns the canonical stored node. If a node of the same kind already
// exists there it wins and is returned; a node of a different kind is an
// ErrUnsupportedStructure. Adding below a file or missing entry is an
// ErrUnsupportedStructure as well.
//
// A sealed directory on the way that lacks the next segment is left as it
// is: node is returned unindexed and the trie keeps answering from the older
// listing until Clear.
func (r *Root) Add(path string, node Physical) (Physical, error) {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, Unsupported("add", path, "cannot add at the file-system root")
	}

	parent := r.current()
	last := len(segments) - 1
	for i, seg := range segments {
		child, ok := parent.Child(seg)
		if !ok {
			var candidate Physical
			if i == last {
				candidate = node
			} else {
				candidate = NewDirectory(joinSegments(path, segments[:i+1]), seg, nil)
			}
			child, ok = parent.putIfAbsent(seg, candidate)
			if !ok {
				return node, nil
			}
		}

		if i == last {
			if child.Type() != node.Type() {
				return nil, Unsupported("add", path, "expected %s but found %s", node.Type(), child.Type())
			}
			return child, nil
		}

		dir, ok := child.(*Directory)
		if !ok {
			return nil, Unsupported("add", path, "cannot add children of %s %s", child.Type(), child.Path())
		}
		parent = dir
	}
	// unreachable: the loop always returns on the last segment
	return nil, nil
}

// Clear drops every node. Readers holding nodes from before the call keep a
// consistent view of the old tree.
func (r *Root) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.top = NewDirectory("", "", nil)
}

// joinSegments rebuilds the path of an intermediate directory, keeping a
// leading separator if the original path had one.
func joinSegments(original string, segments []string) string {
	joined := strings.Join(segments, string(os.PathSeparator))
	if strings.HasPrefix(original, "/") || strings.HasPrefix(original, string(os.PathSeparator)) {
		return string(os.PathSeparator) + joined
	}
	return joined
}
