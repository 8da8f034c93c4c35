package snapshot

import "path/filepath"

// Entry is a single-entity snapshot: what one path pointed to when it was
// last looked at.
type Entry struct {
	Path    string   `json:"path"`
	Name    string   `json:"name"`
	Type    FileType `json:"type"`
	Hash    HashCode `json:"hash,omitempty"` // regular files only
	ModTime int64    `json:"mtime_ns"`       // UnixNano, regular files only
	Size    int64    `json:"size"`           // regular files only
}

// EntryOf translates a physical node into an Entry for path.
func EntryOf(path string, node Physical) *Entry {
	e := &Entry{Path: path, Name: node.Name(), Type: node.Type()}
	if e.Name == "" {
		e.Name = filepath.Base(path)
	}
	if f, ok := node.(*File); ok {
		e.Hash = f.hash
		e.ModTime = f.meta.ModTime
		e.Size = f.meta.Size
	}
	return e
}

// DirectoryTree is a whole-subtree snapshot rooted at Path.
type DirectoryTree struct {
	Path string
	Root *Directory
}

// ContentSnapshot is an opaque fingerprint of whatever lives at a path.
type ContentSnapshot interface {
	Fingerprint() HashCode
}

// Fingerprint is the simplest ContentSnapshot: a bare digest.
type Fingerprint HashCode

func (f Fingerprint) Fingerprint() HashCode { return HashCode(f) }
