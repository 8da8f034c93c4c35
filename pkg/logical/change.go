package logical

import (
	"fmt"

	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
)

// OutputTitle is the category label attached to every change between output
// snapshots.
const OutputTitle = "Output"

// ChangeKind classifies a FileChange.
type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "modified"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ChangeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ChangeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "added":
		*k = Added
	case "removed":
		*k = Removed
	case "modified":
		*k = Modified
	default:
		return fmt.Errorf("unknown change kind %q", text)
	}
	return nil
}

// FileChange is one difference between two collections. Previous is
// TypeMissing for additions and Current is TypeMissing for removals.
type FileChange struct {
	Path     string            `json:"path"`
	Title    string            `json:"title"`
	Kind     ChangeKind        `json:"kind"`
	Previous snapshot.FileType `json:"previous"`
	Current  snapshot.FileType `json:"current"`
}

func added(path string, current snapshot.FileType) FileChange {
	return FileChange{Path: path, Title: OutputTitle, Kind: Added, Previous: snapshot.TypeMissing, Current: current}
}

func removed(path string, previous snapshot.FileType) FileChange {
	return FileChange{Path: path, Title: OutputTitle, Kind: Removed, Previous: previous, Current: snapshot.TypeMissing}
}

func modified(path string, previous, current snapshot.FileType) FileChange {
	return FileChange{Path: path, Title: OutputTitle, Kind: Modified, Previous: previous, Current: current}
}

// TypeChanged reports whether the entry switched between file and directory.
func (c FileChange) TypeChanged() bool {
	return c.Kind == Modified && c.Previous != c.Current
}

// String renders the change as a message such as
// "Output file out/a.txt has been added.".
func (c FileChange) String() string {
	switch c.Kind {
	case Added:
		return fmt.Sprintf("%s %s %s has been added.", c.Title, noun(c.Current), c.Path)
	case Removed:
		return fmt.Sprintf("%s %s %s has been removed.", c.Title, noun(c.Previous), c.Path)
	default:
		if c.TypeChanged() {
			return fmt.Sprintf("%s %s %s has been replaced by a %s.", c.Title, noun(c.Previous), c.Path, noun(c.Current))
		}
		return fmt.Sprintf("%s %s %s has changed.", c.Title, noun(c.Current), c.Path)
	}
}

func noun(t snapshot.FileType) string {
	if t == snapshot.TypeDirectory {
		return "directory"
	}
	return "file"
}
