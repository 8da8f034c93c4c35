package mirror

import (
	"path/filepath"

	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
)

// Locations classifies paths into the immutable partition (well-known
// locations that do not change while the process runs) and the mutable
// partition (everything else).
type Locations interface {
	IsImmutable(path string) bool
}

// PrefixLocations treats every path at or below one of its roots as immutable.
type PrefixLocations struct {
	roots []string
}

// NewPrefixLocations creates a classifier for the given immutable roots.
func NewPrefixLocations(roots ...string) *PrefixLocations {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(r))
	}
	return &PrefixLocations{roots: cleaned}
}

func (p *PrefixLocations) IsImmutable(path string) bool {
	for _, root := range p.roots {
		if snapshot.PathStartsWith(path, root) {
			return true
		}
	}
	return false
}

// Roots returns the configured immutable roots.
func (p *PrefixLocations) Roots() []string {
	return append([]string(nil), p.roots...)
}

type noImmutable struct{}

func (noImmutable) IsImmutable(string) bool { return false }

// NoImmutable places every path in the mutable partition.
var NoImmutable Locations = noImmutable{}
