package logical

import (
	"path/filepath"
	"slices"

	"github.com/samber/lo"
)

// ChangeSet groups changes by kind.
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// NewChangeSet summarizes changes. Each slice is sorted.
func NewChangeSet(changes []FileChange) *ChangeSet {
	pathsOf := func(kind ChangeKind) []string {
		paths := lo.FilterMap(changes, func(fc FileChange, _ int) (string, bool) {
			return fc.Path, fc.Kind == kind
		})
		slices.Sort(paths)
		return paths
	}
	return &ChangeSet{
		Added:    pathsOf(Added),
		Modified: pathsOf(Modified),
		Removed:  pathsOf(Removed),
	}
}

// IsEmpty returns true if there are no changes.
func (cs *ChangeSet) IsEmpty() bool {
	if cs == nil {
		return true
	}
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Removed) == 0
}

// TotalChanges returns the total number of changed paths.
func (cs *ChangeSet) TotalChanges() int {
	if cs == nil {
		return 0
	}
	return len(cs.Added) + len(cs.Modified) + len(cs.Removed)
}

// AffectedDirs returns sorted unique parent directories of changed paths.
func (cs *ChangeSet) AffectedDirs() []string {
	if cs == nil {
		return nil
	}
	all := slices.Concat(cs.Added, cs.Modified, cs.Removed)
	dirs := lo.Uniq(lo.Map(all, func(p string, _ int) string {
		return filepath.Dir(p)
	}))
	slices.Sort(dirs)
	return dirs
}
