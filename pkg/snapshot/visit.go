package snapshot

// FileContent describes what a visited node holds. Hash and Timestamp are
// only set for regular files.
type FileContent struct {
	Type      FileType
	Hash      HashCode
	Timestamp int64
}

// ContentOf returns the content descriptor of a node.
func ContentOf(node Physical) FileContent {
	switch n := node.(type) {
	case *File:
		return FileContent{Type: TypeRegularFile, Hash: n.hash, Timestamp: n.meta.ModTime}
	case *Directory:
		return FileContent{Type: TypeDirectory}
	default:
		return FileContent{Type: TypeMissing}
	}
}

// Visitor receives one node of a traversal. relativePath holds the names
// from just below the traversal root down to and including the node itself.
// The slice is reused between calls; copy it to retain it.
type Visitor func(path, name string, relativePath []string, content FileContent)

// VisitTree walks the descendants of node depth-first, each parent before
// its children, in name order. Missing entries are skipped. The root itself
// is not reported.
func VisitTree(node Physical, visitor Visitor) {
	dir, ok := node.(*Directory)
	if !ok {
		return
	}
	visitChildren(dir, make([]string, 0, 8), visitor)
}

func visitChildren(dir *Directory, relativePath []string, visitor Visitor) {
	for _, name := range dir.Names() {
		child, ok := dir.Child(name)
		if !ok || child.Type() == TypeMissing {
			continue
		}
		relativePath = append(relativePath, name)
		visitor(child.Path(), child.Name(), relativePath, ContentOf(child))
		if sub, ok := child.(*Directory); ok {
			visitChildren(sub, relativePath, visitor)
		}
		relativePath = relativePath[:len(relativePath)-1]
	}
}

// Count returns the number of regular files and directories below node,
// excluding node itself.
func Count(node Physical) (files, dirs int) {
	VisitTree(node, func(_, _ string, _ []string, content FileContent) {
		switch content.Type {
		case TypeRegularFile:
			files++
		case TypeDirectory:
			dirs++
		}
	})
	return files, dirs
}
