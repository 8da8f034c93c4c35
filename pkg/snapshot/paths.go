package snapshot

import (
	"os"
	"strings"
)

// SplitPath breaks an absolute path into its non-empty segments.
// Both '/' and the platform separator are accepted.
func SplitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == os.PathSeparator
	})
}

// PathStartsWith reports whether path equals prefix or lies below it.
// Unlike strings.HasPrefix it respects segment boundaries, so "/a/bc" does
// not start with "/a/b".
func PathStartsWith(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	if strings.HasSuffix(prefix, "/") || strings.HasSuffix(prefix, string(os.PathSeparator)) {
		return true
	}
	c := path[len(prefix)]
	return c == '/' || c == os.PathSeparator
}
