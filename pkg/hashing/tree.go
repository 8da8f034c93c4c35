package hashing

import (
	"encoding/binary"
	"io"
	"strings"

	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/cespare/xxhash/v2"
)

// TreeFingerprint combines every file and directory below root into one
// digest. Relative paths, kinds and file hashes contribute; timestamps do not.
// Two trees with the same shape and content produce the same fingerprint
// wherever they are located.
func TreeFingerprint(root *snapshot.Directory) snapshot.HashCode {
	low := xxhash.NewWithSeed(0)
	high := xxhash.NewWithSeed(1)
	w := io.MultiWriter(low, high)

	snapshot.VisitTree(root, func(_, _ string, relativePath []string, content snapshot.FileContent) {
		_, _ = io.WriteString(w, strings.Join(relativePath, "/"))
		_, _ = w.Write([]byte{0, byte(content.Type)})
		if content.Type == snapshot.TypeRegularFile {
			_, _ = w.Write(content.Hash[:])
		}
	})

	var out snapshot.HashCode
	binary.BigEndian.PutUint64(out[:8], low.Sum64())
	binary.BigEndian.PutUint64(out[8:], high.Sum64())
	return out
}
