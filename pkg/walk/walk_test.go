package walk

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/albertocavalcante/fsmirror/pkg/hashing"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func skipWithoutSymlinks(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "beta")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	dir, err := New(hashing.XXH3{}).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	if dir.Path() != root {
		t.Errorf("Path() = %q, want %q", dir.Path(), root)
	}
	if dir.Name() != filepath.Base(root) {
		t.Errorf("Name() = %q, want %q", dir.Name(), filepath.Base(root))
	}

	files, dirs := snapshot.Count(dir)
	if files != 2 || dirs != 2 {
		t.Errorf("Count() = (%d, %d), want (2, 2)", files, dirs)
	}

	a, ok := dir.Child("a.txt")
	if !ok {
		t.Fatal("a.txt missing from tree")
	}
	f, ok := a.(*snapshot.File)
	if !ok {
		t.Fatalf("a.txt is %T, want *snapshot.File", a)
	}
	if f.Hash() != hashing.HashBytes([]byte("alpha")) {
		t.Errorf("a.txt hash = %s, want digest of contents", f.Hash())
	}
	if f.Timestamp() == 0 {
		t.Error("a.txt timestamp should be set")
	}
	if f.Path() != filepath.Join(root, "a.txt") {
		t.Errorf("a.txt Path() = %q", f.Path())
	}

	sub, _ := dir.Child("sub")
	if sub.Type() != snapshot.TypeDirectory {
		t.Errorf("sub type = %v, want Directory", sub.Type())
	}
	empty, _ := dir.Child("empty")
	if d, ok := empty.(*snapshot.Directory); !ok || d.Len() != 0 {
		t.Errorf("empty = %v, want empty directory", empty)
	}
}

func TestWalk_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, file, "x")

	_, err := New(hashing.XXH3{}).Walk(file)
	if !errors.Is(err, snapshot.ErrUnsupportedStructure) {
		t.Errorf("Walk(file) error = %v, want ErrUnsupportedStructure", err)
	}
}

func TestWalk_MissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	_, err := New(hashing.XXH3{}).Walk(missing)
	if !errors.Is(err, snapshot.ErrUnreadablePath) {
		t.Errorf("Walk(missing) error = %v, want ErrUnreadablePath", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Walk(missing) error = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestWalk_FollowsSymlinks(t *testing.T) {
	skipWithoutSymlinks(t)

	base := t.TempDir()
	target := filepath.Join(base, "target")
	writeFile(t, filepath.Join(target, "inner.txt"), "inner")
	root := filepath.Join(base, "root")
	writeFile(t, filepath.Join(root, "plain.txt"), "plain")
	if err := os.Symlink(target, filepath.Join(root, "linked")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "plain.txt"), filepath.Join(root, "alias.txt")); err != nil {
		t.Fatal(err)
	}

	dir, err := New(hashing.XXH3{}).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	linked, ok := dir.Child("linked")
	if !ok || linked.Type() != snapshot.TypeDirectory {
		t.Fatalf("linked = %v, want directory", linked)
	}
	if _, ok := linked.(*snapshot.Directory).Child("inner.txt"); !ok {
		t.Error("symlinked directory contents should be walked")
	}

	alias, ok := dir.Child("alias.txt")
	if !ok {
		t.Fatal("alias.txt missing")
	}
	if alias.(*snapshot.File).Hash() != hashing.HashBytes([]byte("plain")) {
		t.Error("symlinked file should hash the target contents")
	}
}

func TestWalk_SymlinkLoop(t *testing.T) {
	skipWithoutSymlinks(t)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "file.txt"), "x")
	if err := os.Symlink(root, filepath.Join(root, "a", "loop")); err != nil {
		t.Fatal(err)
	}

	dir, err := New(hashing.XXH3{}).Walk(root)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	a, _ := dir.Child("a")
	loop, ok := a.(*snapshot.Directory).Child("loop")
	if !ok {
		t.Fatal("loop entry should be recorded")
	}
	d, ok := loop.(*snapshot.Directory)
	if !ok {
		t.Fatalf("loop is %T, want *snapshot.Directory", loop)
	}
	if d.Len() != 0 {
		t.Errorf("loop has %d children, want empty subtree", d.Len())
	}
}

func TestWalk_BrokenSymlink(t *testing.T) {
	skipWithoutSymlinks(t)

	root := t.TempDir()
	broken := filepath.Join(root, "dangling")
	if err := os.Symlink(filepath.Join(root, "does-not-exist"), broken); err != nil {
		t.Fatal(err)
	}

	_, err := New(hashing.XXH3{}).Walk(root)
	if !errors.Is(err, snapshot.ErrUnreadablePath) {
		t.Fatalf("Walk() error = %v, want ErrUnreadablePath", err)
	}
	if !strings.Contains(err.Error(), broken) {
		t.Errorf("error %q should name %q", err, broken)
	}

	var pe *snapshot.PathError
	if !errors.As(err, &pe) || pe.Path != broken {
		t.Errorf("PathError.Path = %v, want %q", pe, broken)
	}
}

type failingHasher struct{}

func (failingHasher) Hash(string, snapshot.FileMetadata) (snapshot.HashCode, error) {
	return snapshot.HashCode{}, errors.New("boom")
}

func TestWalk_HashFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")

	_, err := New(failingHasher{}).Walk(root)
	if !errors.Is(err, snapshot.ErrUnreadablePath) {
		t.Errorf("Walk() error = %v, want ErrUnreadablePath", err)
	}
}

func TestTimestamp(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	writeFile(t, file, "x")
	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}

	ts := Timestamp(info)
	if ts < info.ModTime().UnixNano() {
		t.Errorf("Timestamp() = %d, should not precede mtime %d", ts, info.ModTime().UnixNano())
	}
}
