package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"testing"
)

func hashOf(s string) HashCode {
	var h HashCode
	copy(h[:], s)
	return h
}

func TestHashCodeRoundTrip(t *testing.T) {
	h := hashOf("0123456789abcdef")
	parsed, err := ParseHashCode(h.String())
	if err != nil {
		t.Fatalf("ParseHashCode() error = %v", err)
	}
	if parsed != h {
		t.Errorf("ParseHashCode() = %v, want %v", parsed, h)
	}
	if h.IsZero() {
		t.Error("IsZero() = true for non-zero hash")
	}
	if _, err := ParseHashCode("abcd"); err == nil {
		t.Error("ParseHashCode(short) expected error")
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/a/b/c", []string{"a", "b", "c"}},
		{"/a//b/", []string{"a", "b"}},
		{"/", nil},
		{"", nil},
	}
	for _, tt := range tests {
		got := SplitPath(tt.path)
		if !slices.Equal(got, tt.want) {
			t.Errorf("SplitPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestPathStartsWith(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b/c", "/a/b", true},
		{"/a/bc", "/a/b", false},
		{"/a/b", "/a/b/c", false},
		{"/a/b", "/", true},
		{"/x", "/a", false},
	}
	for _, tt := range tests {
		if got := PathStartsWith(tt.path, tt.prefix); got != tt.want {
			t.Errorf("PathStartsWith(%q, %q) = %v, want %v", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestRootAddFind(t *testing.T) {
	root := NewRoot()
	nodes := map[string]Physical{
		"/work/out/a.txt":  NewRegularFile("/work/out/a.txt", "a.txt", hashOf("a"), FileMetadata{ModTime: 1}),
		"/work/out/sub":    NewDirectory("/work/out/sub", "sub", nil),
		"/work/missing":    NewMissing("/work/missing", "missing"),
		"/other/file.bin":  NewRegularFile("/other/file.bin", "file.bin", hashOf("b"), FileMetadata{ModTime: 2}),
		"/work/out/sub/zz": NewRegularFile("/work/out/sub/zz", "zz", hashOf("c"), FileMetadata{ModTime: 3}),
	}

	for path, node := range nodes {
		if _, err := root.Add(path, node); err != nil {
			t.Fatalf("Add(%q) error = %v", path, err)
		}
	}

	for path, node := range nodes {
		got := root.Find(path)
		if got == nil {
			t.Fatalf("Find(%q) = nil", path)
		}
		if got.Type() != node.Type() {
			t.Errorf("Find(%q).Type() = %v, want %v", path, got.Type(), node.Type())
		}
		if f, ok := node.(*File); ok {
			if got.(*File).Hash() != f.Hash() {
				t.Errorf("Find(%q) hash mismatch", path)
			}
		}
	}

	intermediate := root.Find("/work/out")
	if intermediate == nil || intermediate.Type() != TypeDirectory {
		t.Fatalf("Find(/work/out) = %v, want intermediate directory", intermediate)
	}
	if intermediate.Path() != "/work/out" {
		t.Errorf("intermediate Path() = %q, want /work/out", intermediate.Path())
	}

	if got := root.Find("/work/unknown"); got != nil {
		t.Errorf("Find(unknown) = %v, want nil", got)
	}
	if got := root.Find("/work/out/a.txt/deeper"); got != nil {
		t.Errorf("Find(below file) = %v, want nil", got)
	}
}

func TestRootAddIdempotent(t *testing.T) {
	root := NewRoot()
	first := NewRegularFile("/a/b.txt", "b.txt", hashOf("x"), FileMetadata{ModTime: 1})
	second := NewRegularFile("/a/b.txt", "b.txt", hashOf("x"), FileMetadata{ModTime: 1})

	got1, err := root.Add("/a/b.txt", first)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	got2, err := root.Add("/a/b.txt", second)
	if err != nil {
		t.Fatalf("second Add() error = %v", err)
	}
	if got1 != got2 {
		t.Error("second Add() should return the canonical first node")
	}

	parent := root.Find("/a").(*Directory)
	if parent.Len() != 1 {
		t.Errorf("parent.Len() = %d, want 1", parent.Len())
	}
}

func TestRootAddKindMismatch(t *testing.T) {
	root := NewRoot()
	if _, err := root.Add("/a/b", NewRegularFile("/a/b", "b", hashOf("x"), FileMetadata{ModTime: 1})); err != nil {
		t.Fatal(err)
	}

	_, err := root.Add("/a/b", NewDirectory("/a/b", "b", nil))
	if !errors.Is(err, ErrUnsupportedStructure) {
		t.Errorf("Add(kind mismatch) error = %v, want ErrUnsupportedStructure", err)
	}

	_, err = root.Add("/a/b/c", NewMissing("/a/b/c", "c"))
	if !errors.Is(err, ErrUnsupportedStructure) {
		t.Errorf("Add(below file) error = %v, want ErrUnsupportedStructure", err)
	}
	if !strings.Contains(err.Error(), "/a/b/c") {
		t.Errorf("error %q should name the path", err)
	}
}

func TestRootAddLeavesSealedDirectoryAlone(t *testing.T) {
	root := NewRoot()
	walked := NewSealedDirectory("/w/out", "out", map[string]Physical{
		"a.txt": NewRegularFile("/w/out/a.txt", "a.txt", hashOf("a"), FileMetadata{Size: 1, ModTime: 1}),
	})
	if _, err := root.Add("/w/out", walked); err != nil {
		t.Fatal(err)
	}

	gen := NewSealedDirectory("/w/out/gen", "gen", map[string]Physical{
		"x.txt": NewRegularFile("/w/out/gen/x.txt", "x.txt", hashOf("x"), FileMetadata{Size: 1, ModTime: 2}),
	})
	got, err := root.Add("/w/out/gen", gen)
	if err != nil {
		t.Fatalf("Add(below sealed) error = %v", err)
	}
	if got != gen {
		t.Errorf("Add(below sealed) = %v, want the node itself", got)
	}
	if names := walked.Names(); !slices.Equal(names, []string{"a.txt"}) {
		t.Errorf("walked.Names() = %v, want [a.txt]", names)
	}
	if found := root.Find("/w/out/gen/x.txt"); found != nil {
		t.Errorf("Find(below sealed) = %v, want nil", found)
	}

	// Deeper paths stop at the sealed directory as well.
	if _, err := root.Add("/w/out/gen/deep/y.txt", NewMissing("/w/out/gen/deep/y.txt", "y.txt")); err != nil {
		t.Fatalf("Add(deep below sealed) error = %v", err)
	}
	if walked.Len() != 1 {
		t.Errorf("walked.Len() = %d, want 1", walked.Len())
	}

	// Existing children of a sealed directory still resolve to the canonical node.
	a, err := root.Add("/w/out/a.txt", NewRegularFile("/w/out/a.txt", "a.txt", hashOf("a"), FileMetadata{}))
	if err != nil {
		t.Fatal(err)
	}
	if want, _ := walked.Child("a.txt"); a != want {
		t.Error("Add(existing child of sealed) should return the walked node")
	}

	if !walked.Sealed() || NewDirectory("/d", "d", nil).Sealed() {
		t.Error("Sealed() should only be true for sealed directories")
	}
}

func TestRootAddConcurrentFirstWriterWins(t *testing.T) {
	root := NewRoot()
	const writers = 32

	results := make([]Physical, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/shared/dir/file-%d", i%4)
			node := NewRegularFile(path, fmt.Sprintf("file-%d", i%4), hashOf("same"), FileMetadata{ModTime: 1})
			got, err := root.Add(path, node)
			if err != nil {
				t.Errorf("Add() error = %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	for i := range writers {
		want := root.Find(fmt.Sprintf("/shared/dir/file-%d", i%4))
		if results[i] != want {
			t.Errorf("writer %d observed a node other than the stored one", i)
		}
	}
	if n := root.Find("/shared/dir").(*Directory).Len(); n != 4 {
		t.Errorf("children = %d, want 4", n)
	}
}

func TestRootClear(t *testing.T) {
	root := NewRoot()
	if _, err := root.Add("/a/b", NewMissing("/a/b", "b")); err != nil {
		t.Fatal(err)
	}
	root.Clear()
	if got := root.Find("/a/b"); got != nil {
		t.Errorf("Find() after Clear() = %v, want nil", got)
	}
}

func TestRootAddEmptyPath(t *testing.T) {
	root := NewRoot()
	if _, err := root.Add("/", NewDirectory("/", "", nil)); !errors.Is(err, ErrUnsupportedStructure) {
		t.Errorf("Add(/) error = %v, want ErrUnsupportedStructure", err)
	}
}

func TestVisitTree(t *testing.T) {
	sub := NewDirectory("/r/sub", "sub", map[string]Physical{
		"c.txt": NewRegularFile("/r/sub/c.txt", "c.txt", hashOf("c"), FileMetadata{ModTime: 3}),
	})
	tree := NewDirectory("/r", "r", map[string]Physical{
		"b.txt": NewRegularFile("/r/b.txt", "b.txt", hashOf("b"), FileMetadata{ModTime: 2}),
		"sub":   sub,
		"gone":  NewMissing("/r/gone", "gone"),
	})

	var visited []string
	VisitTree(tree, func(path, name string, relativePath []string, content FileContent) {
		visited = append(visited, fmt.Sprintf("%s:%s:%s", strings.Join(relativePath, "/"), name, content.Type))
	})

	want := []string{
		"b.txt:b.txt:RegularFile",
		"sub:sub:Directory",
		"sub/c.txt:c.txt:RegularFile",
	}
	if !slices.Equal(visited, want) {
		t.Errorf("VisitTree() = %v, want %v", visited, want)
	}

	files, dirs := Count(tree)
	if files != 2 || dirs != 1 {
		t.Errorf("Count() = (%d, %d), want (2, 1)", files, dirs)
	}
}

func TestPathErrorMatching(t *testing.T) {
	err := Unreadable("walk", "/x/y", fs.ErrPermission)
	if !errors.Is(err, ErrUnreadablePath) {
		t.Error("errors.Is(err, ErrUnreadablePath) = false")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("errors.Is(err, fs.ErrPermission) = false")
	}
	var pe *PathError
	if !errors.As(err, &pe) || pe.Path != "/x/y" {
		t.Errorf("errors.As() path = %v, want /x/y", pe)
	}
}

func TestEntryOf(t *testing.T) {
	e := EntryOf("/a/b.txt", NewRegularFile("/a/b.txt", "b.txt", hashOf("h"), FileMetadata{Size: 7, ModTime: 42}))
	if e.Type != TypeRegularFile || e.ModTime != 42 || e.Size != 7 || e.Hash != hashOf("h") {
		t.Errorf("EntryOf() = %+v", e)
	}
	d := EntryOf("/a", NewDirectory("/a", "", nil))
	if d.Name != "a" {
		t.Errorf("EntryOf(dir).Name = %q, want a", d.Name)
	}
}

func TestFileTypeText(t *testing.T) {
	for _, ft := range []FileType{TypeMissing, TypeRegularFile, TypeDirectory} {
		text, err := ft.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v) error = %v", ft, err)
		}
		var got FileType
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if got != ft {
			t.Errorf("UnmarshalText(%q) = %v, want %v", text, got, ft)
		}
	}

	var ft FileType
	if err := ft.UnmarshalText([]byte("Symlink")); err == nil {
		t.Error("UnmarshalText(Symlink) expected error")
	}
}
