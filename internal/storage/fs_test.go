package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("---\ntitle: Hello\n---\n")
	if err := s.WriteFile("hello.books.md", content); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := s.ReadFile("hello.books.md")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
	info, err := os.Stat(filepath.Join(s.Root(), "hello.books.md"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Errorf("perm = %v, want 0644", info.Mode().Perm())
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRoot(t)
	if err := s.WriteFile("a/b/c.md", []byte("deep")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := s.ReadFile("/a/b/c.md")
	if err != nil {
		t.Fatalf("ReadFile with leading slash: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestWriteStreamAndOpenRead(t *testing.T) {
	s := tempRoot(t)
	if err := s.WriteStream(".assets/books/cover/x.png", strings.NewReader("png-bytes")); err != nil {
		t.Fatalf("WriteStream: %v", err)
	}
	rc, err := s.OpenRead(".assets/books/cover/x.png")
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "png-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestExistsAndStat(t *testing.T) {
	s := tempRoot(t)
	ok, err := s.Exists("missing.md")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
	_ = s.WriteFile("here.md", []byte("12345"))
	ok, _ = s.Exists("here.md")
	if !ok {
		t.Error("expected here.md to exist")
	}
	info, err := s.Stat("here.md")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 5 || info.IsDir || info.Path != "here.md" {
		t.Errorf("info = %+v", info)
	}
	if _, err := s.Stat("missing.md"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Stat(missing) err = %v, want ErrNotExist", err)
	}
}

func TestDelete(t *testing.T) {
	s := tempRoot(t)
	_ = s.WriteFile("del.md", []byte("bye"))
	if err := s.Delete("del.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.ReadFile("del.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestMove(t *testing.T) {
	s := tempRoot(t)
	_ = s.WriteFile("old.md", []byte("data"))
	if err := s.Move("old.md", "sub/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	got, err := s.ReadFile("sub/new.md")
	if err != nil {
		t.Fatalf("ReadFile after move: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("content = %q", got)
	}
	if _, err := s.ReadFile("old.md"); err == nil {
		t.Error("old path should not exist")
	}
}

func TestGetFilesIn(t *testing.T) {
	s := tempRoot(t)
	_ = s.WriteFile("a.books.md", []byte("a"))
	_ = s.WriteFile("sub/b.books.md", []byte("b"))
	_ = s.WriteFile(".assets/books/cover/c.png", []byte("c"))

	shallow, err := s.GetFilesIn("", ListOptions{})
	if err != nil {
		t.Fatalf("GetFilesIn: %v", err)
	}
	if diff := cmp.Diff([]string{".assets/", "a.books.md", "sub/"}, shallow); diff != "" {
		t.Errorf("shallow listing mismatch (-want +got):\n%s", diff)
	}

	deep, err := s.GetFilesIn("", ListOptions{Deep: true})
	if err != nil {
		t.Fatalf("GetFilesIn deep: %v", err)
	}
	want := []string{
		".assets/",
		".assets/books/",
		".assets/books/cover/",
		".assets/books/cover/c.png",
		"a.books.md",
		"sub/",
		"sub/b.books.md",
	}
	if diff := cmp.Diff(want, deep); diff != "" {
		t.Errorf("deep listing mismatch (-want +got):\n%s", diff)
	}

	sub, _ := s.GetFilesIn("sub", ListOptions{})
	if diff := cmp.Diff([]string{"sub/b.books.md"}, sub); diff != "" {
		t.Errorf("sub listing mismatch (-want +got):\n%s", diff)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "a/../../x.md"} {
		if _, err := s.ReadFile(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.WriteFile(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteReplaces(t *testing.T) {
	s := tempRoot(t)
	_ = s.WriteFile("atomic.md", []byte("original content"))
	if err := s.WriteFile("atomic.md", []byte("updated content")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, _ := s.ReadFile("atomic.md")
	if string(got) != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %v", entries)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "luzzle-test-*")
	_ = f.Close()
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
