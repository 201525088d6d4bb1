package fsguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveRejectsTraversal(t *testing.T) {
	root, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	for _, rel := range []string{
		"../outside",
		"..",
		"a/../../b",
		"/etc/passwd",
	} {
		if _, err := root.Resolve(rel); !errors.Is(err, ErrTraversal) {
			t.Fatalf("expected ErrTraversal for %q, got %v", rel, err)
		}
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	root, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	if err := root.WriteFile("sub/dir/file.txt", []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := root.ReadFile("sub/dir/file.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "hello" {
		t.Fatalf("unexpected content: %q", raw)
	}
}

func TestRenamePromotesSubtree(t *testing.T) {
	root, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	if err := root.WriteFile("staging/x/index.html", []byte("<html></html>")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := root.Rename("staging/x", "live"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := root.ReadFile("live/index.html"); err != nil {
		t.Fatalf("read after rename: %v", err)
	}
	if _, err := root.Stat("staging/x"); !os.IsNotExist(err) {
		t.Fatalf("expected staging source to be gone, got %v", err)
	}
}

func TestReadRejectsSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(base, "outside.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write outside: %v", err)
	}
	dir := filepath.Join(base, "root")
	root, err := New(dir)
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlink not supported: %v", err)
	}
	if _, err := root.ReadFile("link.txt"); err == nil {
		t.Fatalf("expected symlink escape to be rejected")
	}
}

func TestRemoveAllRefusesRoot(t *testing.T) {
	root, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	if err := root.RemoveAll("."); err == nil {
		t.Fatalf("expected refusal to remove root")
	}
}
