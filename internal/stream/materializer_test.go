package stream

import (
	"errors"
	"os"
	"testing"

	"appforge/internal/fsguard"
)

func stagingRoot(t *testing.T) *fsguard.Root {
	t.Helper()
	root, err := fsguard.New(t.TempDir())
	if err != nil {
		t.Fatalf("new root: %v", err)
	}
	return root
}

func apply(t *testing.T, m *Materializer, events ...Event) {
	t.Helper()
	for _, ev := range events {
		if err := m.Apply(ev); err != nil {
			t.Fatalf("apply %+v: %v", ev, err)
		}
	}
}

func TestMaterializerWritesFiles(t *testing.T) {
	root := stagingRoot(t)
	m := NewMaterializer(root)
	apply(t, m,
		Event{Kind: KindFileBegin, Path: "index.html"},
		Event{Kind: KindFileChunk, Path: "index.html", Text: "<h1>hi</h1>\n"},
		Event{Kind: KindFileEnd, Path: "index.html"},
		Event{Kind: KindFileBegin, Path: "css/site.css"},
		Event{Kind: KindFileChunk, Path: "css/site.css", Text: "h1{color:red}\n"},
		Event{Kind: KindFileEnd, Path: "css/site.css"},
	)
	paths, err := m.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(paths) != 2 || paths[0] != "css/site.css" || paths[1] != "index.html" {
		t.Fatalf("manifest = %v", paths)
	}
	raw, err := root.ReadFile("index.html")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "<h1>hi</h1>\n" {
		t.Fatalf("content = %q", raw)
	}
}

func TestMaterializerRejectsTraversal(t *testing.T) {
	m := NewMaterializer(stagingRoot(t))
	err := m.Apply(Event{Kind: KindFileBegin, Path: "../escape.txt"})
	if !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("expected ErrPathTraversal, got %v", err)
	}
}

func TestMaterializerAbortRemovesEverything(t *testing.T) {
	root := stagingRoot(t)
	m := NewMaterializer(root)
	apply(t, m,
		Event{Kind: KindFileBegin, Path: "done.txt"},
		Event{Kind: KindFileChunk, Path: "done.txt", Text: "complete\n"},
		Event{Kind: KindFileEnd, Path: "done.txt"},
		Event{Kind: KindFileBegin, Path: "partial.txt"},
		Event{Kind: KindFileChunk, Path: "partial.txt", Text: "half"},
	)
	m.Abort()

	entries, err := os.ReadDir(root.Path())
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty staging dir, found %d entries", len(entries))
	}
}

func TestMaterializerFinishFailsWithOpenFile(t *testing.T) {
	root := stagingRoot(t)
	m := NewMaterializer(root)
	apply(t, m, Event{Kind: KindFileBegin, Path: "open.txt"})
	if _, err := m.Finish(); !errors.Is(err, ErrUnterminatedFile) {
		t.Fatalf("expected ErrUnterminatedFile, got %v", err)
	}
	// The failed finish must leave no partial files behind.
	entries, err := os.ReadDir(root.Path())
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected cleanup after failed finish, found %d entries", len(entries))
	}
}

func TestMaterializerOrphanChunk(t *testing.T) {
	m := NewMaterializer(stagingRoot(t))
	err := m.Apply(Event{Kind: KindFileChunk, Path: "nope.txt", Text: "x"})
	if !errors.Is(err, ErrOrphanChunk) {
		t.Fatalf("expected ErrOrphanChunk, got %v", err)
	}
}
