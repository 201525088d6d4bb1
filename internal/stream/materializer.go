package stream

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"appforge/internal/fsguard"
)

// ErrPathTraversal is raised when a file event targets a path outside the
// staging root. The whole stream is rejected; this is an attack or a model
// bug, never retried.
var ErrPathTraversal = errors.New("stream: file path escapes artifact root")

// Materializer lands file events under a staging root. It owns cleanup on
// every exit path: Finish validates a complete stream, Abort discards all
// writes. Files may interleave across paths; each path has at most one open
// begin/end pair at a time.
type Materializer struct {
	root *fsguard.Root
	open map[string]*os.File
	seen []string
	done bool
}

func NewMaterializer(root *fsguard.Root) *Materializer {
	return &Materializer{
		root: root,
		open: make(map[string]*os.File),
	}
}

// Apply handles one file-scoped event. Non-file events are ignored so the
// caller can feed the full event stream through. A returned error means the
// stream must be aborted.
func (m *Materializer) Apply(ev Event) error {
	if m == nil || m.root == nil {
		return errors.New("stream: materializer not configured")
	}
	if m.done {
		return errors.New("stream: materializer already finished")
	}
	switch ev.Kind {
	case KindFileBegin:
		if _, ok := m.open[ev.Path]; ok {
			return fmt.Errorf("stream: file %q already open", ev.Path)
		}
		f, err := m.root.Create(ev.Path)
		if err != nil {
			if errors.Is(err, fsguard.ErrTraversal) {
				return fmt.Errorf("%w: %s", ErrPathTraversal, ev.Path)
			}
			return err
		}
		m.open[ev.Path] = f
		return nil
	case KindFileChunk:
		f, ok := m.open[ev.Path]
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrphanChunk, ev.Path)
		}
		_, err := f.WriteString(ev.Text)
		return err
	case KindFileEnd:
		f, ok := m.open[ev.Path]
		if !ok {
			return fmt.Errorf("stream: end for unopened file %s", ev.Path)
		}
		delete(m.open, ev.Path)
		if err := f.Close(); err != nil {
			return err
		}
		m.seen = append(m.seen, ev.Path)
		return nil
	default:
		return nil
	}
}

// Finish completes a successful stream and returns the sorted manifest of
// written relative paths. It fails if any file is still open.
func (m *Materializer) Finish() ([]string, error) {
	if m.done {
		return nil, errors.New("stream: materializer already finished")
	}
	if len(m.open) > 0 {
		m.Abort()
		return nil, fmt.Errorf("%w: %d file(s) still open", ErrUnterminatedFile, len(m.open))
	}
	m.done = true
	if len(m.seen) == 0 {
		return nil, errors.New("stream: no files written")
	}
	paths := append([]string(nil), m.seen...)
	sort.Strings(paths)
	return paths, nil
}

// Abort closes any open files and removes everything written so far. Safe to
// call more than once; partial files never survive.
func (m *Materializer) Abort() {
	if m == nil || m.done {
		return
	}
	m.done = true
	for path, f := range m.open {
		_ = f.Close()
		delete(m.open, path)
	}
	for _, entry := range m.entriesToRemove() {
		_ = m.root.RemoveAll(entry)
	}
}

func (m *Materializer) entriesToRemove() []string {
	entries, err := os.ReadDir(m.root.Path())
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
