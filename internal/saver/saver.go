package saver

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"appforge/internal/codegen"
	"appforge/internal/fsguard"
)

// ErrIO marks disk failures while materializing an artifact. Cleanup runs
// before the error propagates, so callers never observe a half-written
// deploy key directory.
var ErrIO = errors.New("saver: io failure")

// stagingDir collects in-progress writes under the output root so the final
// promotion is a same-volume rename. The preview server refuses dot-prefixed
// key segments, which keeps staging unreachable.
const stagingDir = ".staging"

// Mirror replicates a saved artifact tree to secondary storage. Mirroring is
// best effort; failures are logged, never surfaced to the caller.
type Mirror interface {
	PutTree(ctx context.Context, deployKey string, files map[string][]byte) error
}

// Saver validates structured artifacts and materializes them under
// <outputRoot>/<deployKey>. Either every file lands and the key becomes
// resolvable, or nothing does.
type Saver struct {
	root   *fsguard.Root
	mirror Mirror
}

func New(outputRoot string, mirror Mirror) (*Saver, error) {
	root, err := fsguard.New(outputRoot)
	if err != nil {
		return nil, err
	}
	if _, err := root.Sub(stagingDir); err != nil {
		return nil, err
	}
	return &Saver{root: root, mirror: mirror}, nil
}

// Root exposes the guarded output root for the preview server.
func (s *Saver) Root() *fsguard.Root { return s.root }

// Save validates a structured artifact and writes it in one shot.
func (s *Saver) Save(ctx context.Context, a *codegen.Artifact) (string, error) {
	if s == nil || s.root == nil {
		return "", fmt.Errorf("saver is nil")
	}
	if err := a.Validate(); err != nil {
		return "", err
	}
	files, err := flatten(a)
	if err != nil {
		return "", err
	}

	key := MintDeployKey(a.Type)
	staging := stagingDir + "/" + uuid.NewString()
	for path, content := range files {
		if err := s.root.WriteFile(staging+"/"+path, content); err != nil {
			_ = s.root.RemoveAll(staging)
			return "", fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
		}
	}
	if err := s.root.Rename(staging, key); err != nil {
		_ = s.root.RemoveAll(staging)
		return "", fmt.Errorf("%w: promote %s: %v", ErrIO, key, err)
	}
	s.replicate(ctx, key, files)
	return key, nil
}

// BeginStream mints a deploy key and opens a staging root for a streaming
// generation. The key does not resolve until Commit succeeds.
func (s *Saver) BeginStream(t codegen.GenerationType) (*StreamSave, error) {
	if s == nil || s.root == nil {
		return nil, fmt.Errorf("saver is nil")
	}
	staging := stagingDir + "/" + uuid.NewString()
	stagingRoot, err := s.root.Sub(staging)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	return &StreamSave{
		saver:   s,
		key:     MintDeployKey(t),
		staging: staging,
		root:    stagingRoot,
	}, nil
}

func (s *Saver) replicate(ctx context.Context, key string, files map[string][]byte) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.PutTree(ctx, key, files); err != nil {
		log.Printf("saver: mirror %s: %v", key, err)
	}
}

// StreamSave is the staging handle for one streaming generation. Exactly one
// of Commit or Abort must be called.
type StreamSave struct {
	saver   *Saver
	key     string
	staging string
	root    *fsguard.Root
	closed  bool
}

// Key returns the deploy key this stream will resolve to after Commit.
func (ss *StreamSave) Key() string { return ss.key }

// Root returns the staging root the materializer writes into.
func (ss *StreamSave) Root() *fsguard.Root { return ss.root }

// Commit promotes the staging directory, making the deploy key resolvable.
func (ss *StreamSave) Commit(ctx context.Context, manifest []string) error {
	if ss == nil || ss.closed {
		return fmt.Errorf("stream save already closed")
	}
	ss.closed = true
	if err := ss.saver.root.Rename(ss.staging, ss.key); err != nil {
		_ = ss.saver.root.RemoveAll(ss.staging)
		return fmt.Errorf("%w: promote %s: %v", ErrIO, ss.key, err)
	}
	if ss.saver.mirror != nil {
		files := make(map[string][]byte, len(manifest))
		for _, path := range manifest {
			raw, err := ss.saver.root.ReadFile(ss.key + "/" + path)
			if err != nil {
				log.Printf("saver: mirror read %s/%s: %v", ss.key, path, err)
				continue
			}
			files[path] = raw
		}
		ss.saver.replicate(ctx, ss.key, files)
	}
	return nil
}

// Abort discards the staging directory. The deploy key never resolves.
func (ss *StreamSave) Abort() {
	if ss == nil || ss.closed {
		return
	}
	ss.closed = true
	_ = ss.saver.root.RemoveAll(ss.staging)
}

// flatten maps an artifact variant onto its on-disk file set.
func flatten(a *codegen.Artifact) (map[string][]byte, error) {
	switch a.Type {
	case codegen.TypeHTML:
		return map[string][]byte{"index.html": []byte(a.HTML)}, nil
	case codegen.TypeMultiFile:
		files := make(map[string][]byte, len(a.Files))
		for _, f := range a.Files {
			norm, err := codegen.NormalizeRelPath(f.Path)
			if err != nil {
				return nil, err
			}
			files[norm] = []byte(f.Content)
		}
		return files, nil
	default:
		return nil, fmt.Errorf("%w: type %q has no structured form", codegen.ErrValidation, a.Type)
	}
}
