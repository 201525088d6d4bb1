package fsguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrTraversal is returned when a path would escape the root.
var ErrTraversal = errors.New("fsguard: path escapes root")

// Root confines all filesystem operations to a fixed base directory.
// Relative paths are resolved against the root; anything that would land
// outside it is rejected with ErrTraversal.
type Root struct {
	abs string
}

// New binds a Root to dir, creating it if needed.
func New(dir string) (*Root, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("fsguard: empty root")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	return &Root{abs: resolved}, nil
}

// Path returns the absolute base directory.
func (r *Root) Path() string {
	if r == nil {
		return ""
	}
	return r.abs
}

// Sub returns a Root for a subdirectory, creating it if needed.
func (r *Root) Sub(rel string) (*Root, error) {
	p, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return New(p)
}

// Resolve maps a slash- or OS-separated relative path to an absolute path
// under the root. Absolute paths and ".." segments are rejected.
func (r *Root) Resolve(rel string) (string, error) {
	if r == nil {
		return "", errors.New("fsguard: root not configured")
	}
	if rel == "" {
		return "", errors.New("fsguard: empty path")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." {
		return r.abs, nil
	}
	if filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "") {
		return "", ErrTraversal
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrTraversal
	}
	joined := filepath.Join(r.abs, clean)
	if !hasPathPrefix(joined, r.abs) {
		return "", fmt.Errorf("%w: %s", ErrTraversal, rel)
	}
	return joined, nil
}

// ReadFile reads a file under the root. Symlinks inside the tree are
// resolved and re-checked against the root before reading.
func (r *Root) ReadFile(rel string) ([]byte, error) {
	p, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return nil, err
	}
	if !hasPathPrefix(resolved, r.abs) {
		return nil, ErrTraversal
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("fsguard: path is a directory")
	}
	return os.ReadFile(resolved)
}

// Stat returns metadata for a path under the root.
func (r *Root) Stat(rel string) (fs.FileInfo, error) {
	p, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// WriteFile writes a file under the root, creating parent directories.
func (r *Root) WriteFile(rel string, data []byte) error {
	p, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// Create opens a new file under the root for writing, creating parents.
func (r *Root) Create(rel string) (*os.File, error) {
	p, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.Create(p)
}

// Remove deletes a single file under the root.
func (r *Root) Remove(rel string) error {
	p, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// RemoveAll deletes a subtree under the root.
func (r *Root) RemoveAll(rel string) error {
	p, err := r.Resolve(rel)
	if err != nil {
		return err
	}
	if p == r.abs {
		return errors.New("fsguard: refusing to remove root")
	}
	return os.RemoveAll(p)
}

// Rename moves a subtree to a new location under the same root. Both ends
// stay inside the root, which keeps the move on one volume so it is atomic
// on POSIX filesystems.
func (r *Root) Rename(oldRel, newRel string) error {
	from, err := r.Resolve(oldRel)
	if err != nil {
		return err
	}
	to, err := r.Resolve(newRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	return os.Rename(from, to)
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}
