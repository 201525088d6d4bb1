package codegen

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// GenerationType selects the prompt template, output shape and save/serve
// strategy for a request. Wire values match the public API.
type GenerationType string

const (
	TypeHTML       GenerationType = "html"
	TypeMultiFile  GenerationType = "multi_file"
	TypeVueProject GenerationType = "vue_project"
	TypeChat       GenerationType = "chat"
	TypeAgent      GenerationType = "agent"
)

// ParseGenerationType validates a wire value.
func ParseGenerationType(s string) (GenerationType, error) {
	t := GenerationType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeHTML, TypeMultiFile, TypeVueProject, TypeChat, TypeAgent:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Streaming reports whether this type produces an incremental event stream
// rather than a single structured response.
func (t GenerationType) Streaming() bool {
	switch t {
	case TypeVueProject, TypeChat, TypeAgent:
		return true
	}
	return false
}

// Materializing reports whether the stream for this type carries file-write
// events that must land on disk under a deploy key.
func (t GenerationType) Materializing() bool {
	return t == TypeVueProject
}

var (
	ErrUnknownType = errors.New("codegen: unknown generation type")
	ErrValidation  = errors.New("codegen: invalid artifact")
)

// ArtifactFile is one file of a multi-file artifact.
type ArtifactFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Artifact is the tagged union over generation outputs. Type discriminates:
// TypeHTML populates HTML, TypeMultiFile populates Files. Project artifacts
// have no in-memory form; they exist as a stream of file events until they
// are materialized.
type Artifact struct {
	Type  GenerationType `json:"type"`
	HTML  string         `json:"htmlCode,omitempty"`
	Files []ArtifactFile `json:"files,omitempty"`
}

// Validate checks the variant-specific invariants. It performs no I/O.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", ErrValidation)
	}
	switch a.Type {
	case TypeHTML:
		if strings.TrimSpace(a.HTML) == "" {
			return fmt.Errorf("%w: html code is empty", ErrValidation)
		}
		return nil
	case TypeMultiFile:
		if len(a.Files) == 0 {
			return fmt.Errorf("%w: file list is empty", ErrValidation)
		}
		seen := make(map[string]struct{}, len(a.Files))
		for _, f := range a.Files {
			norm, err := NormalizeRelPath(f.Path)
			if err != nil {
				return err
			}
			if _, dup := seen[norm]; dup {
				return fmt.Errorf("%w: duplicate path %q", ErrValidation, norm)
			}
			seen[norm] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%w: type %q has no structured form", ErrValidation, a.Type)
	}
}

// NormalizeRelPath cleans a slash-separated relative path and rejects
// anything empty, absolute or escaping upward.
func NormalizeRelPath(p string) (string, error) {
	raw := strings.TrimSpace(p)
	if raw == "" {
		return "", fmt.Errorf("%w: empty file path", ErrValidation)
	}
	clean := path.Clean(strings.ReplaceAll(raw, "\\", "/"))
	if clean == "." || clean == ".." ||
		strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: unsafe file path %q", ErrValidation, raw)
	}
	return clean, nil
}
