package preview

import (
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"appforge/internal/fsguard"
)

// Prefix is the public route under which artifacts are served.
const Prefix = "/static/"

// ContentTypeFor maps a file extension to its served content type.
func ContentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

type cachedDoc struct {
	body    []byte
	modTime int64
}

// Handler serves materialized artifacts read-only. HTML responses are
// augmented at serve time; the on-disk artifact stays pristine and repeated
// requests are idempotent. Augmented documents are cached in a bounded LRU
// keyed by path and mtime, so the rewrite cost is paid once per version.
type Handler struct {
	root  *fsguard.Root
	cache *lru.Cache[string, cachedDoc]

	// Augmenter is the serve-time HTML rewrite policy. Swappable; defaults
	// to Augment.
	Augmenter func(string) string
}

func NewHandler(root *fsguard.Root) (*Handler, error) {
	if root == nil {
		return nil, fmt.Errorf("preview: output root is required")
	}
	cache, err := lru.New[string, cachedDoc](512)
	if err != nil {
		return nil, err
	}
	return &Handler{root: root, cache: cache, Augmenter: Augment}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, Prefix)
	if rest == r.URL.Path || rest == "" {
		http.NotFound(w, r)
		return
	}

	key, filePath, hasSlash := strings.Cut(rest, "/")
	if !validDeployKey(key) {
		http.NotFound(w, r)
		return
	}
	// Directory-style access without a trailing slash: redirect so relative
	// asset URLs in the document resolve under the deploy key.
	if !hasSlash {
		http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
		return
	}
	if filePath == "" {
		filePath = "index.html"
	}
	// ".." anywhere in the remainder is an escape attempt on the deploy key
	// sandbox; answer as absence, never resolve it.
	if containsDotDot(filePath) {
		http.NotFound(w, r)
		return
	}

	rel := key + "/" + filePath
	raw, err := h.root.ReadFile(rel)
	if err != nil {
		// Traversal attempts and read races against an in-progress save both
		// surface as absence; internal paths never leak.
		http.NotFound(w, r)
		return
	}

	contentType := ContentTypeFor(filePath)
	if strings.HasPrefix(contentType, "text/html") {
		raw, err = h.augmented(rel, raw)
		if err != nil {
			log.Printf("preview: augment %s: %v", rel, err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(raw)
	}
}

func (h *Handler) augmented(rel string, raw []byte) ([]byte, error) {
	info, err := h.root.Stat(rel)
	if err != nil {
		return nil, err
	}
	mod := info.ModTime().UnixNano()
	if doc, ok := h.cache.Get(rel); ok && doc.modTime == mod {
		return doc.body, nil
	}
	body := []byte(h.Augmenter(string(raw)))
	h.cache.Add(rel, cachedDoc{body: body, modTime: mod})
	return body, nil
}

// validDeployKey rejects empty, dot-prefixed (staging) and path-ish key
// segments before any filesystem access happens.
func validDeployKey(key string) bool {
	if key == "" || strings.HasPrefix(key, ".") {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

func containsDotDot(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
