package saver

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/teris-io/shortid"

	"appforge/internal/codegen"
)

var keyPrefix = map[codegen.GenerationType]string{
	codegen.TypeHTML:       "html",
	codegen.TypeMultiFile:  "multi",
	codegen.TypeVueProject: "vue",
	codegen.TypeChat:       "chat",
	codegen.TypeAgent:      "agent",
}

// MintDeployKey returns a new opaque key of the form <prefix>_<shortid>.
// The shortid part makes keys unguessable enough to serve as a public
// namespace; a crypto/rand fallback covers generator errors.
func MintDeployKey(t codegen.GenerationType) string {
	prefix, ok := keyPrefix[t]
	if !ok {
		prefix = "app"
	}
	id, err := shortid.Generate()
	if err != nil {
		var b [8]byte
		_, _ = rand.Read(b[:])
		id = hex.EncodeToString(b[:])
	}
	// shortid may emit characters awkward in URLs/paths; normalize them.
	id = strings.NewReplacer("/", "x", "+", "y", "-", "z").Replace(id)
	return prefix + "_" + id
}
