package preview

import "strings"

// receiverMarker identifies an already-augmented document; its presence
// makes augmentation a no-op, so repeated rewrites never double-inject.
const receiverMarker = `id="visual-editor-receiver"`

// receiverSnippet is the message-listener bridge injected into previewed
// HTML. A host page posts {type: "INJECT_SCRIPT", script} and the snippet
// executes the script in the document's global scope, logging failures
// instead of crashing the page.
const receiverSnippet = `<script id="visual-editor-receiver">
  window.addEventListener('message', function(event) {
    if (event.data && event.data.type === 'INJECT_SCRIPT' && event.data.script) {
      try {
        new Function(event.data.script)();
      } catch (e) {
        console.error('inject script failed:', e);
      }
    }
  });
</script>
`

// Augment injects the receiver snippet before </head> when present, else
// before </body>, else appends it. Idempotent: a document carrying the
// marker is returned unchanged.
func Augment(html string) string {
	if strings.Contains(html, receiverMarker) {
		return html
	}
	lower := strings.ToLower(html)
	if i := strings.LastIndex(lower, "</head>"); i >= 0 {
		return html[:i] + receiverSnippet + html[i:]
	}
	if i := strings.LastIndex(lower, "</body>"); i >= 0 {
		return html[:i] + receiverSnippet + html[i:]
	}
	return html + receiverSnippet
}
