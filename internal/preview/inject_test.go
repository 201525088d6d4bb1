package preview

import (
	"strings"
	"testing"
)

func TestAugmentBeforeHead(t *testing.T) {
	html := "<html><head><title>t</title></head><body></body></html>"
	out := Augment(html)
	if strings.Count(out, receiverMarker) != 1 {
		t.Fatalf("expected exactly one receiver, got:\n%s", out)
	}
	if strings.Index(out, receiverMarker) > strings.Index(out, "</head>") {
		t.Fatalf("receiver not injected before </head>:\n%s", out)
	}
}

func TestAugmentBeforeBodyWhenNoHead(t *testing.T) {
	html := "<html><body><p>hi</p></body></html>"
	out := Augment(html)
	if strings.Index(out, receiverMarker) > strings.Index(out, "</body>") {
		t.Fatalf("receiver not injected before </body>:\n%s", out)
	}
}

func TestAugmentAppendsWhenNoTags(t *testing.T) {
	html := "<p>bare fragment</p>"
	out := Augment(html)
	if !strings.HasPrefix(out, html) || !strings.Contains(out, receiverMarker) {
		t.Fatalf("receiver not appended:\n%s", out)
	}
}

func TestAugmentIsIdempotent(t *testing.T) {
	html := "<html><head></head><body></body></html>"
	once := Augment(html)
	twice := Augment(once)
	if once != twice {
		t.Fatalf("double augmentation changed output")
	}
	if strings.Count(twice, receiverMarker) != 1 {
		t.Fatalf("expected exactly one receiver after re-augmentation")
	}
}

func TestAugmentHandlesUppercaseTags(t *testing.T) {
	html := "<HTML><HEAD></HEAD><BODY></BODY></HTML>"
	out := Augment(html)
	if strings.Index(out, receiverMarker) > strings.Index(strings.ToLower(out), "</head>") {
		t.Fatalf("receiver not injected before uppercase head close:\n%s", out)
	}
}
