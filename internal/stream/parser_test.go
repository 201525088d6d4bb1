package stream

import (
	"errors"
	"strings"
	"testing"
)

func collect(p *Parser, chunks ...string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, p.Feed(c)...)
	}
	return append(events, p.Close()...)
}

func TestParserTextPassThrough(t *testing.T) {
	events := collect(&Parser{}, "hello ", "world\nsecond line")
	var text strings.Builder
	for _, ev := range events {
		if ev.Kind != KindText {
			t.Fatalf("unexpected kind %s", ev.Kind)
		}
		text.WriteString(ev.Text)
	}
	if text.String() != "hello world\nsecond line" {
		t.Fatalf("unexpected text: %q", text.String())
	}
}

func TestParserFileBlock(t *testing.T) {
	input := "intro\n@@FILE:src/main.js\nconsole.log(1)\nconsole.log(2)\n@@ENDFILE\noutro\n"
	events := collect(&Parser{}, input)

	var kinds []Kind
	var content strings.Builder
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == KindFileChunk {
			if ev.Path != "src/main.js" {
				t.Fatalf("chunk path = %q", ev.Path)
			}
			content.WriteString(ev.Text)
		}
	}
	want := []Kind{KindText, KindFileBegin, KindFileChunk, KindFileChunk, KindFileEnd, KindText}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
	if content.String() != "console.log(1)\nconsole.log(2)\n" {
		t.Fatalf("content = %q", content.String())
	}
}

func TestParserMarkerSplitAcrossChunks(t *testing.T) {
	events := collect(&Parser{}, "@@FI", "LE:a.txt\nbody\n@@END", "FILE\n")
	var begins, ends int
	for _, ev := range events {
		switch ev.Kind {
		case KindFileBegin:
			begins++
			if ev.Path != "a.txt" {
				t.Fatalf("path = %q", ev.Path)
			}
		case KindFileEnd:
			ends++
		case KindError:
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if begins != 1 || ends != 1 {
		t.Fatalf("begins=%d ends=%d", begins, ends)
	}
}

func TestParserUnterminatedFile(t *testing.T) {
	events := collect(&Parser{}, "@@FILE:a.txt\npartial content\n")
	last := events[len(events)-1]
	if last.Kind != KindError || !errors.Is(last.Err, ErrUnterminatedFile) {
		t.Fatalf("expected unterminated-file error, got %+v", last)
	}
}

func TestParserToolCall(t *testing.T) {
	events := collect(&Parser{}, "@@TOOL:search {\"q\":\"docs\"}\n")
	if len(events) != 1 || events[0].Kind != KindToolCall {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Tool != "search" || events[0].Text != `{"q":"docs"}` {
		t.Fatalf("tool call = %+v", events[0])
	}
}

func TestParserInterleavedFiles(t *testing.T) {
	input := "@@FILE:a.txt\nA\n@@ENDFILE\n@@FILE:b.txt\nB\n@@ENDFILE\n"
	events := collect(&Parser{}, input)
	var paths []string
	for _, ev := range events {
		if ev.Kind == KindFileEnd {
			paths = append(paths, ev.Path)
		}
	}
	if len(paths) != 2 || paths[0] != "a.txt" || paths[1] != "b.txt" {
		t.Fatalf("paths = %v", paths)
	}
}
