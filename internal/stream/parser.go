package stream

import (
	"fmt"
	"strings"
)

// Marker lines used by the streaming code-generation prompts. The model is
// instructed to emit file boundaries on their own lines:
//
//	@@FILE:src/App.vue
//	<template>...</template>
//	@@ENDFILE
//
// and tool invocations as @@TOOL:<name> <payload>.
const (
	markerFile    = "@@FILE:"
	markerEndFile = "@@ENDFILE"
	markerTool    = "@@TOOL:"
)

// Parser folds a raw token stream into structured events. Text outside file
// blocks is forwarded as KindText; lines between @@FILE and @@ENDFILE become
// KindFileChunk events. The parser is not safe for concurrent use.
type Parser struct {
	pending string
	inFile  bool
	path    string
}

// Feed consumes one raw chunk and returns the events it completes. Partial
// lines are buffered across calls so markers split over chunk boundaries are
// still recognized.
func (p *Parser) Feed(text string) []Event {
	if text == "" {
		return nil
	}
	p.pending += text

	var events []Event
	for {
		idx := strings.IndexByte(p.pending, '\n')
		if idx < 0 {
			break
		}
		line := p.pending[:idx]
		p.pending = p.pending[idx+1:]
		events = append(events, p.line(line)...)
	}

	// Outside a file block, flush a partial line eagerly unless it could
	// still grow into a marker; keeps chat streams incremental.
	if !p.inFile && p.pending != "" && !strings.HasPrefix(strings.TrimSpace(p.pending), "@") {
		events = append(events, Event{Kind: KindText, Text: p.pending})
		p.pending = ""
	}
	return events
}

// Close flushes buffered input. A stream ending inside a file block yields a
// KindError event.
func (p *Parser) Close() []Event {
	var events []Event
	if p.pending != "" {
		if p.inFile {
			events = append(events, Event{Kind: KindFileChunk, Path: p.path, Text: p.pending})
		} else {
			events = append(events, p.line(strings.TrimSuffix(p.pending, "\r"))...)
		}
		p.pending = ""
	}
	if p.inFile {
		events = append(events, Event{
			Kind: KindError,
			Err:  fmt.Errorf("%w: %s", ErrUnterminatedFile, p.path),
		})
		p.inFile = false
		p.path = ""
	}
	return events
}

func (p *Parser) line(line string) []Event {
	trimmed := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	switch {
	case strings.HasPrefix(trimmed, markerFile):
		path := strings.TrimSpace(strings.TrimPrefix(trimmed, markerFile))
		if p.inFile {
			return []Event{{
				Kind: KindError,
				Err:  fmt.Errorf("stream: file %q begun before %q ended", path, p.path),
			}}
		}
		if path == "" {
			return []Event{{Kind: KindError, Err: fmt.Errorf("stream: file marker without path")}}
		}
		p.inFile = true
		p.path = path
		return []Event{{Kind: KindFileBegin, Path: path}}
	case trimmed == markerEndFile:
		if !p.inFile {
			// Stray end marker outside a block; forward as text.
			return []Event{{Kind: KindText, Text: line + "\n"}}
		}
		path := p.path
		p.inFile = false
		p.path = ""
		return []Event{{Kind: KindFileEnd, Path: path}}
	case strings.HasPrefix(trimmed, markerTool) && !p.inFile:
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, markerTool))
		name, payload, _ := strings.Cut(rest, " ")
		return []Event{{Kind: KindToolCall, Tool: name, Text: payload}}
	case p.inFile:
		return []Event{{Kind: KindFileChunk, Path: p.path, Text: line + "\n"}}
	default:
		return []Event{{Kind: KindText, Text: line + "\n"}}
	}
}
