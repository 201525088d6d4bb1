package stream

import "errors"

// Kind discriminates stream events.
type Kind string

const (
	KindText      Kind = "text"
	KindFileBegin Kind = "file_begin"
	KindFileChunk Kind = "file_chunk"
	KindFileEnd   Kind = "file_end"
	KindToolCall  Kind = "tool_call"
	KindDone      Kind = "done"
	KindError     Kind = "error"
)

// Event is one unit of incremental generation output. Text carries the chunk
// payload for KindText and KindFileChunk; Path identifies the file for all
// file-scoped kinds; Tool names the tool for KindToolCall.
type Event struct {
	Kind Kind
	Text string
	Path string
	Tool string
	Err  error
}

var (
	// ErrUnterminatedFile is raised when the stream ends inside a file block.
	ErrUnterminatedFile = errors.New("stream: unterminated file block")
	// ErrOrphanChunk is raised for a file chunk with no open file.
	ErrOrphanChunk = errors.New("stream: file chunk without open file")
)
