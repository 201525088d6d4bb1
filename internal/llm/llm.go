package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Message is one turn of conversational context sent to a model.
type Message struct {
	Role    string `json:"role"` // user | assistant | tool
	Content string `json:"content"`
}

// Chunk is one unit of incremental model output. A non-nil Err is terminal;
// the channel is closed after it.
type Chunk struct {
	Text string
	Err  error
}

// Client is the model capability boundary. Implementations must honor ctx
// cancellation on every call and close the stream channel on all exit paths.
type Client interface {
	Name() string
	// GenerateJSON sends the system prompt plus conversation and returns the
	// model's single structured JSON response.
	GenerateJSON(ctx context.Context, system string, msgs []Message) (json.RawMessage, error)
	// GenerateStream returns a lazy, finite, non-restartable sequence of raw
	// text chunks. The returned channel is closed when the stream ends.
	GenerateStream(ctx context.Context, system string, msgs []Message) (<-chan Chunk, error)
	Close() error
}

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")
