package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeClient returns canned payloads for offline use and tests. It records
// every invocation so tests can assert on the context that reached the model.
type FakeClient struct {
	mu sync.Mutex

	// JSON is returned by GenerateJSON. Defaults to a minimal HTML result.
	JSON json.RawMessage
	// Stream chunks are emitted in order by GenerateStream.
	Stream []string
	// Err, when set, fails both methods.
	Err error
	// Block, when non-nil, is received from before GenerateJSON returns.
	// Lets tests hold a turn in flight.
	Block chan struct{}

	Calls []FakeCall
}

// FakeCall is one recorded invocation.
type FakeCall struct {
	System   string
	Messages []Message
	Streamed bool
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		JSON:   json.RawMessage(`{"htmlCode":"<html><body>fake</body></html>"}`),
		Stream: []string{"fake ", "stream"},
	}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, system string, msgs []Message) (json.RawMessage, error) {
	f.record(system, msgs, false)
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.JSON, nil
}

func (f *FakeClient) GenerateStream(ctx context.Context, system string, msgs []Message) (<-chan Chunk, error) {
	f.record(system, msgs, true)
	if f.Err != nil {
		return nil, f.Err
	}
	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, text := range f.Stream {
			if !deliver(ctx, out, Chunk{Text: text}) {
				return
			}
		}
	}()
	return out, nil
}

func (f *FakeClient) record(system string, msgs []Message, streamed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	f.Calls = append(f.Calls, FakeCall{System: system, Messages: cp, Streamed: streamed})
}

// LastCall returns the most recent invocation, if any.
func (f *FakeClient) LastCall() (FakeCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return FakeCall{}, false
	}
	return f.Calls[len(f.Calls)-1], true
}
