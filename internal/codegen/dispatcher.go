package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"appforge/internal/conversation"
	"appforge/internal/llm"
	"appforge/internal/stream"
)

// strategy binds a generation type to its prompt and, for structured types,
// the parser turning the model's JSON into an artifact.
type strategy struct {
	system string
	parse  func(raw json.RawMessage) (*Artifact, error)
}

var strategies = map[GenerationType]strategy{
	TypeHTML:       {system: htmlSystemPrompt, parse: parseHTMLResult},
	TypeMultiFile:  {system: multiFileSystemPrompt, parse: parseMultiFileResult},
	TypeVueProject: {system: vueProjectSystemPrompt},
	TypeChat:       {system: chatSystemPrompt},
	TypeAgent:      {system: agentSystemPrompt},
}

// Dispatcher selects the generation strategy for a request, invokes the
// model with the app's conversation context and keeps the history current.
// At most one turn per app is active at a time; a second request is rejected
// with ErrTurnInFlight (explicit policy: reject, not queue).
type Dispatcher struct {
	model llm.Client
	conv  conversation.Store

	mu       sync.Mutex
	inflight map[int64]struct{}
}

func New(model llm.Client, conv conversation.Store) *Dispatcher {
	return &Dispatcher{
		model:    model,
		conv:     conv,
		inflight: make(map[int64]struct{}),
	}
}

// Generate runs one synchronous turn for a structured type and returns the
// validated artifact. The user and assistant messages are appended to the
// conversation exactly once, after the model's response is accepted.
func (d *Dispatcher) Generate(ctx context.Context, appID int64, userMessage string, t GenerationType) (*Artifact, error) {
	strat, err := d.checkRequest(userMessage, t)
	if err != nil {
		return nil, err
	}
	if t.Streaming() {
		return nil, fmt.Errorf("codegen: type %q requires the streaming path", t)
	}
	if !d.acquire(appID) {
		return nil, ErrTurnInFlight
	}
	defer d.release(appID)

	msgs := d.contextFor(ctx, appID, userMessage)
	raw, err := d.model.GenerateJSON(ctx, strat.system, msgs)
	if err != nil {
		return nil, &GenerationError{AppID: appID, Type: t, Err: err}
	}
	artifact, err := strat.parse(raw)
	if err != nil {
		return nil, &GenerationError{AppID: appID, Type: t, Partial: string(raw), Err: err}
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	d.appendTurn(ctx, appID, userMessage, string(raw))
	return artifact, nil
}

// GenerateStream starts a streaming turn and returns its handle. The
// conversation is updated only when the stream reaches done; cancellation
// and failures persist nothing.
func (d *Dispatcher) GenerateStream(ctx context.Context, appID int64, userMessage string, t GenerationType) (*stream.Handle, error) {
	strat, err := d.checkRequest(userMessage, t)
	if err != nil {
		return nil, err
	}
	if !t.Streaming() {
		return nil, fmt.Errorf("codegen: type %q requires the synchronous path", t)
	}
	if !d.acquire(appID) {
		return nil, ErrTurnInFlight
	}

	sctx, cancel := context.WithCancel(ctx)
	msgs := d.contextFor(sctx, appID, userMessage)
	chunks, err := d.model.GenerateStream(sctx, strat.system, msgs)
	if err != nil {
		cancel()
		d.release(appID)
		return nil, &GenerationError{AppID: appID, Type: t, Err: err}
	}

	h := stream.NewHandle(cancel)
	go d.pump(sctx, h, chunks, appID, userMessage, t)
	return h, nil
}

// Clear drops the conversation history for an app.
func (d *Dispatcher) Clear(ctx context.Context, appID int64) error {
	return d.conv.Clear(ctx, appID)
}

func (d *Dispatcher) pump(ctx context.Context, h *stream.Handle, chunks <-chan llm.Chunk, appID int64, userMessage string, t GenerationType) {
	defer d.release(appID)
	defer h.CloseSend()

	parser := &stream.Parser{}
	var full strings.Builder

	emit := func(events []stream.Event) (ok, failed bool) {
		for _, ev := range events {
			if !h.Emit(ctx, ev) {
				return false, false
			}
			if ev.Kind == stream.KindError {
				return true, true
			}
		}
		return true, false
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			h.Emit(ctx, stream.Event{
				Kind: stream.KindError,
				Err:  &GenerationError{AppID: appID, Type: t, Partial: full.String(), Err: chunk.Err},
			})
			return
		}
		full.WriteString(chunk.Text)
		ok, failed := emit(parser.Feed(chunk.Text))
		if !ok || failed {
			return
		}
	}
	if ctx.Err() != nil {
		return // cancelled: nothing persisted
	}
	ok, failed := emit(parser.Close())
	if !ok || failed {
		return
	}

	// Persist the completed turn before signalling done, so a consumer that
	// reacts to done always sees the updated history.
	d.appendTurn(ctx, appID, userMessage, full.String())
	h.Emit(ctx, stream.Event{Kind: stream.KindDone})
}

func (d *Dispatcher) checkRequest(userMessage string, t GenerationType) (strategy, error) {
	if strings.TrimSpace(userMessage) == "" {
		return strategy{}, ErrEmptyMessage
	}
	strat, ok := strategies[t]
	if !ok {
		return strategy{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return strat, nil
}

// contextFor loads prior history and appends the new user message. A failing
// store already degraded to an empty history internally.
func (d *Dispatcher) contextFor(ctx context.Context, appID int64, userMessage string) []llm.Message {
	history, err := d.conv.Load(ctx, appID)
	if err != nil {
		log.Printf("codegen: history unavailable for app %d: %v", appID, err)
		history = nil
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, e := range history {
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Content})
	}
	return append(msgs, llm.Message{Role: conversation.RoleUser, Content: userMessage})
}

// appendTurn replaces the stored history with the old one plus this turn's
// user and assistant messages. Writes are serialized per app by the
// single-flight lock, so replace-wholesale is safe.
func (d *Dispatcher) appendTurn(ctx context.Context, appID int64, userMessage, assistantMessage string) {
	// The turn is already complete; persist it even if the request context
	// was torn down right after done.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	history, err := d.conv.Load(wctx, appID)
	if err != nil {
		history = nil
	}
	now := time.Now().UTC()
	history = append(history,
		conversation.Entry{Role: conversation.RoleUser, Content: userMessage, Timestamp: now},
		conversation.Entry{Role: conversation.RoleAssistant, Content: assistantMessage, Timestamp: now},
	)
	if err := d.conv.Replace(wctx, appID, history); err != nil {
		log.Printf("codegen: persist turn for app %d: %v", appID, err)
	}
}

func (d *Dispatcher) acquire(appID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inflight[appID]; busy {
		return false
	}
	d.inflight[appID] = struct{}{}
	return true
}

func (d *Dispatcher) release(appID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, appID)
}

func parseHTMLResult(raw json.RawMessage) (*Artifact, error) {
	var out struct {
		HTMLCode string `json:"htmlCode"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidJSON, err)
	}
	return &Artifact{Type: TypeHTML, HTML: out.HTMLCode}, nil
}

func parseMultiFileResult(raw json.RawMessage) (*Artifact, error) {
	var out struct {
		Files []ArtifactFile `json:"files"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrInvalidJSON, err)
	}
	return &Artifact{Type: TypeMultiFile, Files: out.Files}, nil
}
