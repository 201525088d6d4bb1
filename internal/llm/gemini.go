package llm

import (
	"context"
	"encoding/json"
	"time"

	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
	rl    *rpsLimiter
}

// GeminiConfig carries the tunables read from the environment by the config
// package. RPS <= 0 disables throttling.
type GeminiConfig struct {
	APIKey string
	Model  string
	RPS    float64
	Burst  int
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{
		cli:   cli,
		model: cfg.Model,
		rl:    newRPSLimiter(cfg.RPS, cfg.Burst),
	}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Close() error {
	if g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

// GenerateJSON requests application/json output and retries transient
// failures with backoff.
func (g *GeminiClient) GenerateJSON(ctx context.Context, system string, msgs []Message) (json.RawMessage, error) {
	contents := toContents(msgs)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		SystemInstruction: systemContent(system),
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		// Each API call consumes a limiter token.
		if err := g.rl.Acquire(ctx); err != nil {
			return nil, err
		}
		resp, err := g.cli.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
			len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrInvalidJSON
		} else {
			return json.RawMessage(resp.Candidates[0].Content.Parts[0].Text), nil
		}
		if ctx.Err() != nil {
			break
		}
		time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
	}
	return nil, lastErr
}

// GenerateStream starts a token stream and forwards text chunks on the
// returned channel. The channel is closed when the model finishes, fails or
// ctx is cancelled; a failure is delivered as the final chunk's Err.
func (g *GeminiClient) GenerateStream(ctx context.Context, system string, msgs []Message) (<-chan Chunk, error) {
	if err := g.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	contents := toContents(msgs)
	cfg := &genai.GenerateContentConfig{SystemInstruction: systemContent(system)}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				deliver(ctx, out, Chunk{Err: err})
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part == nil || part.Text == "" {
					continue
				}
				if !deliver(ctx, out, Chunk{Text: part.Text}) {
					return
				}
			}
		}
	}()
	return out, nil
}

func deliver(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func toContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents
}

func systemContent(system string) *genai.Content {
	if system == "" {
		return nil
	}
	return &genai.Content{Parts: []*genai.Part{{Text: system}}}
}
