package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GroqClient calls the Groq Chat Completions API (OpenAI-compatible).
// See: https://console.groq.com/docs/api-reference
type GroqClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

func NewGroqClient(apiKey, model string) (*GroqClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("groq api key is required")
	}
	return &GroqClient{
		http:    &http.Client{Timeout: 120 * time.Second},
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.groq.com/openai/v1/chat/completions",
	}, nil
}

func (g *GroqClient) Name() string { return "Groq:" + g.model }
func (g *GroqClient) Close() error { return nil }

type groqChatReq struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float32           `json:"temperature"`
	Stream         bool              `json:"stream,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type groqChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type groqStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerateJSON asks for a json_object response in a single round trip.
func (g *GroqClient) GenerateJSON(ctx context.Context, system string, msgs []Message) (json.RawMessage, error) {
	resp, err := g.post(ctx, groqChatReq{
		Model:          g.model,
		Messages:       withSystem(system, msgs),
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out groqChatResp
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("groq: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrInvalidJSON
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" || !json.Valid([]byte(content)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(content), nil
}

// GenerateStream consumes the SSE body ("data: {...}" lines terminated by
// "data: [DONE]") and forwards delta text.
func (g *GroqClient) GenerateStream(ctx context.Context, system string, msgs []Message) (<-chan Chunk, error) {
	resp, err := g.post(ctx, groqChatReq{
		Model:    g.model,
		Messages: withSystem(system, msgs),
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				if payload == "[DONE]" {
					return
				}
				continue
			}
			var ev groqStreamResp
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				continue
			}
			if len(ev.Choices) == 0 || ev.Choices[0].Delta.Content == "" {
				continue
			}
			if !deliver(ctx, out, Chunk{Text: ev.Choices[0].Delta.Content}) {
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			deliver(ctx, out, Chunk{Err: err})
		}
	}()
	return out, nil
}

func (g *GroqClient) post(ctx context.Context, body groqChatReq) (*http.Response, error) {
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("groq: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

func withSystem(system string, msgs []Message) []Message {
	if system == "" {
		return msgs
	}
	out := make([]Message, 0, len(msgs)+1)
	out = append(out, Message{Role: "system", Content: system})
	return append(out, msgs...)
}
