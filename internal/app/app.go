package app

import (
	"context"
	"fmt"
	"log"

	"appforge/internal/codegen"
	"appforge/internal/config"
	"appforge/internal/conversation"
	"appforge/internal/handler"
	"appforge/internal/llm"
	"appforge/internal/mirror"
	"appforge/internal/preview"
	"appforge/internal/saver"
	"appforge/internal/server"
)

// App owns the wired service graph and the resources that need teardown.
type App struct {
	Server *server.Server

	model llm.Client
	conv  conversation.Store
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	conv, err := conversation.NewFromEnv(cfg.Conversation.PostgresDSN, cfg.Conversation.Dir, cfg.Conversation.TTL)
	if err != nil {
		return nil, fmt.Errorf("conversation store: %w", err)
	}

	model, err := newLLMClient(ctx, cfg.LLM)
	if err != nil {
		conv.Close()
		return nil, fmt.Errorf("llm client: %w", err)
	}
	log.Printf("using LLM provider %s", model.Name())

	var m saver.Mirror
	if cfg.Mirror.Enabled {
		s3, err := mirror.NewS3Store(mirror.S3Config{
			Endpoint:  cfg.Mirror.Endpoint,
			Region:    cfg.Mirror.Region,
			AccessKey: cfg.Mirror.AccessKey,
			SecretKey: cfg.Mirror.SecretKey,
			Bucket:    cfg.Mirror.Bucket,
			UseSSL:    cfg.Mirror.UseSSL,
		})
		if err != nil {
			log.Printf("artifact mirror disabled: %v", err)
		} else {
			m = s3
		}
	}

	sv, err := saver.New(cfg.OutputRoot, m)
	if err != nil {
		model.Close()
		conv.Close()
		return nil, fmt.Errorf("artifact saver: %w", err)
	}

	previewHandler, err := preview.NewHandler(sv.Root())
	if err != nil {
		model.Close()
		conv.Close()
		return nil, fmt.Errorf("preview handler: %w", err)
	}

	dispatcher := codegen.New(model, conv)
	mux := server.NewMux(
		handler.NewGenerateHandler(dispatcher, sv),
		handler.NewConversationHandler(dispatcher),
		previewHandler,
	)

	return &App{
		Server: server.New(cfg.Port, mux),
		model:  model,
		conv:   conv,
	}, nil
}

func (a *App) Start() error {
	return a.Server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.Server.Shutdown(ctx)
	a.Close()
	return err
}

// Close releases the app's long-lived resources.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.model != nil {
		_ = a.model.Close()
	}
	if a.conv != nil {
		_ = a.conv.Close()
	}
}

func newLLMClient(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "fake":
		return llm.NewFakeClient(), nil
	case "groq":
		return llm.NewGroqClient(cfg.APIKey, cfg.Model)
	case "gemini":
		return llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey: cfg.APIKey,
			Model:  cfg.Model,
			RPS:    cfg.RPS,
			Burst:  cfg.Burst,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
