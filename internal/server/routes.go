package server

import (
	"net/http"

	"appforge/internal/handler"
	"appforge/internal/middleware"
	"appforge/internal/preview"
)

func NewMux(
	generateHandler *handler.GenerateHandler,
	conversationHandler *handler.ConversationHandler,
	previewHandler *preview.Handler,
) http.Handler {
	mux := http.NewServeMux()

	// Generation
	mux.HandleFunc("/api/generate", generateHandler.HandleGenerate)
	mux.HandleFunc("/api/generate/stream", generateHandler.HandleGenerateStream)
	mux.HandleFunc("/api/generate/ws", generateHandler.HandleGenerateWS)

	// Conversation
	mux.HandleFunc("/api/conversation/", conversationHandler.HandleClear)

	// Artifact preview
	mux.Handle(preview.Prefix, previewHandler)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Middleware
	return middleware.CORS(mux)
}
