package handler

import (
	"net/http"
	"strings"

	"appforge/internal/codegen"
)

// ConversationHandler exposes history management for an application.
type ConversationHandler struct {
	dispatcher *codegen.Dispatcher
}

func NewConversationHandler(d *codegen.Dispatcher) *ConversationHandler {
	return &ConversationHandler{dispatcher: d}
}

// HandleClear drops the stored history for the app in the path, mounted at
// DELETE /api/conversation/{appId}.
func (h *ConversationHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/conversation/")
	appID, err := parseAppID(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.dispatcher.Clear(r.Context(), appID); err != nil {
		http.Error(w, "failed to clear conversation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
