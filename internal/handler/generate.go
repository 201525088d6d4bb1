package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"appforge/internal/codegen"
	"appforge/internal/saver"
	"appforge/internal/stream"
)

// GenerateHandler serves the generation endpoints: the synchronous JSON path
// for structured types and the SSE path for streaming types.
type GenerateHandler struct {
	dispatcher *codegen.Dispatcher
	saver      *saver.Saver
}

func NewGenerateHandler(d *codegen.Dispatcher, s *saver.Saver) *GenerateHandler {
	return &GenerateHandler{dispatcher: d, saver: s}
}

type generateRequest struct {
	AppID       int64  `json:"appId"`
	UserMessage string `json:"userMessage"`
	Type        string `json:"type"`
}

type generateResponse struct {
	DeployKey string                 `json:"deployKey"`
	Type      string                 `json:"type"`
	HTMLCode  string                 `json:"htmlCode,omitempty"`
	Files     []codegen.ArtifactFile `json:"files,omitempty"`
}

// wireEvent is the JSON shape of one stream event for SSE and websocket
// consumers.
type wireEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Path      string `json:"path,omitempty"`
	Tool      string `json:"tool,omitempty"`
	DeployKey string `json:"deployKey,omitempty"`
	Message   string `json:"message,omitempty"`
}

func toWireEvent(ev stream.Event) wireEvent {
	out := wireEvent{Type: string(ev.Kind), Text: ev.Text, Path: ev.Path, Tool: ev.Tool}
	if ev.Err != nil {
		out.Message = ev.Err.Error()
	}
	return out
}

// HandleGenerate runs one synchronous turn and saves the artifact.
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AppID <= 0 {
		http.Error(w, "appId is required", http.StatusBadRequest)
		return
	}
	t, err := codegen.ParseGenerationType(req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if t.Streaming() {
		http.Error(w, fmt.Sprintf("type %q is served by the streaming endpoints", t), http.StatusBadRequest)
		return
	}

	artifact, err := h.dispatcher.Generate(r.Context(), req.AppID, req.UserMessage, t)
	if err != nil {
		writeGenerateError(w, err)
		return
	}
	key, err := h.saver.Save(r.Context(), artifact)
	if err != nil {
		log.Printf("handler: save app %d: %v", req.AppID, err)
		http.Error(w, "failed to save artifact", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		DeployKey: key,
		Type:      string(t),
		HTMLCode:  artifact.HTML,
		Files:     artifact.Files,
	})
}

// HandleGenerateStream runs one streaming turn over SSE. For project types
// the parsed files are staged on disk and promoted on done; the final done
// event carries the deploy key.
func (h *GenerateHandler) HandleGenerateStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	appID, err := parseAppID(r.URL.Query().Get("appId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	t, err := codegen.ParseGenerationType(r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !t.Streaming() {
		http.Error(w, fmt.Sprintf("type %q is served by the synchronous endpoint", t), http.StatusBadRequest)
		return
	}
	userMessage := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sh, err := h.dispatcher.GenerateStream(r.Context(), appID, userMessage, t)
	if err != nil {
		writeGenerateError(w, err)
		return
	}
	defer sh.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(ev wireEvent) bool {
		data, err := json.Marshal(ev)
		if err != nil {
			return true
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	sink, err := h.newSink(t)
	if err != nil {
		send(wireEvent{Type: string(stream.KindError), Message: "failed to prepare artifact storage"})
		return
	}
	defer sink.abort()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sh.Events():
			if !ok {
				return
			}
			out, done, err := sink.apply(ctx, ev)
			if err != nil {
				log.Printf("handler: materialize app %d: %v", appID, err)
				sh.Cancel()
				send(wireEvent{Type: string(stream.KindError), Message: err.Error()})
				return
			}
			if !send(out) {
				return
			}
			if done || ev.Kind == stream.KindError {
				return
			}
		}
	}
}

// eventSink folds stream events into their side effects. For project types it
// writes file events into a staging directory and promotes on done; for pure
// chat types it only translates events to the wire.
type eventSink struct {
	save *saver.StreamSave
	mat  *stream.Materializer
}

func (h *GenerateHandler) newSink(t codegen.GenerationType) (*eventSink, error) {
	if !t.Materializing() {
		return &eventSink{}, nil
	}
	save, err := h.saver.BeginStream(t)
	if err != nil {
		return nil, err
	}
	return &eventSink{save: save, mat: stream.NewMaterializer(save.Root())}, nil
}

// apply processes one event. The returned wire event is what the client
// sees; done reports that the stream completed and was committed.
func (s *eventSink) apply(ctx context.Context, ev stream.Event) (wireEvent, bool, error) {
	if s.mat != nil {
		if err := s.mat.Apply(ev); err != nil {
			s.abort()
			return wireEvent{}, false, err
		}
	}
	out := toWireEvent(ev)
	if ev.Kind != stream.KindDone {
		return out, false, nil
	}
	if s.save != nil {
		manifest, err := s.mat.Finish()
		if err != nil {
			s.abort()
			return wireEvent{}, false, err
		}
		if err := s.save.Commit(ctx, manifest); err != nil {
			return wireEvent{}, false, err
		}
		out.DeployKey = s.save.Key()
	}
	return out, true, nil
}

func (s *eventSink) abort() {
	if s.mat != nil {
		s.mat.Abort()
	}
	if s.save != nil {
		s.save.Abort()
	}
}

func parseAppID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("appId is required")
	}
	return id, nil
}

func writeGenerateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, codegen.ErrTurnInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, codegen.ErrEmptyMessage),
		errors.Is(err, codegen.ErrUnknownType),
		errors.Is(err, codegen.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		var genErr *codegen.GenerationError
		if errors.As(err, &genErr) {
			http.Error(w, "generation failed: "+genErr.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handler: encode response: %v", err)
	}
}
