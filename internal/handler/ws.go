package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"appforge/internal/codegen"
	"appforge/internal/stream"
)

const (
	generateWSWriteWait = 10 * time.Second
	generateWSPongWait  = 60 * time.Second
	generateWSPingEvery = (generateWSPongWait * 9) / 10
)

var generateWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type generateWSInbound struct {
	Type        string `json:"type"`
	AppID       int64  `json:"appId,omitempty"`
	UserMessage string `json:"userMessage,omitempty"`
	Generation  string `json:"generationType,omitempty"`
}

// HandleGenerateWS serves streaming generations over a websocket. One
// generation runs at a time per connection; inbound "cancel" tears the
// current one down, inbound "generate" starts the next.
func (h *GenerateHandler) HandleGenerateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := generateWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(generateWSPongWait)); err != nil {
		log.Printf("generate ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(generateWSPongWait))
	})

	writeCh := make(chan wireEvent, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(generateWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(generateWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(generateWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	var current *stream.Handle
	stopCurrent := func() {
		if current != nil {
			current.Cancel()
			current = nil
		}
	}
	defer stopCurrent()

	for {
		var in generateWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushGenerateWS(writeCh, wireEvent{Type: "pong"})
		case "cancel":
			stopCurrent()
			pushGenerateWS(writeCh, wireEvent{Type: "cancelled"})
		case "generate":
			stopCurrent()
			sh, startErr := h.startWSGeneration(ctx, in)
			if startErr != nil {
				pushGenerateWS(writeCh, wireEvent{
					Type:    string(stream.KindError),
					Message: startErr.Error(),
				})
				continue
			}
			current = sh
			go h.pumpWS(ctx, sh, in, writeCh)
		default:
			pushGenerateWS(writeCh, wireEvent{
				Type:    string(stream.KindError),
				Message: "unsupported type: " + in.Type,
			})
		}
	}
}

func (h *GenerateHandler) startWSGeneration(ctx context.Context, in generateWSInbound) (*stream.Handle, error) {
	t, err := codegen.ParseGenerationType(in.Generation)
	if err != nil {
		return nil, err
	}
	if !t.Streaming() {
		return nil, fmt.Errorf("type %q is served by the synchronous endpoint", t)
	}
	return h.dispatcher.GenerateStream(ctx, in.AppID, in.UserMessage, t)
}

func (h *GenerateHandler) pumpWS(ctx context.Context, sh *stream.Handle, in generateWSInbound, writeCh chan wireEvent) {
	t, _ := codegen.ParseGenerationType(in.Generation)
	sink, err := h.newSink(t)
	if err != nil {
		pushGenerateWS(writeCh, wireEvent{Type: string(stream.KindError), Message: "failed to prepare artifact storage"})
		sh.Cancel()
		return
	}
	defer sink.abort()

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
				log.Printf("generate ws materialize app %d: %v", in.AppID, err)
				sh.Cancel()
				pushGenerateWS(writeCh, wireEvent{Type: string(stream.KindError), Message: err.Error()})
				return
			}
			pushGenerateWS(writeCh, out)
			if done || ev.Kind == stream.KindError {
				return
			}
		}
	}
}

func pushGenerateWS(writeCh chan wireEvent, out wireEvent) {
	if writeCh == nil {
		return
	}
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
