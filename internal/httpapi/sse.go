package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"ai_chat/internal/chat"
)

// sseEmitter streams chat events to the client as server-sent events.
// The 200 and stream headers are committed on the first event, so failures
// before any event can still map to a real HTTP status. Writes after the
// client disconnects are reported as errors to the orchestrator but never
// panic.
type sseEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu        sync.Mutex
	committed bool
	dead      bool
}

func newSSEEmitter(w http.ResponseWriter) (*sseEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseEmitter{w: w, flusher: flusher}, nil
}

// Committed reports whether the response headers went out already.
func (e *sseEmitter) Committed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed
}

func (e *sseEmitter) send(event string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dead {
		return fmt.Errorf("client disconnected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if !e.committed {
		e.w.Header().Set("Content-Type", "text/event-stream")
		e.w.Header().Set("Cache-Control", "no-cache")
		e.w.Header().Set("Connection", "keep-alive")
		e.w.WriteHeader(http.StatusOK)
		e.committed = true
	}

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		e.dead = true
		return fmt.Errorf("failed to write event: %w", err)
	}
	e.flusher.Flush()
	return nil
}

func (e *sseEmitter) Start(ev chat.StartEvent) error { return e.send("start", ev) }
func (e *sseEmitter) Chunk(ev chat.ChunkEvent) error { return e.send("chunk", ev) }
func (e *sseEmitter) Done(ev chat.DoneEvent) error   { return e.send("done", ev) }
func (e *sseEmitter) Error(ev chat.ErrorEvent) error { return e.send("error", ev) }
