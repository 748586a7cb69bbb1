// Package sse provides an adapter.Adapter that fans every matching event
// out to connected HTTP clients as server-sent events.
//
// No third-party SSE library appears anywhere in the example corpus, and
// the SSE wire format (a handful of lines of "data: ...\n\n" framing over
// http.ResponseWriter/Flusher) is small enough that net/http is the
// idiomatic choice here rather than importing a dependency for it.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/reactorflow/engine/adapter"
	"github.com/reactorflow/engine/event"
)

// Hub tracks connected SSE clients and broadcasts events to all of them.
type Hub struct {
	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

// ServeHTTP registers the requesting client as an SSE subscriber and
// streams events to it until the request context is cancelled.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan []byte, 64)
	h.register(ch)
	defer h.unregister(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (h *Hub) register(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ch] = struct{}{}
}

func (h *Hub) unregister(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

// Broadcast sends msg to every currently connected client, dropping it for
// any client whose buffer is full rather than blocking the run.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

type wireEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// New returns an adapter.Adapter that JSON-encodes every matching event and
// broadcasts it to hub's connected clients.
func New(hub *Hub, patterns ...string) adapter.Adapter {
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	return adapter.Adapter{
		Name:     "sse",
		Patterns: patterns,
		OnSignal: func(_ context.Context, evt event.Event) error {
			buf, err := json.Marshal(wireEvent{ID: evt.ID(), Name: evt.Name(), Payload: evt.Payload()})
			if err != nil {
				return err
			}
			hub.Broadcast(buf)
			return nil
		},
	}
}
