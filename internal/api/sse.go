package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mitchross/intercept/internal/httputil"
	"github.com/mitchross/intercept/internal/monitoring"
)

// heartbeatInterval keeps intermediaries from closing idle SSE streams.
const heartbeatInterval = 15 * time.Second

// event is one server-sent event, already serialized.
type event struct {
	name string
	data []byte
}

// Hub fans accepted detections out to SSE subscribers. Slow subscribers
// drop events rather than stall the accept path; a reconnecting client
// catches up from the trail snapshot endpoint.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan event
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan event)}
}

func randomID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe registers a new stream. The returned ID identifies it when
// unsubscribing.
func (h *Hub) Subscribe() (string, chan event) {
	id := randomID()
	ch := make(chan event, 32)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a stream and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Broadcast serializes payload and sends it to every subscriber.
func (h *Hub) Broadcast(name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		monitoring.Logf("sse: failed to marshal %s event: %v", name, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event{name: name, data: data}:
		default:
			// Skip full channels so one slow client cannot block the accept path.
		}
	}
}

// streamHandler serves the live SSE feed of accepted detections.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	id, ch := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Opening status event so the client can render immediately.
	if data, err := json.Marshal(s.session.LiveView()); err == nil {
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		}
	}
}
