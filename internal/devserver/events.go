package devserver

import (
	"bufio"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/webbuild/internal/telemetry"
)

const heartbeatInterval = 30 * time.Second

// Event is a server sent event pushed to live reload clients.
type Event struct {
	Name string
	Data string
}

// Hub fans out build events to connected EventSource clients.
type Hub struct {
	mu      sync.RWMutex
	nextID  int
	clients map[int]*hubClient
	closed  bool
}

type hubClient struct {
	id   int
	ch   chan Event
	done chan struct{}
}

// NewHub returns a hub with no clients.
func NewHub() *Hub {
	return &Hub{clients: map[int]*hubClient{}}
}

// ServeHTTP streams events until the client disconnects or the hub shuts down.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &hubClient{ch: make(chan Event, 8), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "live reload shutting down", http.StatusServiceUnavailable)
		return
	}
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	h.mu.Unlock()

	telemetry.GetMetrics().LiveReloadClients.Add(r.Context(), 1)
	defer h.removeClient(client.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	bw := bufio.NewWriter(w)
	write := func(s string) bool {
		if _, err := bw.WriteString(s); err != nil {
			log.Debug().Err(err).Msg("live reload write")
			return false
		}
		if err := bw.Flush(); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !write(": connected\n\n") {
		return
	}

	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if !write(": ping\n\n") {
				return
			}
		case ev := <-client.ch:
			if !write("event: " + ev.Name + "\ndata: " + ev.Data + "\n\n") {
				return
			}
		}
	}
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	h.mu.Unlock()

	if ok {
		telemetry.GetMetrics().LiveReloadClients.Add(context.Background(), -1)
	}
}

// Broadcast sends ev to every client, dropping clients that are not keeping up.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- ev:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}

	log.Debug().Str("event", ev.Name).Int("clients", len(snapshot)).Int("dropped", dropped).Msg("live reload broadcast")
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and rejects new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	ids := make([]int, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.removeClient(id)
	}
}
