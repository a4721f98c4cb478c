package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"workbridge/internal/event"
)

// Hub pushes bus events to the connected recipients. It runs as a
// supervised service; connections survive a hub restart.
type Hub struct {
	bus      event.Bus
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewHub(bus event.Bus, allowedOrigins []string) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		clients: make(map[*Client]struct{}),
	}
}

func (h *Hub) String() string {
	return "notification hub"
}

func (h *Hub) Serve(ctx context.Context) error {
	events, unsubscribe := h.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			h.deliver(e)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// deliver sends e to every connection of its recipients. A connection that
// cannot keep up is dropped.
func (h *Hub) deliver(e event.Event) {
	if len(e.Recipients) == 0 {
		return
	}

	message, err := json.Marshal(e)
	if err != nil {
		slog.Error("failed to marshal event", "event_id", e.ID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !isRecipient(e, c.userID) {
			continue
		}
		select {
		case c.send <- message:
		default:
			slog.Warn("dropping slow notification client", "user_id", c.userID)
			h.removeLocked(c)
		}
	}
}

func isRecipient(e event.Event, userID string) bool {
	for _, id := range e.Recipients {
		if id == userID {
			return true
		}
	}
	return false
}

// checkOrigin accepts same-host pages, the configured CORS origins, and
// clients that send no Origin at all.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
			return true
		}

		for _, o := range allowed {
			if strings.EqualFold(strings.TrimSpace(o), origin) {
				return true
			}
		}
		return false
	}
}
