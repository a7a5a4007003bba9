// Package ws implements the WebSocket adapter for the live decision feed.
// Clients subscribe at /ws and receive every completed verdict plus
// configuration reload notices as typed event envelopes.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for every event sent down the decision feed.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one subscriber to the decision feed.
type client struct {
	ws     *websocket.Conn
	remote string
	cancel context.CancelFunc
}

// Hub tracks decision feed subscribers and fans completed verdicts out
// to all of them. The feed is fire-and-forget: a subscriber that cannot
// keep up is dropped rather than allowed to slow the decide path.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty decision feed hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket and registers the caller
// as a decision feed subscriber until it disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("decision feed accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{ws: ws, remote: r.RemoteAddr, cancel: cancel}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("decision feed subscriber connected", "remote", c.remote)

	// The feed is write-only, but we still read so disconnects and
	// control frames are noticed.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast fans an event out to every subscriber. Subscribers whose
// writes fail are detached so one dead connection cannot wedge the feed.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("decision feed marshal failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("decision feed write failed", "remote", c.remote, "error", err)
			go h.remove(c)
		}
	}
}

// ConnectionCount reports active subscribers for the health surface.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		c.cancel()
		delete(h.clients, c)
		slog.Info("decision feed subscriber disconnected", "remote", c.remote)
	}
}
