// Package ws pushes pipeline results to connected websocket subscribers.
package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event types carried by hub messages.
const (
	EventArbitrage = "arbitrage"
	EventEnriched  = "enriched"
)

// Message is the envelope sent to every subscriber.
type Message struct {
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub maintains the set of active clients and fans pipeline results out to
// them. Slow clients are disconnected instead of blocking the broadcast.
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub until the context is cancelled, then closes every
// client connection.
func (h *Hub) Run(ctx context.Context) {
	slog.Info("Hub: started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Broadcast queues a message for delivery. Non-blocking: when the hub's
// buffer is full the message is dropped, the next pipeline cycle will
// produce a fresher one anyway.
func (h *Hub) Broadcast(event string, payload any) {
	msg := Message{Event: event, Payload: payload, Timestamp: time.Now()}
	select {
	case h.broadcast <- msg:
	default:
		slog.Warn("Hub: broadcast buffer full, dropping message", "event", event)
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[c] = true
	slog.Info("Hub: client connected", "remote", c.remote, "total", len(h.clients))
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("Hub: client disconnected", "remote", c.remote, "total", len(h.clients))
	}
}

func (h *Hub) deliver(msg Message) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		if !c.wants(msg.Event) {
			continue
		}
		if !c.trySend(msg) {
			slog.Warn("Hub: client buffer full, disconnecting", "remote", c.remote)
			go h.Unregister(c)
		}
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	slog.Info("Hub: shutting down", "clients", len(h.clients))
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
