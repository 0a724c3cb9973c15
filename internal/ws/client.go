package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 64
)

// Client is one websocket subscriber. A client may narrow its subscription
// to a single event type; by default it receives everything.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan Message

	eventMu sync.RWMutex
	event   string // empty means all events
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan Message, sendBufferSize),
	}
}

// subscribeRequest is the only inbound message clients may send.
type subscribeRequest struct {
	Event string `json:"event"`
}

// ReadPump consumes subscription requests until the peer goes away.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var req subscribeRequest
		if err := c.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("Hub: unexpected client close", "remote", c.remote, "error", err)
			}
			return
		}
		c.setEvent(req.Event)
	}
}

// WritePump forwards hub messages and keepalive pings to the peer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Debug("Hub: client write failed", "remote", c.remote, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) trySend(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) setEvent(event string) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.event = event
}

func (c *Client) wants(event string) bool {
	c.eventMu.RLock()
	defer c.eventMu.RUnlock()
	return c.event == "" || c.event == event
}
