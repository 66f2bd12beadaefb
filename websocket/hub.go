package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub tracks the set of live play connections.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// Client is one play connection. Inbound frames are queued on the actions
// channel and consumed by a single dispatch loop, so a connection's actions
// are processed strictly sequentially and responses go out in the order the
// actions were accepted, regardless of how long each one takes.
type Client struct {
	Hub          *Hub
	Conn         *websocket.Conn
	Send         chan []byte
	ConnectionID string
	PlayerID     string

	// ActionHandler processes one inbound frame and returns the single
	// response frame plus whether the failure was fatal to the connection.
	ActionHandler func(c *Client, raw []byte) (response []byte, fatal bool)

	// CloseHandler runs once when the connection goes away.
	CloseHandler func(c *Client)

	actions   chan []byte
	closeOnce sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("Client registered", "player_id", client.PlayerID, "connection_id", client.ConnectionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				// Send belongs to the dispatch loop; it closes the channel
				// itself once the action queue drains, so an in-flight action
				// can still deliver its response.
				close(client.actions)
			}
			h.mu.Unlock()
			slog.Info("Client unregistered", "player_id", client.PlayerID, "connection_id", client.ConnectionID)
		}
	}
}

func (h *Hub) RegisterClient(conn *websocket.Conn, playerID string) *Client {
	client := &Client{
		Hub:          h,
		Conn:         conn,
		Send:         make(chan []byte, 256),
		ConnectionID: uuid.New().String(),
		PlayerID:     playerID,
		actions:      make(chan []byte, 64),
	}

	h.register <- client
	return client
}

// ReadPump reads inbound frames and queues them for the dispatch loop in
// arrival order.
func (c *Client) ReadPump() {
	defer func() {
		if c.CloseHandler != nil {
			c.closeOnce.Do(func() { c.CloseHandler(c) })
		}
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err, "connection_id", c.ConnectionID)
			}
			break
		}

		// Blocking here is natural backpressure: the read loop pauses until
		// the dispatch loop catches up, and no accepted action is ever
		// silently discarded.
		c.actions <- raw
	}
}

// DispatchLoop consumes queued actions one at a time. Because each action is
// fully processed before the next one starts, responses leave in acceptance
// order even when an earlier action's AI call resolves after a later one
// would have.
//
// The loop is the sole sender on Send and closes it on exit. The write pump
// then drains whatever is buffered, emits the close frame and closes the
// connection, so a fatal error frame reaches the client before the
// connection goes away.
func (c *Client) DispatchLoop() {
	defer close(c.Send)

	for raw := range c.actions {
		if c.ActionHandler == nil {
			continue
		}

		response, fatal := c.ActionHandler(c, raw)
		if response != nil {
			select {
			case c.Send <- response:
			default:
				slog.Warn("Send buffer full, dropping connection", "connection_id", c.ConnectionID)
				return
			}
		}
		if fatal {
			slog.Warn("Fatal protocol error, closing connection", "connection_id", c.ConnectionID)
			return
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
