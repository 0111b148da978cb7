// Package websocket streams monitoring events to connected dashboards.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/davido182/depositdigest/internal/events"
	"github.com/davido182/depositdigest/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	clientBuffer   = 64
	broadcastQueue = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is one frame sent to dashboard clients
type Message struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// SnapshotFunc produces the messages a client receives right after connecting
type SnapshotFunc func() []Message

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans messages out to every connected client. A client whose buffer
// fills up is disconnected rather than slowing the others down.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	snapshot SnapshotFunc

	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
	log        *logger.FieldLogger
}

// NewHub creates a hub; call Run in a goroutine before serving connections
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Message, broadcastQueue),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		log:        logger.ForComponent("websocket"),
	}
}

// SetSnapshot sets the initial-state producer for new clients
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Attach subscribes the hub to every event published on bus
func (h *Hub) Attach(bus *events.EventBus) {
	bus.SubscribeAll(func(e events.Event) {
		h.Broadcast(Message{
			Type:      string(e.Type),
			Timestamp: e.Timestamp,
			Data: map[string]interface{}{
				"id":         e.ID,
				"source":     e.Source,
				"subject_id": e.SubjectID,
				"user_id":    e.UserID,
				"severity":   e.Severity,
				"data":       e.Data,
			},
		})
	})
}

// Broadcast queues msg for every client; it drops the message when the
// queue is full or the hub has stopped
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case <-h.done:
	case h.broadcast <- msg:
	default:
		h.log.Warn("Broadcast queue full, dropping message", map[string]interface{}{"type": msg.Type})
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run owns the client set until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			snapshot := h.snapshot
			h.mu.Unlock()

			h.log.Info("Client connected", map[string]interface{}{"total_clients": total})
			if snapshot != nil {
				for _, msg := range snapshot() {
					h.deliver(c, msg)
				}
			}

		case c := <-h.unregister:
			h.remove(c)

		case msg := <-h.broadcast:
			h.mu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				targets = append(targets, c)
			}
			h.mu.RUnlock()
			for _, c := range targets {
				h.deliver(c, msg)
			}

		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop disconnects every client and ends Run
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ServeHTTP upgrades the request and registers the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("Failed to upgrade connection", map[string]interface{}{"error": err.Error()})
		return
	}

	c := &client{conn: conn, send: make(chan Message, clientBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) deliver(c *client, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.log.Warn("Client too slow, disconnecting", nil)
		h.remove(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Info("Client disconnected", map[string]interface{}{"total_clients": len(h.clients)})
}

// readPump drains client frames so pongs and close frames are processed
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Info("Unexpected close error", map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
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
