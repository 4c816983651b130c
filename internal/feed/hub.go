// Package feed pushes newly created calculations to connected websocket
// clients.
package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/calcforest/calcforest/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// sendBuffer is how many undelivered messages a client may lag behind
	// before it is dropped.
	sendBuffer = 16
)

// Message is the envelope of every frame sent to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// client is owned by one writer goroutine; send is closed by Hub.remove
// while holding the hub lock.
type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub tracks connected clients and fans out broadcasts to them.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logrus.Logger
	metrics  *metrics.Collector

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub returns a hub accepting connections from allowedOrigins. Requests
// without an Origin header (non-browser clients) are always accepted.
func NewHub(allowedOrigins []string, log *logrus.Logger, m *metrics.Collector) *Hub {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		log:     log,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every client and never blocks on the
// network. A client whose queue is full is disconnected.
func (h *Hub) Broadcast(eventType string, data any) {
	msg := Message{Type: eventType, Data: data}

	var lagging []*client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			lagging = append(lagging, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range lagging {
		h.log.Warn("Dropping feed client that is not keeping up")
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and serves the connection until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.log.WithError(err).Debug("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	c.send <- Message{Type: "connected"}
	h.add(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(c)
	}()

	h.readPump(c)

	h.remove(c)
	<-done
}

// readPump discards inbound frames; it exists to process pongs and notice
// the connection closing.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("WebSocket closed unexpectedly")
			}
			return
		}
	}
}

// writePump is the only writer on c.conn. It returns when c.send is closed
// or a write fails.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).Debug("Failed to write to feed client")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.FeedClientConnected()
}

// remove is idempotent; Broadcast, Close and ServeHTTP may all call it for
// the same client. Closing the connection unblocks a writer stuck on a slow
// peer.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if ok {
		h.metrics.FeedClientDisconnected()
		c.conn.Close()
	}
}

// Close disconnects every client. http.Server.Shutdown does not track
// hijacked connections, so this is called after it.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}
