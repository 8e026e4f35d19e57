// Streams appended messages to websocket clients.

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/maruel/conclave/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Event is one frame sent on the event stream.
type Event struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message,omitempty"`
}

// Hub fans out message events to every connected websocket client.
//
// It implements jsondb.TableObserver so it can be registered on the message
// table directly.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	closed  bool
}

type client struct {
	id       uuid.UUID
	conn     *websocket.Conn
	send     chan []byte
	sendOnce sync.Once
}

func (c *client) closeSend() { c.sendOnce.Do(func() { close(c.send) }) }

// NewHub returns a Hub. allowed is the list of accepted browser origins; an
// empty list accepts same-origin requests only and "*" accepts any.
func NewHub(allowed []string) *Hub {
	h := &Hub{clients: make(map[uuid.UUID]*client)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(allowed),
	}
	return h
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || originAllowed(allowed, r, origin)
	}
}

// originAllowed accepts the listed origins and the server's own. An empty list
// means same-origin only, for both CORS and the websocket upgrade.
func originAllowed(allowed []string, r *http.Request, origin string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// OnAppend broadcasts a persisted message. Slow clients drop frames.
func (h *Hub) OnAppend(m *models.Message) {
	data, err := json.Marshal(&Event{Type: "message", Message: m})
	if err != nil {
		slog.Error("Failed to encode event", "err", err)
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("Dropped event", "client", c.id)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		c.closeSend()
		delete(h.clients, id)
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		c.closeSend()
		return c
	}
	h.clients[c.id] = c
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		c.closeSend()
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied.
		slog.WarnContext(r.Context(), "Websocket upgrade failed", "err", err)
		return
	}
	c := h.register(conn)
	slog.DebugContext(r.Context(), "Event client connected", "client", c.id)
	go c.writePump()
	c.readPump()
	h.unregister(c)
	slog.DebugContext(r.Context(), "Event client disconnected", "client", c.id)
}

// readPump discards client frames and detects disconnection.
func (c *client) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
