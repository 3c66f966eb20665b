package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stagehand/internal/notify"
)

const clientSendBuffer = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local companion app; the UI connects from file:// or localhost.
		return true
	},
}

// Hub pushes log entries and status changes to connected UI clients over
// websockets. It implements notify.Notifier so it can sit in the fanout next
// to the zerolog and event-log sinks.
type Hub struct {
	Logger zerolog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type wsEnvelope struct {
	Type    string         `json:"type"`
	TS      string         `json:"ts"`
	Level   notify.Level   `json:"level,omitempty"`
	Message string         `json:"message,omitempty"`
	Status  *notify.Status `json:"status,omitempty"`
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{Logger: logger, clients: make(map[*client]struct{})}
}

var _ notify.Notifier = (*Hub)(nil)

func (h *Hub) Log(level notify.Level, message string) {
	h.broadcast(wsEnvelope{Type: "log", Level: level, Message: message})
}

func (h *Hub) Status(s notify.Status) {
	h.broadcast(wsEnvelope{Type: "status", Status: &s})
}

// ServeHTTP upgrades the request and keeps the client registered until its
// connection dies.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.Logger.Debug().Int("clients", n).Msg("ui client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

// ClientCount returns the number of connected UI clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(env wsEnvelope) {
	env.TS = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(env)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("encode ui push")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Slow client; drop it rather than block the engine.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readLoop discards inbound frames; the push channel is one-way. It exists to
// notice the close handshake.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}
