package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"defendo-server/internal/models"
	"defendo-server/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBufferSize = 16
)

// Event is the wire format pushed to the mobile client whenever its
// alert changes status.
type Event struct {
	Type      string        `json:"type"`
	Alert     *models.Alert `json:"alert,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// client is a single WebSocket subscription of one user
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans alert status events out to each user's open WebSocket
// connections. A user may hold several connections (phone + watch);
// events are delivered to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]bool
	closed  bool

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Auth happens in the JWT middleware before the upgrade
				return true
			},
		},
	}
}

// Publish delivers an alert snapshot to every connection of the alert's
// owner. Slow consumers are dropped rather than blocking the caller.
func (h *Hub) Publish(alert models.Alert) {
	event := Event{
		Type:      "alert_status",
		Alert:     &alert,
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal alert event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[alert.UserID] {
		select {
		case c.send <- data:
		default:
			logger.Warn("Dropping alert event - client send buffer full",
				zap.String("user_id", alert.UserID),
			)
		}
	}
}

// Subscribe upgrades the HTTP request to a WebSocket and registers the
// connection for the given user until the peer disconnects.
func (h *Hub) Subscribe(userID string, w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]bool)
	}
	h.clients[userID][c] = true
	h.mu.Unlock()

	logger.Info("Alert stream subscribed",
		zap.String("user_id", userID),
	)

	go c.writePump(h)
	go c.readPump(h)
	return nil
}

// ConnectionCount returns the number of open connections of a user
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close drops all connections and rejects future subscriptions
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, conns := range h.clients {
		for c := range conns {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*client]bool)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[c.userID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
}

// readPump discards inbound frames; it exists to notice pongs and
// peer-initiated closes.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Alert stream closed unexpectedly",
					zap.String("user_id", c.userID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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
