package notify

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth happens before the upgrade; the bearer token already scopes the
	// connection to a user.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope wraps every message sent to a client.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub fans sync events out to each user's connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Handler upgrades the request to a WebSocket and streams events for the
// authenticated user until the connection drops.
func (h *Hub) Handler(userID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade", "err", err)
			return
		}

		c := &client{
			id:     uuid.NewString(),
			userID: userID,
			conn:   conn,
			send:   make(chan []byte, 64),
			hub:    h,
		}

		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()
		slog.Debug("notify client connected", "client", c.id, "uid", userID)

		go c.writePump()
		go c.readPump()
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	slog.Debug("notify client disconnected", "client", c.id)
}

// broadcast sends an event to every client of the given user. Slow clients
// are dropped rather than blocking the sender.
func (h *Hub) broadcast(userID, eventType string, data map[string]any) {
	msg, err := json.Marshal(Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		slog.Warn("marshal notify event", "type", eventType, "err", err)
		return
	}

	h.mu.Lock()
	for c := range h.clients {
		if c.userID != userID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			close(c.send)
		}
	}
	h.mu.Unlock()
}

// SyncCompleted implements Notifier.
func (h *Hub) SyncCompleted(userID, deviceID string, pulled, applied int) {
	h.broadcast(userID, EventSyncCompleted, map[string]any{
		"device_id": deviceID,
		"pulled":    pulled,
		"applied":   applied,
	})
}

// ConflictDetected implements Notifier.
func (h *Hub) ConflictDetected(userID, entityType, entityID string) {
	h.broadcast(userID, EventConflictDetected, map[string]any{
		"entity_type": entityType,
		"entity_id":   entityID,
	})
}

// ConflictResolved implements Notifier.
func (h *Hub) ConflictResolved(userID, conflictID, resolution string) {
	h.broadcast(userID, EventConflictResolved, map[string]any{
		"conflict_id": conflictID,
		"resolution":  resolution,
	})
}

// DeviceRegistered tells the user's other clients a device joined.
func (h *Hub) DeviceRegistered(userID, deviceID, class string) {
	h.broadcast(userID, EventDeviceRegistered, map[string]any{
		"device_id": deviceID,
		"class":     class,
	})
}

// DeviceDeactivated tells the user's other clients a device left.
func (h *Hub) DeviceDeactivated(userID, deviceID string) {
	h.broadcast(userID, EventDeviceDeactivated, map[string]any{
		"device_id": deviceID,
	})
}

func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// The sink is one-way; inbound messages only keep the connection alive.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("notify read", "client", c.id, "err", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
