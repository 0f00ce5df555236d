package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"capture-colorspace/camera"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventHub streams configuration events to websocket clients
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	// Connected clients
	clients map[string]*EventClient
	mu      sync.RWMutex

	allowedOrigins []string
	sendBufferSize int

	// Configuration events waiting to be broadcast
	queue     chan camera.ConfigurationEvent
	done      chan struct{}
	closeOnce sync.Once
}

// EventClient represents a connected websocket client
type EventClient struct {
	id     string
	conn   *websocket.Conn
	hub    *EventHub
	logger *zap.Logger

	// Send channel for outgoing messages
	send chan []byte

	closed bool
	mu     sync.RWMutex

	connectedAt time.Time
	lastPing    time.Time
}

// EventMessage is the envelope of every frame sent or received
type EventMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// NewEventHub creates a new event hub. queueSize bounds the configuration
// events waiting for broadcast; sendBufferSize bounds each client's
// outgoing frames.
func NewEventHub(allowedOrigins []string, queueSize, sendBufferSize int, logger *zap.Logger) *EventHub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	if sendBufferSize <= 0 {
		sendBufferSize = 64
	}

	h := &EventHub{
		logger:         logger,
		clients:        make(map[string]*EventClient),
		allowedOrigins: allowedOrigins,
		sendBufferSize: sendBufferSize,
		queue:          make(chan camera.ConfigurationEvent, queueSize),
		done:           make(chan struct{}),
	}

	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	go h.dispatch()

	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *EventHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if originAllowed(h.allowedOrigins, origin) {
		return true
	}

	h.logger.Warn("Origin not allowed",
		zap.String("origin", origin),
		zap.Strings("allowed_origins", h.allowedOrigins))
	return false
}

// originAllowed accepts a wildcard, a listed origin, or no origin at all
// (non-browser clients)
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request and registers the client
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()

	now := time.Now()
	client := &EventClient{
		id:          clientID,
		conn:        conn,
		hub:         h,
		logger:      h.logger.With(zap.String("client_id", clientID)),
		send:        make(chan []byte, h.sendBufferSize),
		connectedAt: now,
		lastPing:    now,
	}

	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()

	client.logger.Info("Client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.Header.Get("User-Agent")))

	client.sendMessage("hello", map[string]string{"client_id": clientID})

	go client.writePump()
	go client.readPump()
}

// Publish queues a configuration event for every client. It is the
// listener registered on the camera manager and never blocks the caller;
// events are dropped when the queue is full or the hub is closed.
func (h *EventHub) Publish(event camera.ConfigurationEvent) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.queue <- event:
	default:
		h.logger.Warn("Event queue full, dropping event",
			zap.String("event_id", event.ID),
			zap.String("camera", event.CameraID),
			zap.Int("queue_size", cap(h.queue)))
	}
}

// dispatch broadcasts queued events in order until the hub is closed
func (h *EventHub) dispatch() {
	for {
		select {
		case event := <-h.queue:
			h.Broadcast("configuration", event)
		case <-h.done:
			return
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *EventHub) Broadcast(msgType string, data interface{}) {
	payload, err := json.Marshal(EventMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.String("type", msgType), zap.Error(err))
		return
	}

	h.mu.RLock()
	clients := make([]*EventClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.enqueue(payload); err != nil {
			client.logger.Warn("Dropping slow client", zap.Error(err))
			go client.close()
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *EventHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops event dispatch and closes all client connections
func (h *EventHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.RLock()
	clients := make([]*EventClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.close()
	}
}

// readPump handles incoming messages from the client
func (c *EventClient) readPump() {
	defer c.close()

	for {
		var msg EventMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			c.mu.Lock()
			c.lastPing = time.Now()
			c.mu.Unlock()
			c.sendMessage("pong", nil)
		default:
			c.sendMessage("error", map[string]string{
				"message": fmt.Sprintf("unknown message type: %s", msg.Type),
			})
		}
	}
}

// writePump handles outgoing messages to the client
func (c *EventClient) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.logger.Error("WebSocket write error", zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *EventClient) sendMessage(msgType string, data interface{}) {
	payload, err := json.Marshal(EventMessage{Type: msgType, Data: data})
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	if err := c.enqueue(payload); err != nil {
		c.logger.Warn("Failed to queue message", zap.String("type", msgType), zap.Error(err))
	}
}

// enqueue never blocks; a full buffer means the client is too slow
func (c *EventClient) enqueue(payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client connection closed")
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// close closes the client connection
func (c *EventClient) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.mu.Lock()
		delete(c.hub.clients, c.id)
		c.hub.mu.Unlock()
	}

	c.logger.Info("Client disconnected", zap.Duration("connected_for", time.Since(c.connectedAt)))
}
