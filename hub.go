package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"i4.energy/across/btconf/device"
)

const (
	writeWait     = 5 * time.Second
	sendQueueSize = 16
)

// StreamMessage is pushed to every stream client whenever parameter state
// changes.
type StreamMessage struct {
	Event        string                 `json:"event"`
	ConnectionID string                 `json:"connection_id,omitempty"`
	Report       *device.Report         `json:"report,omitempty"`
	Parameters   []device.ParameterView `json:"parameters"`
	Timestamp    time.Time              `json:"timestamp"`
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans state snapshots out to WebSocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger
	// initial produces the message a new client receives first
	initial func() StreamMessage

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func NewHub(logger *zap.Logger, initial func() StreamMessage) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		initial: initial,
		clients: make(map[*streamClient]struct{}),
	}
}

// Handle upgrades the request and registers the client.
func (h *Hub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &streamClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Stream client connected",
		zap.String("client_id", client.id),
		zap.String("remote_addr", c.Request.RemoteAddr),
	)

	if h.initial != nil {
		h.enqueue(client, h.initial())
	}

	go h.writePump(client)
	go h.readPump(client)
}

// Broadcast queues msg for every client. A client whose queue is full is
// dropped.
func (h *Hub) Broadcast(msg StreamMessage) {
	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.enqueue(c, msg)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		close(c.send)
	}
}

func (h *Hub) enqueue(c *streamClient, msg StreamMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode stream message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Warn("Stream client too slow, disconnecting", zap.String("client_id", c.id))
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.logger.Info("Stream client disconnected", zap.String("client_id", c.id))
	}
}

func (h *Hub) writePump(c *streamClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("Stream write failed", zap.String("client_id", c.id), zap.Error(err))
			h.unregister(c)
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards client input and notices when the client goes away.
func (h *Hub) readPump(c *streamClient) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}
