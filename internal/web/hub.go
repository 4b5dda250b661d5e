package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storyforge/server/internal/models"
)

// Client represents a WebSocket client connection
type Client struct {
	ID     string
	Conn   *websocket.Conn
	Send   chan []byte
	Hub    *EventHub
	mu     sync.Mutex
	closed bool
}

// EventHub fans session lifecycle events out to connected WebSocket
// clients. It satisfies interfaces.Notifier; the engine publishes into
// it on every session transition.
type EventHub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	events     chan []byte
	log        *zap.Logger
	mu         sync.RWMutex
}

func NewEventHub(log *zap.Logger) *EventHub {
	return &EventHub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		events:     make(chan []byte, 1000),
		log:        log,
	}
}

// SessionEvent publishes one session transition. Drops the event when
// the feed is saturated; the feed is observability, not state.
func (h *EventHub) SessionEvent(event string, s *models.Session, payload map[string]interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"type":       event,
		"session_id": s.ID,
		"player_id":  s.PlayerID,
		"story_id":   s.StoryID,
		"node_id":    s.CurrentNodeID,
		"data":       payload,
		"time":       time.Now().Unix(),
	})
	if err != nil {
		h.log.Error("failed to marshal session event", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.events <- data:
	default:
		h.log.Warn("event feed full, dropping event", zap.String("event", event))
	}
}

// Run starts the hub's event loop and returns when ctx is done.
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case data := <-h.events:
			h.broadcast(data)
		}
	}
}

func (h *EventHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.log.Info("event client connected",
		zap.String("client_id", client.ID), zap.Int("total", len(h.clients)))

	go client.writePump()
}

func (h *EventHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		h.log.Info("event client disconnected",
			zap.String("client_id", client.ID), zap.Int("total", len(h.clients)))
	}
}

func (h *EventHub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// Client send buffer full, skip
			h.log.Warn("client send buffer full", zap.String("client_id", client.ID))
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				// Hub closed the channel
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.Conn.Close()
}

// readPump drains the connection so close frames and pongs are seen.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}
