package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agile-defense/routetrack/pkg/tracker"
)

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// MessageType constants
const (
	MessageTypeRouteUpdated = "route.updated"
	MessageTypeRouteRemoved = "route.removed"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// RouteRemovedPayload identifies a route that stopped being tracked
type RouteRemovedPayload struct {
	UnitID   string `json:"unit_id"`
	TargetID string `json:"target_id"`
}

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	id   string
	conn *websocket.Conn
	send chan WebSocketMessage
	hub  *WebSocketHub

	// units the client follows; empty means all
	units map[string]bool
	mu    sync.RWMutex
}

// WebSocketHub fans route changes out to connected clients. It implements
// tracker.Notifier.
type WebSocketHub struct {
	clients    map[string]*WebSocketClient
	broadcast  chan hubMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	done       chan struct{}
	mu         sync.RWMutex
	logger     zerolog.Logger
}

type hubMessage struct {
	unitID string
	msg    WebSocketMessage
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(logger zerolog.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]*WebSocketClient),
		broadcast:  make(chan hubMessage, 256),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "websocket_hub").Logger(),
	}
}

// Run starts the WebSocket hub
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).Int("total_clients", total).Msg("Client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info().Str("client_id", client.id).Int("total_clients", total).Msg("Client disconnected")

		case m := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				if !client.follows(m.unitID) {
					continue
				}
				select {
				case client.send <- m.msg:
				default:
					h.logger.Warn().Str("client_id", client.id).Str("message_type", m.msg.Type).Msg("Client send buffer full, dropping message")
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *WebSocketHub) shutdown() {
	h.mu.Lock()
	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*WebSocketClient)
	h.mu.Unlock()

	h.logger.Info().Msg("WebSocket hub shutdown complete")
}

// RouteUpdated broadcasts a route snapshot
func (h *WebSocketHub) RouteUpdated(view tracker.View) {
	h.publish(view.UnitID, MessageTypeRouteUpdated, view)
}

// RouteRemoved broadcasts a route removal
func (h *WebSocketHub) RouteRemoved(key tracker.Key) {
	h.publish(key.UnitID, MessageTypeRouteRemoved, RouteRemovedPayload{UnitID: key.UnitID, TargetID: key.TargetID})
}

func (h *WebSocketHub) publish(unitID, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str("message_type", msgType).Msg("Failed to encode payload")
		return
	}

	m := hubMessage{
		unitID: unitID,
		msg: WebSocketMessage{
			Type:      msgType,
			Payload:   data,
			Timestamp: time.Now().UTC(),
		},
	}
	select {
	case h.broadcast <- m:
	default:
		h.logger.Warn().Str("message_type", msgType).Msg("Broadcast buffer full")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *WebSocketHub
	originPatterns []string
	logger         zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *WebSocketHub, originPatterns []string, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		originPatterns: originPatterns,
		logger:         logger.With().Str("handler", "websocket").Logger(),
	}
}

// ServeHTTP handles the WebSocket upgrade and connection
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to accept WebSocket connection")
		return
	}

	client := &WebSocketClient{
		id:    uuid.New().String(),
		conn:  conn,
		send:  make(chan WebSocketMessage, 64),
		hub:   h.hub,
		units: make(map[string]bool),
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go client.writePump(ctx)
	client.readPump(ctx)
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *WebSocketClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "connection closed")
				return
			}
			if err := c.write(ctx, message); err != nil {
				c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			ping := WebSocketMessage{Type: MessageTypePing, Timestamp: time.Now().UTC()}
			if err := c.write(ctx, ping); err != nil {
				c.hub.logger.Error().Err(err).Str("client_id", c.id).Msg("Failed to send ping")
				return
			}
		}
	}
}

func (c *WebSocketClient) write(ctx context.Context, msg WebSocketMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

// readPump reads client requests until the connection closes
func (c *WebSocketClient) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var msg WebSocketMessage
		err := wsjson.Read(ctx, c.conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return
			}
			c.hub.logger.Debug().Err(err).Str("client_id", c.id).Msg("Read error")
			return
		}

		switch msg.Type {
		case MessageTypePong:
			continue

		case "subscribe", "unsubscribe":
			var req struct {
				Units []string `json:"units"`
			}
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				continue
			}
			c.mu.Lock()
			for _, unitID := range req.Units {
				if msg.Type == "subscribe" {
					c.units[unitID] = true
				} else {
					delete(c.units, unitID)
				}
			}
			c.mu.Unlock()

		default:
			c.hub.logger.Debug().Str("client_id", c.id).Str("type", msg.Type).Msg("Unknown message type")
		}
	}
}

// follows reports whether the client receives messages about a unit
func (c *WebSocketClient) follows(unitID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.units) == 0 {
		return true
	}
	return c.units[unitID]
}
