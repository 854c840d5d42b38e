package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/registry-core/internal/infrastructure/config"
	"github.com/nerrad567/registry-core/internal/infrastructure/logging"
	"github.com/nerrad567/registry-core/internal/registry"
	"github.com/nerrad567/registry-core/internal/store"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	wsSendBufferSize = 256

	channelPrefix = "registry."

	// ChannelAll receives every committed event.
	ChannelAll = "registry.*"
)

// EventChannel returns the channel events of action are delivered on,
// e.g. "registry.add_device".
func EventChannel(action store.Action) string {
	return channelPrefix + string(action)
}

// WSMessage is a message sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects events by channel and, optionally, by
// registry name. An empty Registries list means every registry.
type WSSubscribePayload struct {
	Channels   []string `json:"channels"`
	Registries []string `json:"registries,omitempty"`
}

// wsEvent is the payload of an event message.
type wsEvent struct {
	Action   store.Action       `json:"action"`
	Registry string             `json:"registry"`
	Device   string             `json:"device,omitempty"`
	DeviceID string             `json:"device_id,omitempty"`
	Caller   registry.Identity  `json:"caller"`
	Time     time.Time          `json:"time"`
	State    *registry.Registry `json:"registry_state,omitempty"`
}

// Hub fans committed store events out to WebSocket clients. It is a
// store.Observer.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity registry.Identity

	mu         sync.RWMutex
	channels   map[string]struct{}
	registries map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn, identity registry.Identity) *WSClient {
	return &WSClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, wsSendBufferSize),
		identity:   identity,
		channels:   make(map[string]struct{}),
		registries: make(map[string]struct{}),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware; the ticket is the credential.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub with no clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "identity", client.identity, "clients", n)
}

// Unregister removes a client. Only the caller that actually removes it
// closes its send channel, so shutdown and a read error cannot both close it.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "identity", client.identity, "clients", n)
}

// OnEvent broadcasts committed events; rejected operations changed
// nothing and are not sent.
func (h *Hub) OnEvent(ev store.Event) {
	if !ev.Committed() {
		return
	}
	h.Broadcast(EventChannel(ev.Action), ev.Registry, wsEvent{
		Action:   ev.Action,
		Registry: ev.Registry,
		Device:   ev.Device,
		DeviceID: ev.DeviceID,
		Caller:   ev.Caller,
		Time:     ev.Time,
		State:    ev.Snapshot,
	})
}

// Broadcast sends payload to every client subscribed to channel whose
// registry filter admits registryName.
func (h *Hub) Broadcast(channel, registryName string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot under the hub lock; client locks are taken after release.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.wants(channel, registryName) {
			client.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "registry", registryName, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection after consuming the ticket from
// POST /auth/ws-ticket; the ticket's identity is attached to the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	identity, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn, identity)
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "identity", c.identity, "error", err)
			}
			return
		}
		// Application messages count as liveness for clients that never
		// answer protocol pings.
		extend() //nolint:errcheck // see above
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.TextMessage
			payload []byte
		)
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			payload = message
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error caught below
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(req.Payload, &sub); err != nil {
			c.sendError(req.ID, "invalid "+req.Type+" payload")
			return
		}
		if req.Type == WSTypeSubscribe {
			c.subscribe(sub)
			c.hub.logger.Info("websocket client subscribed",
				"identity", c.identity, "channels", sub.Channels, "registries", sub.Registries)
			c.sendResponse(req.ID, WSTypeResponse, map[string]any{"subscribed": sub.Channels, "registries": sub.Registries})
		} else {
			c.unsubscribe(sub)
			c.sendResponse(req.ID, WSTypeResponse, map[string]any{"unsubscribed": sub.Channels, "registries": sub.Registries})
		}
	case WSTypePing:
		c.sendResponse(req.ID, WSTypePong, nil)
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func (c *WSClient) subscribe(sub WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range sub.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, name := range sub.Registries {
		c.registries[name] = struct{}{}
	}
}

func (c *WSClient) unsubscribe(sub WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range sub.Channels {
		delete(c.channels, ch)
	}
	for _, name := range sub.Registries {
		delete(c.registries, name)
	}
}

// wants reports whether an event on channel for registryName should be
// delivered. An empty registry filter admits every registry.
func (c *WSClient) wants(channel, registryName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exact := c.channels[channel]
	_, all := c.channels[ChannelAll]
	if !exact && !all {
		return false
	}
	if len(c.registries) == 0 {
		return true
	}
	_, ok := c.registries[registryName]
	return ok
}

// trySend queues data without blocking. Slow clients drop messages, and a
// send racing with Unregister is absorbed.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
