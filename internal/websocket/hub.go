// Package websocket is the session gateway: it upgrades media-stream and
// widget connections, bootstraps them into conversation rooms and attaches
// each one to exactly one handler.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/metrics"
	"github.com/satriahrh/suara/internal/streaming"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Time allowed to resolve the published agent of a widget.
	lookupTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WidgetAuthenticator validates a widget token and returns the widget it was
// issued for.
type WidgetAuthenticator interface {
	Authenticate(token string) (widgetID string, err error)
}

// Hub maintains the set of active clients and the rooms they joined.
type Hub struct {
	// Registered clients by connection id.
	clients map[string]*Client

	// Room key to member set.
	rooms map[string]map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run returns.
	done     chan struct{}
	doneOnce sync.Once

	// Guards clients and rooms.
	mu sync.RWMutex

	agents        repositories.AgentRepository
	engine        *streaming.Engine
	conversations repositories.ConversationHandler
	clock         clock.Clock
	metrics       *metrics.Metrics

	logger *zap.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubClock replaces the clock used for connection timestamps.
func WithHubClock(c clock.Clock) HubOption {
	return func(h *Hub) {
		h.clock = c
	}
}

// WithHubMetrics records connection and room metrics.
func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub creates a new WebSocket hub
func NewHub(
	agents repositories.AgentRepository,
	engine *streaming.Engine,
	conversations repositories.ConversationHandler,
	logger *zap.Logger,
	opts ...HubOption,
) *Hub {
	h := &Hub{
		clients:       make(map[string]*Client),
		rooms:         make(map[string]map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		done:          make(chan struct{}),
		agents:        agents,
		engine:        engine,
		conversations: conversations,
		clock:         clock.New(),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run starts the hub's main loop and returns when ctx is done. Clients that
// close afterwards remove themselves directly and new upgrades are refused.
func (h *Hub) Run(ctx context.Context) {
	defer h.doneOnce.Do(func() { close(h.done) })
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.metrics.ConnectionOpened()
			h.logger.Info("Client registered",
				zap.String("connectionID", client.id),
				zap.String("kind", string(client.kind)))

		case client := <-h.unregister:
			h.remove(client)

		case <-ctx.Done():
			return
		}
	}
}

// ServeTelephony upgrades a media-stream leg.
func (h *Hub) ServeTelephony(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}
	h.start(newClient(h, conn, entities.ConnectionKindTelephony, ""))
	return nil
}

// ServeWidget upgrades a widget leg. The token is checked after the upgrade so
// that a rejected widget sees a policy-violation close instead of an HTTP error.
func (h *Hub) ServeWidget(c echo.Context, auth WidgetAuthenticator) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	token := c.QueryParam("token")
	if token == "" {
		h.metrics.Bootstrap(string(entities.ConnectionKindWidget), "unauthorized")
		h.reject(conn, websocket.ClosePolicyViolation, "missing token")
		return nil
	}
	widgetID, err := auth.Authenticate(token)
	if err != nil {
		h.logger.Warn("Widget connection rejected: invalid token", zap.Error(err))
		h.metrics.Bootstrap(string(entities.ConnectionKindWidget), "unauthorized")
		h.reject(conn, websocket.ClosePolicyViolation, "invalid token")
		return nil
	}

	h.start(newClient(h, conn, entities.ConnectionKindWidget, widgetID))
	return nil
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client.id]
	delete(h.clients, client.id)
	h.leaveRoomLocked(client)
	h.mu.Unlock()
	if ok {
		h.metrics.ConnectionClosed()
	}
	h.logger.Info("Client unregistered", zap.String("connectionID", client.id))
}

// leave hands client to the Run loop for removal, or removes it directly once
// the loop has stopped.
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.remove(client)
	}
}

func (h *Hub) start(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.logger.Warn("Hub stopped, refusing connection")
		h.reject(client.conn, websocket.CloseGoingAway, "server shutting down")
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}

func (h *Hub) reject(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

// JoinRoom adds client to the room under key, creating the room if needed.
func (h *Hub) JoinRoom(key string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[key]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[key] = members
		h.metrics.RoomCreated()
		h.logger.Info("Room created", zap.String("roomKey", key))
	}
	members[client.id] = client
	client.roomKey = key
}

// LeaveRoom removes client from its room and deletes the room once empty.
func (h *Hub) LeaveRoom(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(client)
}

func (h *Hub) leaveRoomLocked(client *Client) {
	key := client.roomKey
	if key == "" {
		return
	}
	client.roomKey = ""

	members, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(members, client.id)
	if len(members) == 0 {
		delete(h.rooms, key)
		h.metrics.RoomDeleted()
		h.logger.Info("Room deleted", zap.String("roomKey", key))
	}
}

// Members returns the connection ids in a room, or nil if it does not exist.
func (h *Hub) Members(key string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members, ok := h.rooms[key]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// peers returns the other members of the room under key.
func (h *Hub) peers(key string, self *Client) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for id, member := range h.rooms[key] {
		if id != self.id {
			out = append(out, member)
		}
	}
	return out
}

// pending returns registered clients that have not finished bootstrap and
// connected before cutoff.
func (h *Hub) pending(cutoff time.Time) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Client
	for _, client := range h.clients {
		if client.State() != StateAttached && client.connectedAt.Before(cutoff) {
			out = append(out, client)
		}
	}
	return out
}

func newConnectionID() string {
	return uuid.NewString()
}
