package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/streaming"
)

// State is where a connection is in its bootstrap.
type State int32

const (
	StateUnbootstrapped State = iota
	StateBootstrapping
	StateAttached
)

func (s State) String() string {
	switch s {
	case StateUnbootstrapped:
		return "unbootstrapped"
	case StateBootstrapping:
		return "bootstrapping"
	case StateAttached:
		return "attached"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CloseError is a bootstrap failure that ends the connection with a close code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close %d: %s", e.Code, e.Reason)
}

var errNoAgent = errors.New("start message names neither an agent nor a widget")

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte

	// ack receives the write result when set.
	ack chan error
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed once the connection is going away.
	done      chan struct{}
	closeOnce sync.Once

	id            string
	kind          entities.ConnectionKind
	tokenWidgetID string
	connectedAt   time.Time
	state         atomic.Int32

	// Guarded by hub.mu.
	roomKey string

	mu           sync.Mutex
	conversation entities.Conversation
	agent        *entities.Agent
	session      *Session
	handler      handler

	logger *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, kind entities.ConnectionKind, tokenWidgetID string) *Client {
	id := newConnectionID()
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan WriteData, 256),
		done:          make(chan struct{}),
		id:            id,
		kind:          kind,
		tokenWidgetID: tokenWidgetID,
		connectedAt:   hub.clock.Now(),
		logger: hub.logger.With(
			zap.String("connectionID", id),
			zap.String("kind", string(kind))),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// Kind returns where the connection comes from.
func (c *Client) Kind() entities.ConnectionKind {
	return c.kind
}

// State returns the bootstrap state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Done is closed when the connection goes away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// RoomKey returns the room the connection is in, or "" before bootstrap.
func (c *Client) RoomKey() string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.roomKey
}

// Conversation returns the conversation resolved at bootstrap.
func (c *Client) Conversation() entities.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation
}

func (c *Client) setStreamSid(sid string) {
	c.mu.Lock()
	c.conversation.StreamSid = sid
	c.mu.Unlock()
}

func (c *Client) streamSid() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation.StreamSid
}

// SendMedia writes one audio frame as a media message.
func (c *Client) SendMedia(ctx context.Context, frame []byte) error {
	return c.writeJSON(ctx, newOutboundMedia(c.streamSid(), frame))
}

// SendMark writes a mark message.
func (c *Client) SendMark(ctx context.Context, name string) error {
	return c.writeJSON(ctx, OutboundMark{
		Event:     EventMark,
		StreamSid: c.streamSid(),
		Mark:      MarkPayload{Name: name},
	})
}

// writeJSON queues v and waits until the write pump has written it.
func (c *Client) writeJSON(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	ack := make(chan error, 1)
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: payload, ack: ack}:
	case <-c.done:
		return streaming.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ack:
		return err
	case <-c.done:
		return streaming.ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeWith sends a close frame with code and tears the connection down. The
// read pump then runs the regular cleanup.
func (c *Client) closeWith(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.logger.Debug("Failed to write close frame", zap.Error(err))
	}
	c.shutdown()
	c.conn.Close()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.shutdown()
		if h := c.attachedHandler(); h != nil {
			h.close()
		}
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.dispatch(ctx, messageType, message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(message.Type, message.Payload)
			if message.ack != nil {
				message.ack <- err
			}
			if err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.shutdown()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) attachedHandler() handler {
	if c.State() != StateAttached {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// dispatch routes one inbound message. Until bootstrap completes only start
// messages are considered.
func (c *Client) dispatch(ctx context.Context, messageType int, message []byte) {
	if h := c.attachedHandler(); h != nil {
		h.handle(ctx, messageType, message)
		return
	}

	if messageType != websocket.TextMessage {
		c.logger.Debug("Ignoring binary message before bootstrap", zap.Int("size", len(message)))
		return
	}

	msg, err := ParseInbound(message)
	if err != nil {
		c.logger.Warn("Ignoring malformed message", zap.Error(err))
		return
	}
	if msg.Event != EventStart {
		c.logger.Debug("Ignoring message before bootstrap", zap.String("event", msg.Event))
		return
	}

	c.bootstrap(ctx, msg, message)
}

// bootstrap moves the connection from unbootstrapped to attached. It runs at
// most once per connection; the start message is then handed to the new
// handler as its first message.
func (c *Client) bootstrap(ctx context.Context, msg *InboundMessage, raw []byte) {
	if !c.state.CompareAndSwap(int32(StateUnbootstrapped), int32(StateBootstrapping)) {
		return
	}

	conversation, agent, err := c.resolve(ctx, msg.Bootstrap())
	if err != nil {
		var closeErr *CloseError
		if errors.As(err, &closeErr) {
			c.hub.metrics.Bootstrap(string(c.kind), "rejected")
			c.logger.Warn("Bootstrap rejected",
				zap.Int("closeCode", closeErr.Code),
				zap.String("reason", closeErr.Reason))
			c.closeWith(closeErr.Code, closeErr.Reason)
			return
		}
		c.logger.Warn("Ignoring start message", zap.Error(err))
		c.state.Store(int32(StateUnbootstrapped))
		return
	}

	session := newSession(c, agent)
	c.mu.Lock()
	c.conversation = conversation
	c.agent = agent
	c.session = session
	c.handler = newHandler(c, session, conversation.Mode)
	c.mu.Unlock()

	c.hub.JoinRoom(conversation.RoomKey(), c)
	c.state.Store(int32(StateAttached))
	c.hub.metrics.Bootstrap(string(c.kind), "attached")
	c.logger.Info("Connection attached",
		zap.String("roomKey", conversation.RoomKey()),
		zap.String("mode", string(conversation.Mode)))

	c.attachedHandler().handle(ctx, websocket.TextMessage, raw)
}

// resolve turns bootstrap parameters into a conversation, looking up the
// published agent of a widget when no agent is named.
func (c *Client) resolve(ctx context.Context, b Bootstrap) (entities.Conversation, *entities.Agent, error) {
	widgetID := b.WidgetID
	if c.tokenWidgetID != "" {
		if widgetID != "" && widgetID != c.tokenWidgetID {
			return entities.Conversation{}, nil, &CloseError{Code: websocket.ClosePolicyViolation, Reason: "widget mismatch"}
		}
		widgetID = c.tokenWidgetID
	}

	agentID := b.AgentID
	var agent *entities.Agent
	if agentID == "" {
		if widgetID == "" {
			return entities.Conversation{}, nil, errNoAgent
		}

		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		defer cancel()
		found, err := c.hub.agents.FindPublishedByWidgetID(lookupCtx, widgetID)
		if err != nil {
			c.logger.Warn("Failed to resolve published agent",
				zap.String("widgetID", widgetID),
				zap.Error(err))
			return entities.Conversation{}, nil, &CloseError{Code: websocket.CloseInternalServerErr, Reason: "agent not found"}
		}
		agent = found
		agentID = found.ID
	}

	conversationID := b.ConversationID
	if conversationID == "" {
		conversationID = newConnectionID()
	}

	mode := entities.ConversationModeCall
	if c.kind == entities.ConnectionKindWidget {
		mode = entities.ParseConversationMode(b.Mode)
	}

	conversation := entities.Conversation{
		AgentID:        agentID,
		WidgetID:       widgetID,
		ConversationID: conversationID,
		Mode:           mode,
		StreamSid:      b.StreamSid,
	}
	if err := conversation.Validate(); err != nil {
		return entities.Conversation{}, nil, err
	}
	return conversation, agent, nil
}
