package websocket

import (
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
)

// handler consumes the messages of one attached connection. Both methods run
// on the connection's read goroutine.
type handler interface {
	handle(ctx context.Context, messageType int, data []byte)
	close()
}

func newHandler(c *Client, session *Session, mode entities.ConversationMode) handler {
	base := lifecycle{session: session, conversations: c.hub.conversations, logger: c.logger}
	switch {
	case c.kind == entities.ConnectionKindTelephony:
		return &callHandler{lifecycle: base, client: c}
	case mode == entities.ConversationModeChat:
		return &chatHandler{lifecycle: base}
	default:
		return &callHandler{lifecycle: base, client: c, acceptBinary: true}
	}
}

// lifecycle makes sure the conversation sees one start and one stop.
type lifecycle struct {
	session       *Session
	conversations repositories.ConversationHandler
	logger        *zap.Logger

	started bool
	stopped bool
}

func (l *lifecycle) start(ctx context.Context) bool {
	if l.started {
		l.logger.Debug("Ignoring repeated start")
		return false
	}
	l.started = true
	l.conversations.OnStart(ctx, l.session)
	return true
}

func (l *lifecycle) stop() {
	if !l.started || l.stopped {
		return
	}
	l.stopped = true
	l.conversations.OnStop(l.session)
}

func (l *lifecycle) close() {
	l.stop()
}

// callHandler serves telephony legs and widgets in call mode.
type callHandler struct {
	lifecycle
	client *Client

	// Widgets may stream raw μ-law as binary frames.
	acceptBinary bool
}

func (h *callHandler) handle(ctx context.Context, messageType int, data []byte) {
	if messageType == websocket.BinaryMessage {
		if h.acceptBinary && h.started && !h.stopped {
			h.conversations.OnAudio(h.session, data)
		}
		return
	}

	msg, err := ParseInbound(data)
	if err != nil {
		h.logger.Warn("Ignoring malformed message", zap.Error(err))
		return
	}

	switch msg.Event {
	case EventStart:
		if sid := msg.Bootstrap().StreamSid; sid != "" && !h.started {
			h.client.setStreamSid(sid)
		}
		h.start(ctx)

	case EventMedia:
		if h.stopped {
			return
		}
		audio, err := msg.AudioPayload()
		if err != nil {
			h.logger.Warn("Ignoring media message", zap.Error(err))
			return
		}
		h.conversations.OnAudio(h.session, audio)

	case EventMark:
		if msg.Mark != nil {
			h.conversations.OnMark(h.session, msg.Mark.Name)
		}

	case EventStop:
		h.stop()

	case EventConnected:

	default:
		h.logger.Debug("Ignoring message", zap.String("event", msg.Event))
	}
}

// chatHandler serves widgets in chat mode.
type chatHandler struct {
	lifecycle
}

func (h *chatHandler) handle(ctx context.Context, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		h.logger.Debug("Ignoring binary message in chat mode")
		return
	}

	msg, err := ParseInbound(data)
	if err != nil {
		h.logger.Warn("Ignoring malformed message", zap.Error(err))
		return
	}

	switch msg.Event {
	case EventStart:
		h.start(ctx)
	case EventMessage:
		if msg.Text != "" && !h.stopped {
			h.conversations.OnMessage(ctx, h.session, msg.Text)
		}
	case EventStop:
		h.stop()
	default:
		h.logger.Debug("Ignoring message", zap.String("event", msg.Event))
	}
}
