package websocket

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
)

var ErrSynthesisUnavailable = errors.New("no synthesis engine configured")

// Session is the VoiceSession of one attached connection.
type Session struct {
	client *Client
	agent  *entities.Agent
	voice  repositories.VoiceConfig

	// Serialises utterances.
	sayMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ repositories.VoiceSession = (*Session)(nil)

func newSession(c *Client, agent *entities.Agent) *Session {
	s := &Session{client: c, agent: agent}
	if agent != nil {
		s.voice = repositories.VoiceConfig{
			Provider: agent.Voice.Provider,
			VoiceID:  agent.Voice.VoiceID,
			Language: agent.Voice.Language,
		}
	}
	return s
}

func (s *Session) ID() string {
	return s.client.ID()
}

func (s *Session) Kind() entities.ConnectionKind {
	return s.client.Kind()
}

func (s *Session) Conversation() entities.Conversation {
	return s.client.Conversation()
}

func (s *Session) Agent() *entities.Agent {
	return s.agent
}

// Say streams text as speech. It returns once the end mark is written or the
// utterance is interrupted.
func (s *Session) Say(ctx context.Context, text string) error {
	engine := s.client.hub.engine
	if engine == nil {
		return ErrSynthesisUnavailable
	}

	s.sayMu.Lock()
	defer s.sayMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
		cancel()
	}()

	return engine.Speak(ctx, s.client, text, s.voice, func() {
		s.client.hub.conversations.OnNearEnd(s)
	})
}

// Reply sends a chat message to this connection.
func (s *Session) Reply(ctx context.Context, text string) error {
	return s.client.writeJSON(ctx, OutboundMessage{Event: EventMessage, Text: text})
}

// Interrupt stops the utterance in flight and sends clear so the caller drops
// audio it has buffered. The clear is written after the last frame.
func (s *Session) Interrupt() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.sayMu.Lock()
	defer s.sayMu.Unlock()

	ctx, done := context.WithTimeout(context.Background(), writeWait)
	defer done()
	err := s.client.writeJSON(ctx, OutboundClear{Event: EventClear, StreamSid: s.client.streamSid()})
	if err != nil {
		s.client.logger.Debug("Failed to send clear", zap.Error(err))
	}
}

// Broadcast sends a chat message to the other members of the room.
func (s *Session) Broadcast(ctx context.Context, text string) error {
	key := s.client.RoomKey()
	if key == "" {
		return nil
	}

	var errs []error
	for _, peer := range s.client.hub.peers(key, s.client) {
		if err := peer.writeJSON(ctx, OutboundMessage{Event: EventMessage, Text: text}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
