package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/streaming"
)

const (
	// DefaultSilenceThreshold ends a caller turn.
	DefaultSilenceThreshold = 800 * time.Millisecond

	// DefaultGreeting is spoken when the agent has none configured.
	DefaultGreeting = "Hello! How can I help you today?"

	answerTimeout = 30 * time.Second
)

// ConversationService orchestrates the conversation flow
type ConversationService struct {
	speechToText repositories.SpeechToText
	chatService  *ChatService
	logger       *zap.Logger

	language  string
	silence   time.Duration
	minVolume float64

	mu    sync.Mutex
	calls map[string]*call
}

var _ repositories.ConversationHandler = (*ConversationService)(nil)

// Option configures a ConversationService.
type Option func(*ConversationService)

// WithLanguage sets the recognition language.
func WithLanguage(language string) Option {
	return func(s *ConversationService) {
		s.language = language
	}
}

// WithSilenceThreshold sets how much silence ends a caller turn.
func WithSilenceThreshold(d time.Duration) Option {
	return func(s *ConversationService) {
		s.silence = d
	}
}

// WithMinVolume sets the RMS level below which audio counts as silence.
func WithMinVolume(v float64) Option {
	return func(s *ConversationService) {
		s.minVolume = v
	}
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stt repositories.SpeechToText,
	chatService *ChatService,
	logger *zap.Logger,
	opts ...Option,
) *ConversationService {
	s := &ConversationService{
		speechToText: stt,
		chatService:  chatService,
		logger:       logger,
		language:     "en-US",
		silence:      DefaultSilenceThreshold,
		minVolume:    DefaultMinVolume,
		calls:        make(map[string]*call),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// call is the per-connection turn state.
type call struct {
	ctx     context.Context
	session repositories.VoiceSession
	logger  *zap.Logger

	mu         sync.Mutex
	stream     repositories.SpeechToTextStreaming
	quiet      time.Duration
	speaking   int
	bargedIn   bool
	turnsTaken int
}

// OnStart greets the caller.
func (s *ConversationService) OnStart(ctx context.Context, session repositories.VoiceSession) {
	conversation := session.Conversation()
	c := &call{
		ctx:     ctx,
		session: session,
		logger: s.logger.With(
			zap.String("connectionID", session.ID()),
			zap.String("roomKey", conversation.RoomKey())),
	}

	s.mu.Lock()
	s.calls[session.ID()] = c
	s.mu.Unlock()

	greeting := DefaultGreeting
	if agent := session.Agent(); agent != nil && agent.Greeting != "" {
		greeting = agent.Greeting
	}

	c.logger.Info("Conversation started", zap.String("mode", string(conversation.Mode)))
	if conversation.Mode == entities.ConversationModeChat {
		go s.reply(c, greeting)
		return
	}
	s.speak(c, greeting)
}

// OnAudio feeds caller audio to recognition, detects the end of a turn by
// silence and interrupts the agent when the caller talks over it.
func (s *ConversationService) OnAudio(session repositories.VoiceSession, chunk []byte) {
	c := s.lookup(session)
	if c == nil {
		return
	}
	voiced := isVoiced(chunk, s.minVolume)

	c.mu.Lock()
	bargeIn := voiced && c.speaking > 0 && !c.bargedIn
	if bargeIn {
		c.bargedIn = true
	}

	if c.stream == nil && voiced {
		stream, err := s.speechToText.InitTranscribeStreaming(c.ctx, repositories.AudioConfig{
			SampleRate: streaming.BytesPerSecond,
			Encoding:   "MULAW",
			Language:   s.language,
		})
		if err != nil {
			c.mu.Unlock()
			c.logger.Error("Failed to initialize streaming transcription", zap.Error(err))
			return
		}
		c.stream = stream
		c.quiet = 0
	}

	var ended repositories.SpeechToTextStreaming
	if c.stream != nil {
		if err := c.stream.Stream(chunk); err != nil {
			c.logger.Warn("Failed to stream audio data", zap.Error(err))
		}
		if voiced {
			c.quiet = 0
		} else {
			c.quiet += streaming.FrameDuration(len(chunk))
		}
		if c.quiet >= s.silence {
			ended = c.stream
			c.stream = nil
			c.quiet = 0
		}
	}
	c.mu.Unlock()

	if bargeIn {
		c.logger.Info("Caller barged in")
		go session.Interrupt()
	}
	if ended != nil {
		go s.finishTurn(c, ended)
	}
}

// OnMark logs playback acknowledgements.
func (s *ConversationService) OnMark(session repositories.VoiceSession, name string) {
	s.logger.Debug("Playback mark", zap.String("connectionID", session.ID()), zap.String("mark", name))
}

// OnNearEnd logs that an utterance is about to finish playing.
func (s *ConversationService) OnNearEnd(session repositories.VoiceSession) {
	s.logger.Debug("Utterance near end", zap.String("connectionID", session.ID()))
}

// OnMessage answers a chat message.
func (s *ConversationService) OnMessage(_ context.Context, session repositories.VoiceSession, text string) {
	c := s.lookup(session)
	if c == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(c.ctx, answerTimeout)
		defer cancel()
		s.reply(c, s.chatService.Answer(ctx, text))
	}()
}

// OnStop releases the call state.
func (s *ConversationService) OnStop(session repositories.VoiceSession) {
	s.mu.Lock()
	c, ok := s.calls[session.ID()]
	delete(s.calls, session.ID())
	s.mu.Unlock()
	if !ok {
		return
	}

	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	turns := c.turnsTaken
	c.mu.Unlock()

	if stream != nil {
		go stream.End()
	}
	c.logger.Info("Conversation stopped", zap.Int("turns", turns))
}

func (s *ConversationService) lookup(session repositories.VoiceSession) *call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[session.ID()]
}

func (s *ConversationService) finishTurn(c *call, stream repositories.SpeechToTextStreaming) {
	transcript, err := stream.End()
	if err != nil {
		c.logger.Debug("Turn ended without a transcript", zap.Error(err))
		return
	}
	if transcript == "" {
		return
	}

	c.mu.Lock()
	c.turnsTaken++
	c.mu.Unlock()
	c.logger.Info("Transcription completed", zap.String("transcription", transcript))

	ctx, cancel := context.WithTimeout(c.ctx, answerTimeout)
	defer cancel()
	s.speak(c, s.chatService.Answer(ctx, transcript))
}

// speak marks the agent as speaking before the utterance starts so that
// barge-in is detected from the first caller frame.
func (s *ConversationService) speak(c *call, text string) {
	c.mu.Lock()
	c.speaking++
	c.bargedIn = false
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.speaking--
			c.mu.Unlock()
		}()

		err := c.session.Say(c.ctx, text)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, streaming.ErrConnectionClosed):
			c.logger.Debug("Utterance cut short", zap.Error(err))
		default:
			c.logger.Error("Failed to speak", zap.Error(err))
		}
	}()
}

func (s *ConversationService) reply(c *call, text string) {
	if err := c.session.Reply(c.ctx, text); err != nil {
		c.logger.Warn("Failed to send reply", zap.Error(err))
	}
}
