// Package streaming turns synthesized speech into paced, real-time audio
// frames on a connection. It owns chunking, pacing, the near-end hook and the
// end-of-utterance mark for every synthesis provider.
package streaming

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/repositories"
	"github.com/satriahrh/suara/internal/metrics"
)

var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrUnknownProvider   = errors.New("unknown synthesis provider")
	ErrUtteranceInFlight = errors.New("an utterance is already streaming on this connection")
	ErrConnectionClosed  = errors.New("connection closed")
)

// Sink is the outbound side of one connection.
type Sink interface {
	// ID identifies the connection. One utterance may stream per ID.
	ID() string
	// SendMedia writes one audio frame and returns once it has been written.
	SendMedia(ctx context.Context, frame []byte) error
	// SendMark writes an end-of-utterance mark and returns once it has been written.
	SendMark(ctx context.Context, name string) error
	// Done is closed when the connection goes away.
	Done() <-chan struct{}
}

// Engine streams utterances to sinks.
type Engine struct {
	providers       map[string]repositories.Synthesizer
	defaultProvider string
	clock           clock.Clock
	logger          *zap.Logger
	metrics         *metrics.Metrics

	mu     sync.Mutex
	active map[string]*Utterance
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for pacing.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithDefaultProvider sets the provider used when a VoiceConfig names none.
func WithDefaultProvider(name string) Option {
	return func(e *Engine) {
		e.defaultProvider = name
	}
}

// WithMetrics records frame and utterance metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine over the given providers. The first provider is
// the default unless WithDefaultProvider says otherwise.
func NewEngine(logger *zap.Logger, providers []repositories.Synthesizer, opts ...Option) (*Engine, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one synthesis provider is required")
	}

	e := &Engine{
		providers:       make(map[string]repositories.Synthesizer, len(providers)),
		defaultProvider: providers[0].Name(),
		clock:           clock.New(),
		logger:          logger,
		active:          make(map[string]*Utterance),
	}
	for _, p := range providers {
		e.providers[p.Name()] = p
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, ok := e.providers[e.defaultProvider]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, e.defaultProvider)
	}
	return e, nil
}

// Speak synthesizes text and streams it to sink in real time. It blocks until
// the end mark has been written, the sink closes, ctx ends or a send fails.
//
// onNearEnd runs once on the pacing goroutine, at the latest NearEndLead before
// playback ends, or right after the last frame for shorter utterances. It always
// runs before the mark is sent and must not block.
func (e *Engine) Speak(ctx context.Context, sink Sink, text string, voice repositories.VoiceConfig, onNearEnd func()) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	provider, err := e.provider(voice.Provider)
	if err != nil {
		return err
	}

	u, err := e.begin(sink.ID(), provider.Name(), text)
	if err != nil {
		return err
	}
	defer e.finish(u)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-sink.Done():
			cancel(ErrConnectionClosed)
		case <-ctx.Done():
		}
	}()

	err = e.stream(ctx, sink, provider, u, voice, onNearEnd)
	if err != nil {
		u.fail()
		e.metrics.Utterance(u.Provider, string(UtteranceFailed))
		e.logger.Warn("Utterance aborted",
			zap.String("utteranceID", u.ID),
			zap.String("connectionID", u.ConnectionID),
			zap.Int("framesSent", u.Cursor()),
			zap.Int("framesDropped", u.Remaining()),
			zap.Error(err))
		return err
	}

	e.metrics.Utterance(u.Provider, string(UtteranceMarked))
	e.logger.Debug("Utterance completed",
		zap.String("utteranceID", u.ID),
		zap.String("connectionID", u.ConnectionID),
		zap.Int("frames", u.Cursor()))
	return nil
}

// Active reports whether an utterance is streaming on the connection.
func (e *Engine) Active(connectionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[connectionID]
	return ok
}

func (e *Engine) provider(name string) (repositories.Synthesizer, error) {
	if name == "" {
		name = e.defaultProvider
	}
	p, ok := e.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

func (e *Engine) begin(connectionID, provider, text string) (*Utterance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[connectionID]; busy {
		return nil, ErrUtteranceInFlight
	}
	u := &Utterance{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Provider:     provider,
		Text:         text,
		state:        UtteranceStreaming,
	}
	e.active[connectionID] = u
	return u, nil
}

func (e *Engine) finish(u *Utterance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[u.ConnectionID] == u {
		delete(e.active, u.ConnectionID)
	}
}

func (e *Engine) stream(ctx context.Context, sink Sink, provider repositories.Synthesizer, u *Utterance, voice repositories.VoiceConfig, onNearEnd func()) error {
	started := e.clock.Now()
	audio, err := e.synthesize(ctx, provider, u.Text, voice)
	e.metrics.ObserveSynthesis(provider.Name(), e.clock.Since(started))
	if err != nil {
		return err
	}
	if len(audio) == 0 {
		return fmt.Errorf("%s returned no audio", provider.Name())
	}

	frames := SplitFrames(audio)
	u.setTotal(len(frames))
	return e.play(ctx, sink, u, frames, onNearEnd)
}

// synthesize produces one ordered byte stream for the whole utterance.
func (e *Engine) synthesize(ctx context.Context, provider repositories.Synthesizer, text string, voice repositories.VoiceConfig) ([]byte, error) {
	segments := []string{text}
	if provider.Segmentation() == repositories.SegmentSentences {
		segments = SplitSentences(text)
	}

	var buf bytes.Buffer
	for i, segment := range segments {
		audio, err := provider.Synthesize(ctx, segment, voice)
		if err != nil {
			if cause := context.Cause(ctx); cause != nil {
				return nil, cause
			}
			return nil, fmt.Errorf("synthesize segment %d: %w", i, err)
		}
		buf.Write(audio)
	}
	return buf.Bytes(), nil
}

// play paces frames onto the sink. Frame i+1 goes out once frame i's playback
// time has elapsed.
func (e *Engine) play(ctx context.Context, sink Sink, u *Utterance, frames [][]byte, onNearEnd func()) error {
	fired := false
	nearEnd := func() {
		if fired {
			return
		}
		fired = true
		if onNearEnd != nil {
			onNearEnd()
		}
	}

	total := TotalDuration(frames)
	nearEndAt := total - NearEndLead
	var elapsed time.Duration

	for i, frame := range frames {
		if i > 0 {
			if err := e.wait(ctx, FrameDuration(len(frames[i-1]))); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		if err := sink.SendMedia(ctx, frame); err != nil {
			return fmt.Errorf("send frame %d: %w", i, err)
		}
		u.advance()
		e.metrics.FrameSent()

		d := FrameDuration(len(frame))
		if nearEndAt >= 0 && elapsed+d > nearEndAt {
			nearEnd()
		}
		elapsed += d
	}

	u.setState(UtteranceDrained)
	nearEnd()

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err := sink.SendMark(ctx, EndMarkName); err != nil {
		return fmt.Errorf("send mark: %w", err)
	}
	u.setState(UtteranceMarked)
	return nil
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	timer := e.clock.Timer(d)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return context.Cause(ctx)
	}
}
