package stt

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/repositories"
)

// MockSpeechToText returns scripted transcripts in order, one per stream. It
// stands in for Google when no credentials are configured.
type MockSpeechToText struct {
	logger *zap.Logger

	mu          sync.Mutex
	transcripts []string
	next        int
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a mock that cycles through transcripts.
func NewMockSpeechToText(logger *zap.Logger, transcripts ...string) *MockSpeechToText {
	if len(transcripts) == 0 {
		transcripts = []string{"Hello, can you help me?"}
	}
	return &MockSpeechToText{logger: logger, transcripts: transcripts}
}

// InitTranscribeStreaming creates a new mock streaming session
func (s *MockSpeechToText) InitTranscribeStreaming(_ context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	s.mu.Lock()
	transcript := s.transcripts[s.next%len(s.transcripts)]
	s.next++
	s.mu.Unlock()

	s.logger.Debug("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding))

	return &MockSpeechToTextStream{transcription: transcript}, nil
}

// MockSpeechToTextStream is a mock implementation of streaming speech recognition
type MockSpeechToTextStream struct {
	bytesReceived int
	transcription string
}

func (m *MockSpeechToTextStream) Stream(data []byte) error {
	m.bytesReceived += len(data)
	return nil
}

// End returns the scripted transcription once audio has been received.
func (m *MockSpeechToTextStream) End() (string, error) {
	if m.bytesReceived == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	return m.transcription, nil
}
