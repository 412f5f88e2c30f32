package stt

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/suara/domain/repositories"
)

func TestMockSpeechToTextCycles(t *testing.T) {
	mock := NewMockSpeechToText(zap.NewNop(), "first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second", "first"} {
		stream, err := mock.InitTranscribeStreaming(ctx, repositories.AudioConfig{})
		if err != nil {
			t.Fatalf("InitTranscribeStreaming() error = %v", err)
		}
		if err := stream.Stream([]byte{0xff, 0x7f}); err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		got, err := stream.End()
		if err != nil {
			t.Fatalf("End() error = %v", err)
		}
		if got != want {
			t.Errorf("End() = %q, want %q", got, want)
		}
	}

	stream, _ := mock.InitTranscribeStreaming(ctx, repositories.AudioConfig{})
	if _, err := stream.End(); err == nil {
		t.Error("Expected error when no audio was streamed")
	}
}
