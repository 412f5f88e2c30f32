package repositories

import "context"

// Segmentation tells the streaming engine how a provider wants its input.
type Segmentation int

const (
	// SegmentWholeText providers get the full utterance in one call.
	SegmentWholeText Segmentation = iota
	// SegmentSentences providers get one call per sentence.
	SegmentSentences
)

// VoiceConfig selects the provider and voice for one utterance.
type VoiceConfig struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voice_id"`
	Language string `json:"language"`
}

// Synthesizer turns text into 8 kHz 8-bit mono μ-law audio.
type Synthesizer interface {
	// Name returns the provider identifier used in VoiceConfig.Provider.
	Name() string
	// Segmentation reports whether the provider wants whole text or sentences.
	Segmentation() Segmentation
	// Synthesize returns the complete audio for text.
	Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error)
}
