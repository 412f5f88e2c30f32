package streaming

import (
	"strings"
	"time"
	"unicode"
)

const (
	// FrameSize is 40 ms of 8 kHz 8-bit mono μ-law audio.
	FrameSize = 320

	// BytesPerSecond of 8 kHz 8-bit mono audio.
	BytesPerSecond = 8000

	// NearEndLead is how long before the end of playback the near-end hook fires.
	NearEndLead = 500 * time.Millisecond

	// EndMarkName is the name of the mark sent after the last frame.
	EndMarkName = "End of response"
)

// SplitFrames slices audio into FrameSize frames. The last frame may be short.
// Frames share the backing array of audio.
func SplitFrames(audio []byte) [][]byte {
	if len(audio) == 0 {
		return nil
	}
	frames := make([][]byte, 0, (len(audio)+FrameSize-1)/FrameSize)
	for start := 0; start < len(audio); start += FrameSize {
		end := start + FrameSize
		if end > len(audio) {
			end = len(audio)
		}
		frames = append(frames, audio[start:end])
	}
	return frames
}

// FrameDuration is the playback time of n bytes of audio.
func FrameDuration(n int) time.Duration {
	return time.Duration(n) * time.Second / BytesPerSecond
}

// TotalDuration is the playback time of all frames.
func TotalDuration(frames [][]byte) time.Duration {
	var total int
	for _, f := range frames {
		total += len(f)
	}
	return FrameDuration(total)
}

// SplitSentences breaks text after '.', '!' or '?' when followed by whitespace.
// Sentences are trimmed and empty ones dropped.
func SplitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			if unicode.IsSpace(runes[i+1]) {
				sentences = appendTrimmed(sentences, string(runes[start:i+1]))
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		sentences = appendTrimmed(sentences, string(runes[start:]))
	}
	return sentences
}

func appendTrimmed(dst []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		dst = append(dst, s)
	}
	return dst
}
