package usecase

import "math"

// DefaultMinVolume is the RMS level, on a 0..1 scale, below which a chunk
// counts as silence.
const DefaultMinVolume = 0.02

// ulawToLinear decodes one G.711 μ-law sample to 16-bit PCM.
func ulawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + 0x84
	value <<= uint(exp)
	value -= 0x84
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// volume returns the RMS level of a μ-law chunk scaled to 0..1.
func volume(chunk []byte) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, b := range chunk {
		sample := float64(ulawToLinear(b)) / math.MaxInt16
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(len(chunk)))
}

// isVoiced reports whether a μ-law chunk is loud enough to be speech.
func isVoiced(chunk []byte, minVolume float64) bool {
	return volume(chunk) >= minVolume
}
