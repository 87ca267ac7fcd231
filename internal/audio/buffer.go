// Package audio provides the canonical PCM representation used by the
// analysis modules, a minimal WAV codec for it, and the normalizer that turns
// arbitrary uploaded audio into that canonical form via the decode service.
package audio

import "math"

// Buffer holds mono linear PCM as float64 samples in [-1, 1].
// All analysis modules consume this form; the normalizer guarantees it.
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// RMS returns the root-mean-square amplitude of the whole buffer.
func (b *Buffer) RMS() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.Samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(b.Samples)))
}

// Peak returns the maximum absolute amplitude.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Slice returns the sub-buffer covering [startS, endS), clamped to the
// buffer bounds. The returned buffer shares underlying storage.
func (b *Buffer) Slice(startS, endS float64) *Buffer {
	start := int(startS * float64(b.SampleRate))
	end := int(endS * float64(b.SampleRate))
	if start < 0 {
		start = 0
	}
	if end > len(b.Samples) {
		end = len(b.Samples)
	}
	if start >= end {
		return &Buffer{SampleRate: b.SampleRate}
	}
	return &Buffer{Samples: b.Samples[start:end], SampleRate: b.SampleRate}
}
