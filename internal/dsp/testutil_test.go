package dsp

import (
	"math"
	"testing"
)

// sine generates durS seconds of a sine wave at freq Hz with the given
// amplitude.
func sine(t *testing.T, freq float64, durS float64, rate int, amp float64) []float64 {
	t.Helper()
	n := int(durS * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return samples
}

// sweep generates a linear frequency sweep from f0 to f1 Hz.
func sweep(t *testing.T, f0, f1, durS float64, rate int, amp float64) []float64 {
	t.Helper()
	n := int(durS * float64(rate))
	samples := make([]float64, n)
	phase := 0.0
	for i := range samples {
		frac := float64(i) / float64(n)
		freq := f0 + (f1-f0)*frac
		phase += 2 * math.Pi * freq / float64(rate)
		samples[i] = amp * math.Sin(phase)
	}
	return samples
}
