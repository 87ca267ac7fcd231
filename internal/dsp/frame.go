// Package dsp holds the numeric primitives shared by the analysis modules:
// framing, windowing, autocorrelation pitch estimation, peak picking, median
// filtering and linear prediction. Everything operates on mono float64 PCM
// in [-1, 1] and is deterministic for identical input.
package dsp

import "math"

// Frame describes one analysis frame cut from a signal.
type Frame struct {
	// Time is the frame center in seconds.
	Time float64
	// Samples is a view into the source signal (not windowed).
	Samples []float64
}

// Frames cuts the signal into centered frames of windowS seconds every
// stepS seconds. Frames that would extend past either end are dropped, so
// every returned frame is complete; the first center sits at windowS/2.
func Frames(samples []float64, rate int, windowS, stepS float64) []Frame {
	win := int(math.Round(windowS * float64(rate)))
	step := int(math.Round(stepS * float64(rate)))
	if win <= 0 || step <= 0 || win > len(samples) {
		return nil
	}
	var frames []Frame
	for start := 0; start+win <= len(samples); start += step {
		center := float64(start)/float64(rate) + windowS/2
		frames = append(frames, Frame{Time: center, Samples: samples[start : start+win]})
	}
	return frames
}

// Hann returns a Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// RMS returns the root-mean-square of the samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PreEmphasis applies a first-order high-pass filter y[i] = x[i] - a*x[i-1],
// with a derived from the given cutoff frequency. Standard preparation before
// linear prediction so higher formants are not swamped by the glottal slope.
func PreEmphasis(samples []float64, rate int, fromHz float64) []float64 {
	a := math.Exp(-2 * math.Pi * fromHz / float64(rate))
	out := make([]float64, len(samples))
	if len(samples) == 0 {
		return out
	}
	out[0] = samples[0]
	for i := 1; i < len(samples); i++ {
		out[i] = samples[i] - a*samples[i-1]
	}
	return out
}
