package dsp

import (
	"math"
	"sort"
)

// MedianFilterRuns applies a median filter of the given kernel size to each
// contiguous run of non-NaN values, leaving NaN entries in place. Runs
// shorter than the kernel pass through unchanged. This smooths spurious
// single-frame jumps without bleeding values across voicing gaps.
func MedianFilterRuns(values []float64, kernel int) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if kernel < 3 || kernel%2 == 0 {
		return out
	}

	i := 0
	for i < len(values) {
		if math.IsNaN(values[i]) {
			i++
			continue
		}
		j := i
		for j < len(values) && !math.IsNaN(values[j]) {
			j++
		}
		if j-i >= kernel {
			medianInPlace(out[i:j], values[i:j], kernel)
		}
		i = j
	}
	return out
}

// medianInPlace writes the kernel-median of src into dst. Edges where the
// kernel does not fit keep their original values, matching the behavior of
// filtering with the boundary frames untouched.
func medianInPlace(dst, src []float64, kernel int) {
	half := kernel / 2
	window := make([]float64, kernel)
	for i := half; i < len(src)-half; i++ {
		copy(window, src[i-half:i+half+1])
		sort.Float64s(window)
		dst[i] = window[half]
	}
}

// LinearInterpAt returns the series value at time t, linearly interpolated
// between the nearest bracketing samples with non-NaN values. Returns NaN
// when no voiced sample exists on one side within the series.
func LinearInterpAt(times, values []float64, t float64) float64 {
	// Nearest voiced sample at or before t, and at or after t.
	before, after := -1, -1
	for i := range times {
		if math.IsNaN(values[i]) {
			continue
		}
		if times[i] <= t {
			before = i
		}
		if times[i] >= t && after < 0 {
			after = i
		}
	}
	switch {
	case before < 0 && after < 0:
		return math.NaN()
	case before < 0:
		return values[after]
	case after < 0:
		return values[before]
	case before == after:
		return values[before]
	}
	span := times[after] - times[before]
	if span == 0 {
		return values[before]
	}
	frac := (t - times[before]) / span
	return values[before] + frac*(values[after]-values[before])
}
