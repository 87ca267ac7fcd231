package dsp

import "math"

// FindPeaks locates local maxima in values that are at least minDistance
// samples apart and rise at least minProminence above their surrounding
// valleys. Peaks are returned in ascending index order.
//
// Prominence is measured the usual way: from the peak, walk outward in both
// directions until a higher value is found (or the signal ends); the higher
// of the two interval minima is the base, and prominence = peak - base.
func FindPeaks(values []float64, minDistance int, minProminence float64) []int {
	if minDistance < 1 {
		minDistance = 1
	}

	var candidates []int
	for i := 1; i < len(values)-1; i++ {
		if values[i] > values[i-1] && values[i] >= values[i+1] {
			candidates = append(candidates, i)
		}
	}

	var prominent []int
	for _, p := range candidates {
		if prominence(values, p) >= minProminence {
			prominent = append(prominent, p)
		}
	}

	// Enforce spacing, keeping the taller of two conflicting peaks.
	var peaks []int
	for _, p := range prominent {
		if len(peaks) == 0 || p-peaks[len(peaks)-1] >= minDistance {
			peaks = append(peaks, p)
			continue
		}
		if values[p] > values[peaks[len(peaks)-1]] {
			peaks[len(peaks)-1] = p
		}
	}
	return peaks
}

func prominence(values []float64, peak int) float64 {
	h := values[peak]

	leftMin := h
	for i := peak - 1; i >= 0; i-- {
		if values[i] > h {
			break
		}
		if values[i] < leftMin {
			leftMin = values[i]
		}
	}
	rightMin := h
	for i := peak + 1; i < len(values); i++ {
		if values[i] > h {
			break
		}
		if values[i] < rightMin {
			rightMin = values[i]
		}
	}
	return h - math.Max(leftMin, rightMin)
}

// Regions returns the [start, end] index pairs of runs where mask is true
// for at least minLength consecutive entries. End indices are inclusive.
func Regions(mask []bool, minLength int) [][2]int {
	var regions [][2]int
	start := -1
	for i, v := range mask {
		switch {
		case v && start < 0:
			start = i
		case !v && start >= 0:
			if i-start >= minLength {
				regions = append(regions, [2]int{start, i - 1})
			}
			start = -1
		}
	}
	if start >= 0 && len(mask)-start >= minLength {
		regions = append(regions, [2]int{start, len(mask) - 1})
	}
	return regions
}
