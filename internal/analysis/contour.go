package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/dsp"
)

// Shared contour extraction and small statistics helpers. All modules that
// need an energy contour use the same window and dB scale so silence
// classification agrees across modules.

const (
	// intensityWindowS is the energy analysis window.
	intensityWindowS = 0.04
	// defaultStepS is the frame step shared by the contour extractors.
	defaultStepS = 0.01
	// dbOffset shifts dBFS so that a full-scale sine lands near the
	// conventional speech intensity scale. Frames then read in positive
	// dB like a sound-pressure contour.
	dbOffset = 91.0
	// silenceThresholdDB classifies a frame as silent.
	silenceThresholdDB = 40.0
	// minIntensityDB is the reporting floor; frames below it are
	// undefined in the intensity module output.
	minIntensityDB = -50.0
)

// intensityContour computes the frame energy contour in dB. Values are
// always finite; fully silent frames sit far below silenceThresholdDB.
func intensityContour(pcm *audio.Buffer, stepS float64) (times, values []float64) {
	if stepS <= 0 {
		stepS = defaultStepS
	}
	frames := dsp.Frames(pcm.Samples, pcm.SampleRate, intensityWindowS, stepS)
	times = make([]float64, len(frames))
	values = make([]float64, len(frames))
	for i, fr := range frames {
		times[i] = fr.Time
		values[i] = 20*math.Log10(dsp.RMS(fr.Samples)+1e-10) + dbOffset
	}
	return times, values
}

// finite returns the values that are neither NaN nor infinite.
func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// summaryStats returns mean/min/max/std of vs, or nils when vs is empty.
func summaryStats(vs []float64) (mean, min, max, std *float64) {
	if len(vs) == 0 {
		return nil, nil, nil, nil
	}
	m := stat.Mean(vs, nil)
	sd := stat.PopStdDev(vs, nil)
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return &m, &lo, &hi, &sd
}

// percentile returns the p-th percentile (0..100) of vs by linear
// interpolation over the sorted values.
func percentile(vs []float64, p float64) float64 {
	sorted := make([]float64, len(vs))
	copy(sorted, vs)
	sort.Float64s(sorted)
	return stat.Quantile(p/100, stat.LinInterp, sorted, nil)
}

// nearestIndex returns the index of the time in times closest to t. The
// grids involved are uniform, so a direct computation would do, but the
// scan keeps it correct for trimmed grids too.
func nearestIndex(times []float64, t float64) int {
	best, bestDist := 0, math.Inf(1)
	for i, tt := range times {
		if d := math.Abs(tt - t); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
