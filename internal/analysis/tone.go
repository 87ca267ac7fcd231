package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Tone feature extraction over a pitch contour and a segment window. The
// fixed-length 5-point contour is the cross-dialect comparison feature:
// given the same F0 series and bounds it must reproduce bit for bit, so
// everything here is plain deterministic arithmetic.

// contourPoints is the number of fixed relative positions sampled for the
// tone contour (0%, 25%, 50%, 75%, 100% of the segment span).
const contourPoints = 5

// ToneFeatures summarizes the F0 shape within one segment. All fields are
// undefined (nil) when the segment holds fewer than two voiced frames.
type ToneFeatures struct {
	F0Start     *float64  `json:"f0_start" msgpack:"f0_start"`
	F0End       *float64  `json:"f0_end" msgpack:"f0_end"`
	F0Min       *float64  `json:"f0_min" msgpack:"f0_min"`
	F0Max       *float64  `json:"f0_max" msgpack:"f0_max"`
	F0Mean      *float64  `json:"f0_mean" msgpack:"f0_mean"`
	F0Slope     *float64  `json:"f0_slope" msgpack:"f0_slope"`
	F0Range     *float64  `json:"f0_range" msgpack:"f0_range"`
	Contour5Pt  []float64 `json:"contour_5pt" msgpack:"contour_5pt"`
	VoicedRatio *float64  `json:"voiced_ratio" msgpack:"voiced_ratio"`
}

// ExtractToneFeatures derives the tone features for the segment
// [startS, endS] from an F0 series (NaN where unvoiced). Frames at the
// boundaries are included. The contour samples five fixed relative
// positions, each linearly interpolated between the two nearest voiced
// frames; voiced frames outside the segment never contribute.
func ExtractToneFeatures(times, f0 []float64, startS, endS float64) *ToneFeatures {
	var segTimes, segF0 []float64
	total := 0
	for i, t := range times {
		if t < startS || t > endS {
			continue
		}
		total++
		if !math.IsNaN(f0[i]) {
			segTimes = append(segTimes, t)
			segF0 = append(segF0, f0[i])
		}
	}

	ft := &ToneFeatures{}
	if len(segF0) < 2 {
		return ft
	}

	mean, min, max, _ := summaryStats(segF0)
	ft.F0Start = &segF0[0]
	ft.F0End = &segF0[len(segF0)-1]
	ft.F0Min = min
	ft.F0Max = max
	ft.F0Mean = mean
	r := *max - *min
	ft.F0Range = &r

	_, slope := stat.LinearRegression(segTimes, segF0, nil, false)
	ft.F0Slope = &slope

	contour := make([]float64, contourPoints)
	ok := true
	for i := range contour {
		frac := float64(i) / float64(contourPoints-1)
		v := interpInSegment(segTimes, segF0, startS+frac*(endS-startS))
		if math.IsNaN(v) {
			ok = false
			break
		}
		contour[i] = v
	}
	if ok {
		ft.Contour5Pt = contour
	}

	ratio := float64(len(segF0)) / float64(total)
	ft.VoicedRatio = &ratio

	return ft
}

// interpInSegment linearly interpolates between the bracketing voiced
// samples; positions before the first or after the last voiced sample
// take that sample's value. times must be ascending with no NaN values.
func interpInSegment(times, values []float64, t float64) float64 {
	if len(times) == 0 {
		return math.NaN()
	}
	if t <= times[0] {
		return values[0]
	}
	if t >= times[len(times)-1] {
		return values[len(values)-1]
	}
	for i := 1; i < len(times); i++ {
		if times[i] < t {
			continue
		}
		span := times[i] - times[i-1]
		if span == 0 {
			return values[i]
		}
		frac := (t - times[i-1]) / span
		return values[i-1] + frac*(values[i]-values[i-1])
	}
	return values[len(values)-1]
}
