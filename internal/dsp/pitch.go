package dsp

import "math"

// Pitch tracking by short-term normalized autocorrelation. Each frame yields
// either a fundamental frequency estimate or NaN for unvoiced. Unvoiced
// frames are never interpolated over; downstream consumers see the gaps.

const (
	// voicingThreshold is the minimum normalized autocorrelation peak for
	// a frame to count as voiced.
	voicingThreshold = 0.45
	// silenceRatio marks a frame unvoiced when its peak amplitude falls
	// below this fraction of the signal's global peak.
	silenceRatio = 0.03
	// pitchWindowPeriods sizes the analysis window in periods of the
	// lowest trackable frequency.
	pitchWindowPeriods = 3.0
	// DefaultPitchStepS is the frame step used when the caller passes a
	// non-positive time step.
	DefaultPitchStepS = 0.01
)

// PitchTrack is a sampled F0 contour. Values[i] is NaN where unvoiced.
type PitchTrack struct {
	Times  []float64
	Values []float64
}

// VoicedCount returns the number of voiced frames.
func (p *PitchTrack) VoicedCount() int {
	n := 0
	for _, v := range p.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Voiced returns the voiced F0 values in frame order.
func (p *PitchTrack) Voiced() []float64 {
	out := make([]float64, 0, len(p.Values))
	for _, v := range p.Values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// TrackF0 extracts an F0 contour with candidates restricted to
// [fMin, fMax] Hz. stepS <= 0 selects DefaultPitchStepS. The window spans
// three periods of fMin so even the lowest candidate fits.
func TrackF0(samples []float64, rate int, fMin, fMax, stepS float64) *PitchTrack {
	if stepS <= 0 {
		stepS = DefaultPitchStepS
	}
	windowS := pitchWindowPeriods / fMin

	var globalPeak float64
	for _, s := range samples {
		if a := math.Abs(s); a > globalPeak {
			globalPeak = a
		}
	}

	frames := Frames(samples, rate, windowS, stepS)
	track := &PitchTrack{
		Times:  make([]float64, len(frames)),
		Values: make([]float64, len(frames)),
	}
	for i, fr := range frames {
		track.Times[i] = fr.Time
		track.Values[i] = f0Frame(fr.Samples, rate, fMin, fMax, globalPeak)
	}
	return track
}

// f0Frame estimates F0 for one frame, returning NaN when unvoiced.
func f0Frame(frame []float64, rate int, fMin, fMax, globalPeak float64) float64 {
	var framePeak float64
	var mean float64
	for _, s := range frame {
		mean += s
		if a := math.Abs(s); a > framePeak {
			framePeak = a
		}
	}
	mean /= float64(len(frame))
	if globalPeak > 0 && framePeak < silenceRatio*globalPeak {
		return math.NaN()
	}

	// Mean-removed energy; flat frames carry no pitch.
	x := make([]float64, len(frame))
	var r0 float64
	for i, s := range frame {
		x[i] = s - mean
		r0 += x[i] * x[i]
	}
	if r0 == 0 {
		return math.NaN()
	}

	minLag := int(float64(rate) / fMax)
	maxLag := int(float64(rate) / fMin)
	if maxLag >= len(x) {
		maxLag = len(x) - 1
	}
	if minLag < 2 || minLag >= maxLag {
		return math.NaN()
	}

	bestLag, bestR := 0, 0.0
	acf := make([]float64, maxLag+1)
	for lag := minLag; lag <= maxLag; lag++ {
		var r float64
		for i := 0; i+lag < len(x); i++ {
			r += x[i] * x[i+lag]
		}
		r /= r0
		acf[lag] = r
		if r > bestR {
			bestR = r
			bestLag = lag
		}
	}
	if bestLag == 0 || bestR < voicingThreshold {
		return math.NaN()
	}

	// Parabolic interpolation around the peak lag for sub-sample accuracy.
	lag := float64(bestLag)
	if bestLag > minLag && bestLag < maxLag {
		ym1, y0, yp1 := acf[bestLag-1], acf[bestLag], acf[bestLag+1]
		denom := ym1 - 2*y0 + yp1
		if denom != 0 {
			delta := 0.5 * (ym1 - yp1) / denom
			if delta > -1 && delta < 1 {
				lag += delta
			}
		}
	}
	return float64(rate) / lag
}

// HarmonicStrength returns the normalized autocorrelation of the frame at
// the lag matching f0, used as the harmonicity estimate for HNR.
func HarmonicStrength(frame []float64, rate int, f0 float64) float64 {
	if f0 <= 0 {
		return 0
	}
	lag := int(math.Round(float64(rate) / f0))
	if lag < 1 || lag >= len(frame) {
		return 0
	}
	var mean float64
	for _, s := range frame {
		mean += s
	}
	mean /= float64(len(frame))
	var r, r0 float64
	for i := range frame {
		xi := frame[i] - mean
		r0 += xi * xi
		if i+lag < len(frame) {
			r += xi * (frame[i+lag] - mean)
		}
	}
	if r0 == 0 {
		return 0
	}
	return r / r0
}
