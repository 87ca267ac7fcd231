package analysis

import (
	"context"
	"math"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/dsp"
	"github.com/dialectatlas/tonelab/internal/errs"
)

const (
	// minVoicedFrames is the minimum number of voiced frames for a stable
	// jitter/shimmer estimate.
	minVoicedFrames = 10
	// minHNRDB filters out degenerate harmonicity frames.
	minHNRDB = -50.0
)

// VoiceQualityModule measures HNR, jitter and shimmer over voiced frames.
// Recordings with too little voicing fail outright instead of producing a
// number nobody should trust.
type VoiceQualityModule struct{}

func (*VoiceQualityModule) Name() string { return "voice_quality" }

func (*VoiceQualityModule) OptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: "f0_min", Default: defaultF0Min, Doc: "lower F0 bound in Hz"},
		{Name: "f0_max", Default: defaultF0Max, Doc: "upper F0 bound in Hz"},
		{Name: "min_voiced_frames", Default: minVoicedFrames, Doc: "voiced frames required for a stable estimate"},
	}
}

func (*VoiceQualityModule) Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error) {
	f0Min := opts.Float("f0_min", defaultF0Min)
	f0Max := opts.Float("f0_max", defaultF0Max)
	minVoiced := opts.Int("min_voiced_frames", minVoicedFrames)

	track := dsp.TrackF0(pcm.Samples, pcm.SampleRate, f0Min, f0Max, 0)
	if n := track.VoicedCount(); n < minVoiced {
		return nil, errs.Newf(errs.InsufficientVoicedFrames,
			"voice quality needs at least %d voiced frames, found %d", minVoiced, n).
			WithDetail("voiced_frames", n).
			WithDetail("required", minVoiced)
	}

	hnr := harmonicityStats(pcm, track)

	periods, amplitudes := glottalCycles(pcm, track)
	jitterLocal, jitterAbs := jitter(periods)
	shimmerLocal, shimmerDB := shimmer(amplitudes)

	return &Record{
		Summary: map[string]any{
			"hnr":     hnr,
			"jitter":  map[string]any{"local": jitterLocal, "absolute_s": jitterAbs},
			"shimmer": map[string]any{"local": shimmerLocal, "db": shimmerDB},
		},
		Params: map[string]any{
			"f0_min": f0Min,
			"f0_max": f0Max,
		},
	}, nil
}

// harmonicityStats computes per-frame HNR from the normalized
// autocorrelation r at the pitch lag: HNR = 10*log10(r / (1-r)).
func harmonicityStats(pcm *audio.Buffer, track *dsp.PitchTrack) map[string]any {
	windowS := pitchFrameWindowS(track)
	frames := dsp.Frames(pcm.Samples, pcm.SampleRate, windowS, dsp.DefaultPitchStepS)

	var values []float64
	for _, fr := range frames {
		idx := nearestIndex(track.Times, fr.Time)
		if len(track.Times) == 0 || math.IsNaN(track.Values[idx]) {
			continue
		}
		r := dsp.HarmonicStrength(fr.Samples, pcm.SampleRate, track.Values[idx])
		if r <= 0 || r >= 1 {
			continue
		}
		if db := 10 * math.Log10(r/(1-r)); db >= minHNRDB {
			values = append(values, db)
		}
	}

	mean, min, max, std := summaryStats(values)
	return map[string]any{
		"mean_db": mean,
		"min_db":  min,
		"max_db":  max,
		"std_db":  std,
	}
}

// pitchFrameWindowS recovers the frame window used for harmonicity from
// the track's lowest voiced frequency, long enough to hold two periods.
func pitchFrameWindowS(track *dsp.PitchTrack) float64 {
	low := math.Inf(1)
	for _, v := range track.Values {
		if !math.IsNaN(v) && v < low {
			low = v
		}
	}
	if math.IsInf(low, 1) {
		low = defaultF0Min
	}
	return 2.5 / low
}

// glottalCycles places pulse marks through each voiced run by stepping one
// local period at a time, then measures the period and the peak amplitude
// of every cycle. Cycle sequences reset across unvoiced gaps.
func glottalCycles(pcm *audio.Buffer, track *dsp.PitchTrack) (periods, amplitudes []float64) {
	i := 0
	for i < len(track.Values) {
		if math.IsNaN(track.Values[i]) {
			i++
			continue
		}
		j := i
		for j < len(track.Values) && !math.IsNaN(track.Values[j]) {
			j++
		}
		runStart, runEnd := track.Times[i], track.Times[j-1]

		t := runStart
		for t < runEnd {
			f0 := dsp.LinearInterpAt(track.Times, track.Values, t)
			if math.IsNaN(f0) || f0 <= 0 {
				break
			}
			period := 1 / f0
			if t+period > runEnd {
				break
			}
			periods = append(periods, period)
			amplitudes = append(amplitudes, cyclePeak(pcm, t, t+period))
			t += period
		}
		i = j
	}
	return periods, amplitudes
}

func cyclePeak(pcm *audio.Buffer, startS, endS float64) float64 {
	start := int(startS * float64(pcm.SampleRate))
	end := int(endS * float64(pcm.SampleRate))
	if start < 0 {
		start = 0
	}
	if end > len(pcm.Samples) {
		end = len(pcm.Samples)
	}
	var peak float64
	for _, s := range pcm.Samples[start:end] {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// jitter returns the local (relative) and absolute mean period perturbation.
func jitter(periods []float64) (local, absolute *float64) {
	if len(periods) < 3 {
		return nil, nil
	}
	var diffSum, meanSum float64
	for i := 1; i < len(periods); i++ {
		diffSum += math.Abs(periods[i] - periods[i-1])
	}
	for _, p := range periods {
		meanSum += p
	}
	absJ := diffSum / float64(len(periods)-1)
	meanP := meanSum / float64(len(periods))
	if meanP == 0 {
		return nil, nil
	}
	relJ := absJ / meanP
	return &relJ, &absJ
}

// shimmer returns the local (relative) and dB mean amplitude perturbation.
func shimmer(amplitudes []float64) (local, db *float64) {
	if len(amplitudes) < 3 {
		return nil, nil
	}
	var diffSum, meanSum, dbSum float64
	n := 0
	for i := 1; i < len(amplitudes); i++ {
		diffSum += math.Abs(amplitudes[i] - amplitudes[i-1])
		if amplitudes[i] > 0 && amplitudes[i-1] > 0 {
			dbSum += math.Abs(20 * math.Log10(amplitudes[i]/amplitudes[i-1]))
			n++
		}
	}
	for _, a := range amplitudes {
		meanSum += a
	}
	meanA := meanSum / float64(len(amplitudes))
	if meanA == 0 || n == 0 {
		return nil, nil
	}
	relS := (diffSum / float64(len(amplitudes)-1)) / meanA
	dbS := dbSum / float64(n)
	return &relS, &dbS
}
