package analysis

import (
	"context"
	"math"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/dsp"
)

// Pitch extraction defaults. The initial range is deliberately wide; the
// second phase narrows it around the recording's own register.
const (
	defaultF0Min = 75.0
	defaultF0Max = 600.0
	// absoluteF0Floor and absoluteF0Ceil bound the tuned range so a skewed
	// first pass cannot push the search into octave-error territory.
	absoluteF0Floor = 30.0
	absoluteF0Ceil  = 1000.0
	// tuneMinVoiced is the minimum number of voiced frames required before
	// the tuned second pass runs; below it the wide-range track stands.
	tuneMinVoiced = 10
)

// PitchModule extracts the F0 contour in two phases: a wide-range pass,
// then a re-extraction with the range tightened around the speaker's
// P5..P95 register. Unvoiced frames stay undefined in the output series;
// nothing is interpolated across gaps.
type PitchModule struct{}

func (*PitchModule) Name() string { return "pitch" }

func (*PitchModule) OptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: "f0_min", Default: defaultF0Min, Doc: "phase-1 lower F0 bound in Hz"},
		{Name: "f0_max", Default: defaultF0Max, Doc: "phase-1 upper F0 bound in Hz"},
		{Name: "time_step", Default: dsp.DefaultPitchStepS, Doc: "contour step in seconds"},
	}
}

func (*PitchModule) Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error) {
	f0Min := opts.Float("f0_min", defaultF0Min)
	f0Max := opts.Float("f0_max", defaultF0Max)
	step := opts.Float("time_step", dsp.DefaultPitchStepS)

	track := dsp.TrackF0(pcm.Samples, pcm.SampleRate, f0Min, f0Max, step)
	usedMin, usedMax := f0Min, f0Max

	if voiced := track.Voiced(); len(voiced) >= tuneMinVoiced {
		p5 := percentile(voiced, 5)
		p95 := percentile(voiced, 95)
		tunedMin := math.Max(absoluteF0Floor, p5*0.75)
		tunedMax := math.Min(absoluteF0Ceil, p95*1.25)
		if tunedMin < tunedMax {
			track = dsp.TrackF0(pcm.Samples, pcm.SampleRate, tunedMin, tunedMax, step)
			usedMin, usedMax = tunedMin, tunedMax
		}
	}

	voiced := track.Voiced()
	mean, min, max, std := summaryStats(voiced)
	voicedRatio := 0.0
	if len(track.Values) > 0 {
		voicedRatio = float64(len(voiced)) / float64(len(track.Values))
	}

	var ref *SpeakerRef
	if len(voiced) > 0 {
		ref = &SpeakerRef{
			P5:  percentile(voiced, 5),
			P50: percentile(voiced, 50),
			P95: percentile(voiced, 95),
		}
	}

	return &Record{
		Summary: map[string]any{
			"mean_f0":       mean,
			"min_f0":        min,
			"max_f0":        max,
			"std_f0":        std,
			"voiced_frames": len(voiced),
			"total_frames":  len(track.Values),
			"voiced_ratio":  voicedRatio,
		},
		Contour: &Contour{
			Times:  track.Times,
			Series: map[string][]float64{"f0_hz": track.Values},
		},
		SpeakerRef: ref,
		Params: map[string]any{
			"f0_min":    usedMin,
			"f0_max":    usedMax,
			"time_step": step,
		},
	}, nil
}
