package analysis

import (
	"context"
	"math"

	"github.com/dialectatlas/tonelab/internal/audio"
)

// BasicModule reports duration, level and silence ratio.
type BasicModule struct{}

func (*BasicModule) Name() string { return "basic" }

func (*BasicModule) OptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: "silence_threshold_db", Default: silenceThresholdDB, Doc: "frames below this intensity count as silence"},
	}
}

func (*BasicModule) Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error) {
	threshold := opts.Float("silence_threshold_db", silenceThresholdDB)

	rms := pcm.RMS()
	peak := pcm.Peak()
	rmsDB := 20 * math.Log10(rms+1e-10)
	peakDB := 20 * math.Log10(peak+1e-10)

	_, values := intensityContour(pcm, defaultStepS)
	silent := 0
	for _, v := range values {
		if v < threshold {
			silent++
		}
	}
	silenceRatio := 0.0
	if len(values) > 0 {
		silenceRatio = float64(silent) / float64(len(values))
	}

	return &Record{
		Summary: map[string]any{
			"duration_s":    pcm.Duration(),
			"rms_db":        rmsDB,
			"peak_db":       peakDB,
			"silence_ratio": silenceRatio,
			"sample_rate":   pcm.SampleRate,
			"n_samples":     len(pcm.Samples),
		},
	}, nil
}
