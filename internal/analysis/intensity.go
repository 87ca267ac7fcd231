package analysis

import (
	"context"
	"math"

	"github.com/dialectatlas/tonelab/internal/audio"
)

// IntensityModule extracts the frame intensity contour in dB. Frames below
// the minimum-intensity floor are reported as undefined rather than as
// arbitrarily large negative numbers.
type IntensityModule struct{}

func (*IntensityModule) Name() string { return "intensity" }

func (*IntensityModule) OptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: "min_intensity_db", Default: minIntensityDB, Doc: "frames below this floor become null"},
		{Name: "time_step", Default: defaultStepS, Doc: "contour step in seconds"},
	}
}

func (*IntensityModule) Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error) {
	floor := opts.Float("min_intensity_db", minIntensityDB)
	step := opts.Float("time_step", defaultStepS)

	times, raw := intensityContour(pcm, step)
	values := make([]float64, len(raw))
	for i, v := range raw {
		if v < floor {
			values[i] = math.NaN()
		} else {
			values[i] = v
		}
	}

	mean, min, max, std := summaryStats(finite(values))
	return &Record{
		Summary: map[string]any{
			"mean_db": mean,
			"min_db":  min,
			"max_db":  max,
			"std_db":  std,
		},
		Contour: &Contour{
			Times:  times,
			Series: map[string][]float64{"intensity_db": values},
		},
		Params: map[string]any{
			"min_intensity_db": floor,
			"time_step":        step,
		},
	}, nil
}
