package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/dsp"
)

const (
	defaultMaxFormants    = 5
	defaultMaxFormantHz   = 5500.0
	defaultFormantWindowS = 0.025
	defaultFormantStepS   = 0.01
	defaultPreEmphasisHz  = 50.0
	// formantMedianKernel is the median filter length applied per
	// contiguous voiced run.
	formantMedianKernel = 5
)

// FormantModule estimates F1..F5 center frequencies and bandwidths by
// linear prediction. Frames that are silent or unvoiced yield undefined
// values, and each contour is median-filtered within contiguous voiced
// runs to suppress single-frame pole jumps. Robustness is preferred over
// completeness here: a frame with a dubious pole set reports nothing.
type FormantModule struct{}

func (*FormantModule) Name() string { return "formant" }

func (*FormantModule) OptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: "max_formants", Default: defaultMaxFormants, Doc: "number of formants to report"},
		{Name: "max_freq_hz", Default: defaultMaxFormantHz, Doc: "formant search ceiling in Hz"},
		{Name: "window_length", Default: defaultFormantWindowS, Doc: "analysis window in seconds"},
		{Name: "time_step", Default: defaultFormantStepS, Doc: "contour step in seconds"},
		{Name: "pre_emphasis_from", Default: defaultPreEmphasisHz, Doc: "pre-emphasis cutoff in Hz"},
	}
}

func (*FormantModule) Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error) {
	maxFormants := opts.Int("max_formants", defaultMaxFormants)
	maxFreq := opts.Float("max_freq_hz", defaultMaxFormantHz)
	windowS := opts.Float("window_length", defaultFormantWindowS)
	step := opts.Float("time_step", defaultFormantStepS)
	preEmph := opts.Float("pre_emphasis_from", defaultPreEmphasisHz)
	if maxFormants < 1 {
		maxFormants = 1
	}

	emphasized := dsp.PreEmphasis(pcm.Samples, pcm.SampleRate, preEmph)
	frames := dsp.Frames(emphasized, pcm.SampleRate, windowS, step)

	// Voicing gate from the pitch track on the default wide range. A frame
	// with no pitch has no vocal tract resonances worth reporting.
	track := dsp.TrackF0(pcm.Samples, pcm.SampleRate, defaultF0Min, defaultF0Max, step)

	order := 2*maxFormants + 2
	times := make([]float64, len(frames))
	contours := make([][]float64, maxFormants)
	bandwidths := make([][]float64, maxFormants)
	for f := range contours {
		contours[f] = make([]float64, len(frames))
		bandwidths[f] = make([]float64, len(frames))
	}

	window := dsp.Hann(0)
	buf := make([]float64, 0)
	for i, fr := range frames {
		times[i] = fr.Time
		for f := range contours {
			contours[f][i] = math.NaN()
			bandwidths[f][i] = math.NaN()
		}

		if idx := nearestIndex(track.Times, fr.Time); len(track.Times) == 0 || math.IsNaN(track.Values[idx]) {
			continue
		}

		if len(window) != len(fr.Samples) {
			window = dsp.Hann(len(fr.Samples))
			buf = make([]float64, len(fr.Samples))
		}
		for j, s := range fr.Samples {
			buf[j] = s * window[j]
		}

		lpc := dsp.BurgLPC(buf, order)
		if lpc == nil {
			continue
		}
		resonances := dsp.Resonances(lpc, pcm.SampleRate, 50, maxFreq)
		for f := 0; f < maxFormants && f < len(resonances); f++ {
			contours[f][i] = resonances[f].FrequencyHz
			bandwidths[f][i] = resonances[f].BandwidthHz
		}
	}

	series := make(map[string][]float64, 2*maxFormants)
	summary := make(map[string]any, maxFormants)
	for f := 0; f < maxFormants; f++ {
		key := fmt.Sprintf("f%d", f+1)
		smoothed := dsp.MedianFilterRuns(contours[f], formantMedianKernel)
		series[key] = smoothed
		bw := dsp.MedianFilterRuns(bandwidths[f], formantMedianKernel)
		series[fmt.Sprintf("b%d", f+1)] = bw

		mean, min, max, std := summaryStats(finite(smoothed))
		bwMean, _, _, _ := summaryStats(finite(bw))
		summary[key] = map[string]any{
			"mean_hz":           mean,
			"min_hz":            min,
			"max_hz":            max,
			"std_hz":            std,
			"bandwidth_mean_hz": bwMean,
		}
	}

	return &Record{
		Summary: summary,
		Contour: &Contour{Times: times, Series: series},
		Params: map[string]any{
			"max_formants":      maxFormants,
			"max_freq_hz":       maxFreq,
			"window_length":     windowS,
			"time_step":         step,
			"pre_emphasis_from": preEmph,
		},
	}, nil
}
