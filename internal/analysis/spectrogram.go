package analysis

import (
	"context"
	"math"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/dsp"
)

const (
	defaultSpecWindowS  = 0.005
	defaultSpecStepS    = 0.002
	defaultSpecFreqStep = 20.0
	defaultSpecMaxFreq  = 8000.0
	// specFloorDB marks empty bins.
	specFloorDB = -100.0
)

// SpectrogramModule produces a coarse time-frequency energy map for
// display. Energy per bin comes from the windowed DFT evaluated on the
// requested frequency grid; with the short default window this is a
// wideband spectrogram.
type SpectrogramModule struct{}

func (*SpectrogramModule) Name() string { return "spectrogram" }

func (*SpectrogramModule) OptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: "window_length", Default: defaultSpecWindowS, Doc: "analysis window in seconds"},
		{Name: "time_step", Default: defaultSpecStepS, Doc: "frame step in seconds"},
		{Name: "frequency_step", Default: defaultSpecFreqStep, Doc: "frequency grid step in Hz"},
		{Name: "max_frequency", Default: defaultSpecMaxFreq, Doc: "frequency ceiling in Hz"},
	}
}

func (*SpectrogramModule) Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error) {
	windowS := opts.Float("window_length", defaultSpecWindowS)
	step := opts.Float("time_step", defaultSpecStepS)
	freqStep := opts.Float("frequency_step", defaultSpecFreqStep)
	maxFreq := opts.Float("max_frequency", defaultSpecMaxFreq)
	if nyquist := float64(pcm.SampleRate) / 2; maxFreq > nyquist {
		maxFreq = nyquist
	}

	frames := dsp.Frames(pcm.Samples, pcm.SampleRate, windowS, step)
	var freqs []float64
	for f := freqStep; f < maxFreq; f += freqStep {
		freqs = append(freqs, f)
	}

	times := make([]float64, len(frames))
	energy := make([][]float64, len(frames))
	window := dsp.Hann(0)
	for i, fr := range frames {
		times[i] = fr.Time
		if len(window) != len(fr.Samples) {
			window = dsp.Hann(len(fr.Samples))
		}
		row := make([]float64, len(freqs))
		for k, f := range freqs {
			row[k] = binEnergyDB(fr.Samples, window, pcm.SampleRate, f)
		}
		energy[i] = row
	}

	var flat []float64
	for _, row := range energy {
		for _, v := range row {
			if v > specFloorDB {
				flat = append(flat, v)
			}
		}
	}
	mean, min, max, std := summaryStats(flat)

	return &Record{
		Summary: map[string]any{
			"mean_db": mean,
			"min_db":  min,
			"max_db":  max,
			"std_db":  std,
		},
		Spectrogram: &Spectrogram{Times: times, Frequencies: freqs, EnergyDB: energy},
		Params: map[string]any{
			"window_length":  windowS,
			"time_step":      step,
			"frequency_step": freqStep,
			"max_frequency":  maxFreq,
		},
	}, nil
}

// binEnergyDB evaluates the windowed DFT at one frequency and returns the
// power in dB, floored at specFloorDB.
func binEnergyDB(samples, window []float64, rate int, freq float64) float64 {
	var re, im float64
	w := 2 * math.Pi * freq / float64(rate)
	for i, s := range samples {
		x := s * window[i]
		re += x * math.Cos(w*float64(i))
		im -= x * math.Sin(w*float64(i))
	}
	n := float64(len(samples))
	power := (re*re + im*im) / (n * n)
	if power <= 0 {
		return specFloorDB
	}
	db := 10 * math.Log10(power)
	if db < specFloorDB {
		return specFloorDB
	}
	return db
}
