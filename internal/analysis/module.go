// Package analysis implements the acoustic analysis modules and the tone
// feature extractor. Modules are independent units registered by name; the
// job executor selects and orders them per request. Each consumes canonical
// mono PCM and yields a typed record. Modules never interpolate across
// unvoiced gaps: undefined frames stay NaN internally and null on the wire.
package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/dialectatlas/tonelab/internal/audio"
)

// Mode selects the segmentation strategy and duration limits.
type Mode string

const (
	// ModeSingle analyzes one isolated syllable.
	ModeSingle Mode = "single"
	// ModeContinuous analyzes connected speech.
	ModeContinuous Mode = "continuous"
)

// ValidMode reports whether s names a supported mode.
func ValidMode(s string) bool {
	return Mode(s) == ModeSingle || Mode(s) == ModeContinuous
}

// Options carries per-module options from the job request. Values are
// whatever the request decoder produced; modules read them through the
// typed accessors below and fall back to their defaults.
type Options map[string]any

// Float reads a numeric option, accepting the numeric types a decoded
// request may carry.
func (o Options) Float(key string, def float64) float64 {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return def
}

// Int reads an integer option.
func (o Options) Int(key string, def int) int {
	return int(o.Float(key, float64(def)))
}

// OptionSpec describes one option for the capabilities query.
type OptionSpec struct {
	Name    string  `json:"name"`
	Default float64 `json:"default"`
	// Doc is a one-line description for clients.
	Doc string `json:"doc,omitempty"`
}

// Module is one analysis unit.
type Module interface {
	// Name is the stable module name used in job requests.
	Name() string
	// OptionSpecs lists the options the module understands.
	OptionSpecs() []OptionSpec
	// Analyze runs the module over the full normalized recording.
	Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error)
}

// Record is the output of one module run. Only the fields relevant to the
// module are populated.
type Record struct {
	// Summary holds the module's scalar statistics, keyed as they appear
	// in the result document. Values may be nil where undefined.
	Summary map[string]any
	// Contour holds sampled time series (NaN where undefined).
	Contour *Contour
	// Segments is populated by the segmentation module only.
	Segments []Segment
	// SpeakerRef is populated by the pitch module only.
	SpeakerRef *SpeakerRef
	// Params echoes the effective extraction parameters.
	Params map[string]any
	// Spectrogram is populated by the spectrogram module only.
	Spectrogram *Spectrogram
}

// Contour is a set of series sampled on one time grid.
type Contour struct {
	Times  []float64
	Series map[string][]float64
}

// SpeakerRef holds the speaker reference percentiles derived from voiced
// F0 frames, used to situate tone contours in the speaker's register.
type SpeakerRef struct {
	P5  float64 `json:"p5" msgpack:"p5"`
	P50 float64 `json:"p50" msgpack:"p50"`
	P95 float64 `json:"p95" msgpack:"p95"`
}

// Spectrogram is a coarse energy map for display purposes.
type Spectrogram struct {
	Times       []float64   `json:"time" msgpack:"time"`
	Frequencies []float64   `json:"frequency" msgpack:"frequency"`
	EnergyDB    [][]float64 `json:"energy_db" msgpack:"energy_db"`
}

// SegmentType tags a detected segment.
type SegmentType string

const (
	SegSilence      SegmentType = "silence"
	SegVoiced       SegmentType = "voiced"
	SegRimeCore     SegmentType = "rime_core"
	SegSpeech       SegmentType = "speech"
	SegSyllableLike SegmentType = "syllable_like"
)

// Segment is one detected region of the recording.
type Segment struct {
	Type         SegmentType   `json:"type" msgpack:"type"`
	StartS       float64       `json:"start_s" msgpack:"start_s"`
	EndS         float64       `json:"end_s" msgpack:"end_s"`
	DurationS    float64       `json:"duration_s" msgpack:"duration_s"`
	ToneFeatures *ToneFeatures `json:"tone_features,omitempty" msgpack:"tone_features,omitempty"`
}

// Registry maps module names to implementations. It is built once at
// process start and passed to the executor; there is no global state.
type Registry struct {
	modules map[string]Module
}

// SegmentationTuning carries the configurable segmentation parameters the
// registry seeds into the segments module.
type SegmentationTuning struct {
	SyllableMinDurationS float64
	SyllableMaxDurationS float64
}

// NewRegistry builds the full module set.
func NewRegistry(tuning SegmentationTuning) *Registry {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range []Module{
		&BasicModule{},
		&PitchModule{},
		&IntensityModule{},
		&FormantModule{},
		&VoiceQualityModule{},
		&SegmentsModule{tuning: tuning},
		&SpectrogramModule{},
	} {
		r.Register(m)
	}
	return r
}

// Register adds a module under its name, replacing any previous entry.
func (r *Registry) Register(m Module) {
	r.modules[m.Name()] = m
}

// Get returns the named module.
func (r *Registry) Get(name string) (Module, error) {
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("analysis: unknown module %q", name)
	}
	return m, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.modules[name]
	return ok
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OptionSchemas returns the option specs for every module, keyed by module
// name, for the capabilities query.
func (r *Registry) OptionSchemas() map[string][]OptionSpec {
	out := make(map[string][]OptionSpec, len(r.modules))
	for name, m := range r.modules {
		out[name] = m.OptionSpecs()
	}
	return out
}
