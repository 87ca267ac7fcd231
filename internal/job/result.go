package job

import (
	"math"
	"time"

	"github.com/dialectatlas/tonelab/internal/analysis"
	"github.com/dialectatlas/tonelab/internal/errs"
)

// View selects a projection of the persisted result.
type View string

const (
	ViewFull       View = "full"
	ViewSummary    View = "summary"
	ViewTimeseries View = "timeseries"
)

// ValidView reports whether s names a supported projection.
func ValidView(s string) bool {
	switch View(s) {
	case ViewFull, ViewSummary, ViewTimeseries:
		return true
	}
	return false
}

// resultSchema identifies the result document layout.
const resultSchema = "tonelab-analysis"

// Meta describes the job and source audio a result was computed from.
type Meta struct {
	JobID      string    `json:"job_id" msgpack:"job_id"`
	UploadID   string    `json:"upload_id" msgpack:"upload_id"`
	Mode       string    `json:"mode" msgpack:"mode"`
	Modules    []string  `json:"modules" msgpack:"modules"`
	CreatedAt  time.Time `json:"created_at" msgpack:"created_at"`
	DurationS  float64   `json:"duration_s" msgpack:"duration_s"`
	SampleRate int       `json:"sample_rate" msgpack:"sample_rate"`
	Channels   int       `json:"channels" msgpack:"channels"`
}

// Timeseries is the uniform time grid block. Undefined frames are nil.
type Timeseries struct {
	Time        []float64             `json:"time" msgpack:"time"`
	PitchHz     []*float64            `json:"pitch_hz,omitempty" msgpack:"pitch_hz,omitempty"`
	IntensityDB []*float64            `json:"intensity_db,omitempty" msgpack:"intensity_db,omitempty"`
	Formants    map[string][]*float64 `json:"formants,omitempty" msgpack:"formants,omitempty"`
}

// Unit is an aggregated analysis unit: the whole syllable in single mode,
// one syllable_like span per unit in continuous mode.
type Unit struct {
	UnitID       int                    `json:"unit_id" msgpack:"unit_id"`
	StartS       float64                `json:"start_s" msgpack:"start_s"`
	EndS         float64                `json:"end_s" msgpack:"end_s"`
	Segments     []int                  `json:"segments" msgpack:"segments"`
	ToneFeatures *analysis.ToneFeatures `json:"tone_features,omitempty" msgpack:"tone_features,omitempty"`
}

// Result is the complete persisted analysis document.
type Result struct {
	Schema      string                `json:"schema" msgpack:"schema"`
	Meta        Meta                  `json:"meta" msgpack:"meta"`
	Summary     map[string]any        `json:"summary" msgpack:"summary"`
	Timeseries  *Timeseries           `json:"timeseries,omitempty" msgpack:"timeseries,omitempty"`
	Spectrogram *analysis.Spectrogram `json:"spectrogram,omitempty" msgpack:"spectrogram,omitempty"`
	Segments    []analysis.Segment    `json:"segments" msgpack:"segments"`
	Units       []Unit                `json:"units" msgpack:"units"`
}

// Project returns the view of the result named by v. Projections reuse
// the stored data; nothing is recomputed.
func (r *Result) Project(v View) (any, error) {
	switch v {
	case ViewFull:
		return r, nil
	case ViewSummary:
		return map[string]any{
			"schema":  r.Schema,
			"meta":    r.Meta,
			"summary": r.Summary,
		}, nil
	case ViewTimeseries:
		return map[string]any{
			"schema":     r.Schema,
			"meta":       r.Meta,
			"timeseries": r.Timeseries,
		}, nil
	}
	return nil, errs.Newf(errs.UnsupportedOption, "unknown result view %q", v)
}

// SourceInfo carries the upload metadata echoed into result meta.
type SourceInfo struct {
	DurationS  float64
	SampleRate int
	Channels   int
}

// buildResult assembles the result document from the per-module records.
// Tone features join the pitch contour with the detected segments here,
// after both producing modules have fully completed.
func buildResult(j *Job, src SourceInfo, records map[string]*analysis.Record) *Result {
	res := &Result{
		Schema: resultSchema,
		Meta: Meta{
			JobID:      j.ID,
			UploadID:   j.UploadID,
			Mode:       string(j.Mode),
			Modules:    j.ModuleNames(),
			CreatedAt:  j.CreatedAt,
			DurationS:  src.DurationS,
			SampleRate: src.SampleRate,
			Channels:   src.Channels,
		},
		Summary: make(map[string]any, len(records)),
	}

	for name, rec := range records {
		summary := rec.Summary
		if summary == nil {
			summary = map[string]any{}
		}
		if rec.SpeakerRef != nil {
			summary["speaker_ref"] = rec.SpeakerRef
		}
		if rec.Params != nil {
			summary["extraction_params"] = rec.Params
		}
		res.Summary[name] = summary
	}

	if spec, ok := records["spectrogram"]; ok {
		res.Spectrogram = spec.Spectrogram
	}

	if segRec, ok := records["segments"]; ok {
		res.Segments = segRec.Segments
		if pitchRec, ok := records["pitch"]; ok && pitchRec.Contour != nil {
			attachToneFeatures(res.Segments, pitchRec.Contour)
		}
		res.Units = buildUnits(res.Segments, j.Mode)
	}

	if j.Output.IncludeTimeseries {
		res.Timeseries = buildTimeseries(records, j.Output.DownsampleHz)
	}
	return res
}

// attachToneFeatures computes tone features for each measurable segment
// from the final pitch contour.
func attachToneFeatures(segments []analysis.Segment, pitch *analysis.Contour) {
	f0 := pitch.Series["f0_hz"]
	if f0 == nil {
		return
	}
	for i := range segments {
		switch segments[i].Type {
		case analysis.SegRimeCore, analysis.SegSyllableLike:
			segments[i].ToneFeatures = analysis.ExtractToneFeatures(
				pitch.Times, f0, segments[i].StartS, segments[i].EndS)
		}
	}
}

// buildUnits aggregates segments into units: single mode yields one unit
// spanning everything and carrying the rime core's tone features,
// continuous mode yields one unit per syllable_like segment.
func buildUnits(segments []analysis.Segment, mode analysis.Mode) []Unit {
	if len(segments) == 0 {
		return nil
	}

	if mode == analysis.ModeSingle {
		start, end := segments[0].StartS, segments[0].EndS
		indices := make([]int, len(segments))
		var tone *analysis.ToneFeatures
		for i, s := range segments {
			indices[i] = i
			if s.StartS < start {
				start = s.StartS
			}
			if s.EndS > end {
				end = s.EndS
			}
			if s.Type == analysis.SegRimeCore && tone == nil {
				tone = s.ToneFeatures
			}
		}
		return []Unit{{UnitID: 0, StartS: start, EndS: end, Segments: indices, ToneFeatures: tone}}
	}

	var units []Unit
	for i, s := range segments {
		if s.Type != analysis.SegSyllableLike {
			continue
		}
		units = append(units, Unit{
			UnitID:       len(units),
			StartS:       s.StartS,
			EndS:         s.EndS,
			Segments:     []int{i},
			ToneFeatures: s.ToneFeatures,
		})
	}
	return units
}

// buildTimeseries merges the pitch, intensity and formant contours onto
// one grid and optionally thins it. The modules share a frame step, so
// the first contour present defines the grid.
func buildTimeseries(records map[string]*analysis.Record, downsampleHz float64) *Timeseries {
	ts := &Timeseries{}

	if rec, ok := records["pitch"]; ok && rec.Contour != nil {
		ts.Time = rec.Contour.Times
		ts.PitchHz = nullable(rec.Contour.Series["f0_hz"])
	}
	if rec, ok := records["intensity"]; ok && rec.Contour != nil {
		if ts.Time == nil {
			ts.Time = rec.Contour.Times
		}
		ts.IntensityDB = nullable(rec.Contour.Series["intensity_db"])
	}
	if rec, ok := records["formant"]; ok && rec.Contour != nil {
		if ts.Time == nil {
			ts.Time = rec.Contour.Times
		}
		ts.Formants = make(map[string][]*float64, len(rec.Contour.Series))
		for key, vs := range rec.Contour.Series {
			ts.Formants[key] = nullable(vs)
		}
	}

	if ts.Time == nil {
		return nil
	}
	return downsample(ts, downsampleHz)
}

// nullable converts a NaN-marked series to the wire form with nils.
func nullable(values []float64) []*float64 {
	if values == nil {
		return nil
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		vv := v
		out[i] = &vv
	}
	return out
}

// downsample thins every series by an integer factor so the grid rate
// drops to at most targetHz. A grid already at or below the target is
// returned unchanged.
func downsample(ts *Timeseries, targetHz float64) *Timeseries {
	if targetHz <= 0 || len(ts.Time) < 2 {
		return ts
	}
	dt := (ts.Time[len(ts.Time)-1] - ts.Time[0]) / float64(len(ts.Time)-1)
	if dt <= 0 {
		return ts
	}
	factor := int(1 / (dt * targetHz))
	if factor < 2 {
		return ts
	}

	thin := func(vs []float64) []float64 {
		if vs == nil {
			return nil
		}
		out := make([]float64, 0, len(vs)/factor+1)
		for i := 0; i < len(vs); i += factor {
			out = append(out, vs[i])
		}
		return out
	}
	thinP := func(vs []*float64) []*float64 {
		if vs == nil {
			return nil
		}
		out := make([]*float64, 0, len(vs)/factor+1)
		for i := 0; i < len(vs); i += factor {
			out = append(out, vs[i])
		}
		return out
	}

	down := &Timeseries{
		Time:        thin(ts.Time),
		PitchHz:     thinP(ts.PitchHz),
		IntensityDB: thinP(ts.IntensityDB),
	}
	if ts.Formants != nil {
		down.Formants = make(map[string][]*float64, len(ts.Formants))
		for key, vs := range ts.Formants {
			down.Formants[key] = thinP(vs)
		}
	}
	return down
}
