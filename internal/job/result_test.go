package job

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/dialectatlas/tonelab/internal/analysis"
)

func rampContour(f0, f1 float64, n int, stepS float64) *analysis.Contour {
	times := make([]float64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = float64(i) * stepS
		values[i] = f0 + (f1-f0)*float64(i)/float64(n-1)
	}
	return &analysis.Contour{Times: times, Series: map[string][]float64{"f0_hz": values}}
}

func testJob(mode analysis.Mode) *Job {
	return &Job{
		ID:        "job-1",
		UploadID:  "up-1",
		Mode:      mode,
		Modules:   []ModuleRequest{{Name: "pitch"}, {Name: "segments"}},
		Output:    DefaultOutputOptions(),
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
}

func TestBuildResultSingleModeUnit(t *testing.T) {
	j := testJob(analysis.ModeSingle)
	src := SourceInfo{DurationS: 1.0, SampleRate: 16000, Channels: 1}

	records := map[string]*analysis.Record{
		"pitch": {
			Summary:    map[string]any{"voiced_frames": 99},
			Contour:    rampContour(100, 200, 101, 0.01),
			SpeakerRef: &analysis.SpeakerRef{P5: 105, P50: 150, P95: 195},
			Params:     map[string]any{"f0_min": 75.0},
		},
		"segments": {
			Segments: []analysis.Segment{
				{Type: analysis.SegSilence, StartS: 0, EndS: 0.1, DurationS: 0.1},
				{Type: analysis.SegVoiced, StartS: 0.1, EndS: 0.9, DurationS: 0.8},
				{Type: analysis.SegRimeCore, StartS: 0.26, EndS: 0.74, DurationS: 0.48},
				{Type: analysis.SegSilence, StartS: 0.9, EndS: 1.0, DurationS: 0.1},
			},
		},
	}

	res := buildResult(j, src, records)

	if res.Schema != "tonelab-analysis" {
		t.Errorf("schema = %q", res.Schema)
	}
	if res.Meta.JobID != "job-1" || res.Meta.DurationS != 1.0 {
		t.Errorf("meta = %+v", res.Meta)
	}

	pitchSummary := res.Summary["pitch"].(map[string]any)
	if pitchSummary["speaker_ref"] == nil {
		t.Error("speaker_ref not folded into the pitch summary")
	}
	if pitchSummary["extraction_params"] == nil {
		t.Error("extraction_params not folded into the pitch summary")
	}

	// The rime core gets tone features from the pitch contour.
	core := res.Segments[2]
	if core.ToneFeatures == nil {
		t.Fatal("rime core has no tone features")
	}
	if core.ToneFeatures.F0Mean == nil {
		t.Error("rime core tone features undefined despite full voicing")
	}
	if res.Segments[1].ToneFeatures != nil {
		t.Error("voiced segment should not carry tone features")
	}

	if len(res.Units) != 1 {
		t.Fatalf("got %d units, want 1", len(res.Units))
	}
	u := res.Units[0]
	if u.StartS != 0 || u.EndS != 1.0 {
		t.Errorf("unit spans [%.2f, %.2f], want the whole recording", u.StartS, u.EndS)
	}
	if len(u.Segments) != 4 {
		t.Errorf("unit references %d segments, want all 4", len(u.Segments))
	}
	if u.ToneFeatures != core.ToneFeatures {
		t.Error("unit does not carry the rime core's tone features")
	}
}

func TestBuildResultContinuousUnits(t *testing.T) {
	j := testJob(analysis.ModeContinuous)
	src := SourceInfo{DurationS: 2.0, SampleRate: 16000, Channels: 1}

	records := map[string]*analysis.Record{
		"pitch": {Contour: rampContour(150, 150, 201, 0.01)},
		"segments": {
			Segments: []analysis.Segment{
				{Type: analysis.SegSpeech, StartS: 0.1, EndS: 0.9},
				{Type: analysis.SegSyllableLike, StartS: 0.15, EndS: 0.4},
				{Type: analysis.SegSyllableLike, StartS: 0.5, EndS: 0.8},
				{Type: analysis.SegSilence, StartS: 0.9, EndS: 2.0},
			},
		},
	}

	res := buildResult(j, src, records)
	if len(res.Units) != 2 {
		t.Fatalf("got %d units, want one per syllable_like", len(res.Units))
	}
	for i, u := range res.Units {
		if u.UnitID != i {
			t.Errorf("unit %d has id %d", i, u.UnitID)
		}
		if u.ToneFeatures == nil {
			t.Errorf("unit %d missing tone features", i)
		}
	}
	if res.Units[0].StartS != 0.15 || res.Units[1].StartS != 0.5 {
		t.Errorf("unit spans wrong: %+v", res.Units)
	}
}

func TestBuildTimeseriesNullsAndDownsample(t *testing.T) {
	nan := math.NaN()
	n := 101
	times := make([]float64, n)
	f0 := make([]float64, n)
	for i := range times {
		times[i] = float64(i) * 0.01
		if i%2 == 0 {
			f0[i] = 150
		} else {
			f0[i] = nan
		}
	}
	records := map[string]*analysis.Record{
		"pitch": {Contour: &analysis.Contour{Times: times, Series: map[string][]float64{"f0_hz": f0}}},
	}

	// Native grid is 100 Hz; a 50 Hz target halves it.
	ts := buildTimeseries(records, 50)
	if ts == nil {
		t.Fatal("no timeseries built")
	}
	if len(ts.Time) != 51 {
		t.Errorf("downsampled to %d points, want 51", len(ts.Time))
	}
	// Factor-2 thinning keeps the even (voiced) frames here.
	for i, p := range ts.PitchHz {
		if p == nil {
			t.Fatalf("point %d nil after thinning voiced frames", i)
		}
	}

	// At or below the target rate the grid is unchanged, with NaN as nil.
	ts = buildTimeseries(records, 100)
	if len(ts.Time) != n {
		t.Errorf("grid at target rate was thinned to %d", len(ts.Time))
	}
	if ts.PitchHz[0] == nil || ts.PitchHz[1] != nil {
		t.Error("NaN frames not mapped to nil")
	}

	// Zero disables thinning entirely.
	ts = buildTimeseries(records, 0)
	if len(ts.Time) != n {
		t.Errorf("zero target thinned the grid to %d", len(ts.Time))
	}
}

func TestResultJSONRoundtripsNulls(t *testing.T) {
	nan := math.NaN()
	records := map[string]*analysis.Record{
		"pitch": {Contour: &analysis.Contour{
			Times:  []float64{0, 0.01, 0.02},
			Series: map[string][]float64{"f0_hz": {120, nan, 130}},
		}},
	}
	j := testJob(analysis.ModeSingle)
	j.Output.DownsampleHz = 0
	res := buildResult(j, SourceInfo{DurationS: 0.03, SampleRate: 16000, Channels: 1}, records)

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("result with undefined frames failed to marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ts := decoded["timeseries"].(map[string]any)
	pitch := ts["pitch_hz"].([]any)
	if pitch[1] != nil {
		t.Errorf("unvoiced frame serialized as %v, want null", pitch[1])
	}
	if pitch[0] == nil {
		t.Error("voiced frame serialized as null")
	}
}

func TestProjectViews(t *testing.T) {
	res := &Result{
		Schema:     "tonelab-analysis",
		Summary:    map[string]any{"basic": map[string]any{}},
		Timeseries: &Timeseries{Time: []float64{0}},
	}

	full, err := res.Project(ViewFull)
	if err != nil {
		t.Fatalf("full: %v", err)
	}
	if full != res {
		t.Error("full view should return the result itself")
	}

	summary, err := res.Project(ViewSummary)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	m := summary.(map[string]any)
	if m["summary"] == nil {
		t.Error("summary view missing summary block")
	}
	if _, ok := m["timeseries"]; ok {
		t.Error("summary view leaked the timeseries")
	}

	tsView, err := res.Project(ViewTimeseries)
	if err != nil {
		t.Fatalf("timeseries: %v", err)
	}
	if tsView.(map[string]any)["timeseries"] == nil {
		t.Error("timeseries view missing timeseries block")
	}

	if _, err := res.Project(View("debug")); err == nil {
		t.Error("unknown view accepted")
	}
}
