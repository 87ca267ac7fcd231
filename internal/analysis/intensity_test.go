package analysis

import (
	"context"
	"math"
	"testing"
)

func TestIntensityModuleTone(t *testing.T) {
	pcm := toneBuffer(t, 200, 1.0, 0.5)
	rec, err := (&IntensityModule{}).Analyze(context.Background(), pcm, nil, ModeSingle)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// 20*log10(0.354) + 91 is about 82 dB on the offset scale.
	mean := requireFloat(t, rec.Summary, "mean_db")
	if mean < 79 || mean > 85 {
		t.Errorf("mean_db = %.1f, want ~82", mean)
	}

	series := rec.Contour.Series["intensity_db"]
	if len(series) != len(rec.Contour.Times) {
		t.Fatal("series and time grid lengths differ")
	}
	for i, v := range series {
		if math.IsNaN(v) {
			t.Fatalf("frame %d undefined for a continuous tone", i)
		}
	}
}

func TestIntensityModuleFloorsToUndefined(t *testing.T) {
	pcm := syllableBuffer(t, 200, 0.3, 0.4, 0.3)
	rec, err := (&IntensityModule{}).Analyze(context.Background(), pcm, nil, ModeSingle)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	series := rec.Contour.Series["intensity_db"]
	sawUndefined, sawDefined := false, false
	for i, tm := range rec.Contour.Times {
		if tm > 0.05 && tm < 0.2 && math.IsNaN(series[i]) {
			sawUndefined = true
		}
		if tm > 0.45 && tm < 0.55 && !math.IsNaN(series[i]) {
			sawDefined = true
		}
	}
	if !sawUndefined {
		t.Error("silence frames were not floored to undefined")
	}
	if !sawDefined {
		t.Error("tone frames went undefined")
	}
	// Summary stats ignore the undefined frames.
	if rec.Summary["min_db"].(*float64) == nil {
		t.Error("min_db undefined despite voiced material")
	}
}

func TestIntensityModuleCustomStep(t *testing.T) {
	pcm := toneBuffer(t, 200, 1.0, 0.5)
	rec, err := (&IntensityModule{}).Analyze(context.Background(), pcm, Options{"time_step": 0.02}, ModeSingle)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(rec.Contour.Times) > 1 {
		step := rec.Contour.Times[1] - rec.Contour.Times[0]
		if math.Abs(step-0.02) > 1e-6 {
			t.Errorf("contour step = %.4f, want 0.02", step)
		}
	}
	if got := rec.Params["time_step"].(float64); got != 0.02 {
		t.Errorf("params time_step = %v, want 0.02", got)
	}
}
