package analysis

import (
	"math"
	"testing"
)

// rampSeries builds a fully voiced F0 ramp from f0 to f1 Hz over [0, durS]
// sampled every stepS.
func rampSeries(f0, f1, durS, stepS float64) (times, values []float64) {
	n := int(durS/stepS) + 1
	times = make([]float64, n)
	values = make([]float64, n)
	for i := 0; i < n; i++ {
		t := float64(i) * stepS
		times[i] = t
		values[i] = f0 + (f1-f0)*t/durS
	}
	return times, values
}

func TestExtractToneFeaturesLinearRamp(t *testing.T) {
	times, values := rampSeries(100, 200, 1.0, 0.01)
	ft := ExtractToneFeatures(times, values, 0, 1.0)

	want := []float64{100, 125, 150, 175, 200}
	if len(ft.Contour5Pt) != len(want) {
		t.Fatalf("contour has %d points, want %d", len(ft.Contour5Pt), len(want))
	}
	for i, w := range want {
		if math.Abs(ft.Contour5Pt[i]-w) > 1e-6 {
			t.Errorf("contour[%d] = %.4f, want %.1f", i, ft.Contour5Pt[i], w)
		}
	}

	if *ft.F0Start != 100 || *ft.F0End != 200 {
		t.Errorf("start/end = %.1f/%.1f, want 100/200", *ft.F0Start, *ft.F0End)
	}
	if *ft.F0Min != 100 || *ft.F0Max != 200 || *ft.F0Range != 100 {
		t.Errorf("min/max/range = %.1f/%.1f/%.1f", *ft.F0Min, *ft.F0Max, *ft.F0Range)
	}
	if math.Abs(*ft.F0Mean-150) > 0.5 {
		t.Errorf("mean = %.2f, want ~150", *ft.F0Mean)
	}
	if math.Abs(*ft.F0Slope-100) > 1e-6 {
		t.Errorf("slope = %.4f Hz/s, want 100", *ft.F0Slope)
	}
	if *ft.VoicedRatio != 1 {
		t.Errorf("voiced ratio = %.2f, want 1", *ft.VoicedRatio)
	}
}

func TestExtractToneFeaturesDeterministic(t *testing.T) {
	times, values := rampSeries(120, 180, 0.8, 0.01)
	a := ExtractToneFeatures(times, values, 0.1, 0.7)
	b := ExtractToneFeatures(times, values, 0.1, 0.7)

	for i := range a.Contour5Pt {
		if a.Contour5Pt[i] != b.Contour5Pt[i] {
			t.Fatalf("contour differs between identical runs at %d", i)
		}
	}
	if *a.F0Slope != *b.F0Slope || *a.F0Mean != *b.F0Mean {
		t.Error("summary features differ between identical runs")
	}
}

func TestExtractToneFeaturesTooFewVoiced(t *testing.T) {
	nan := math.NaN()
	times := []float64{0, 0.01, 0.02, 0.03}
	values := []float64{nan, 150, nan, nan}

	ft := ExtractToneFeatures(times, values, 0, 0.03)
	if ft == nil {
		t.Fatal("features should be non-nil with nil fields")
	}
	if ft.F0Start != nil || ft.F0Mean != nil || ft.F0Slope != nil || ft.VoicedRatio != nil {
		t.Error("features defined with fewer than two voiced frames")
	}
	if ft.Contour5Pt != nil {
		t.Error("contour defined with fewer than two voiced frames")
	}
}

func TestExtractToneFeaturesIgnoresOutsideFrames(t *testing.T) {
	times := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5}
	values := []float64{500, 100, 110, 120, 500, 500}

	ft := ExtractToneFeatures(times, values, 0.1, 0.3)
	if *ft.F0Max > 120 {
		t.Errorf("max %.1f pulled from outside the segment", *ft.F0Max)
	}
	if *ft.F0Min < 100 {
		t.Errorf("min %.1f pulled from outside the segment", *ft.F0Min)
	}
}

func TestExtractToneFeaturesClampsToVoicedEnds(t *testing.T) {
	nan := math.NaN()
	// Voiced only in the middle; the contour endpoints must clamp to the
	// first and last voiced values instead of going undefined.
	times := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	values := []float64{nan, nan, 140, 150, 160, nan, nan}

	ft := ExtractToneFeatures(times, values, 0, 0.6)
	if ft.Contour5Pt == nil {
		t.Fatal("contour undefined despite three voiced frames")
	}
	if ft.Contour5Pt[0] != 140 {
		t.Errorf("contour[0] = %.1f, want clamp to 140", ft.Contour5Pt[0])
	}
	if ft.Contour5Pt[4] != 160 {
		t.Errorf("contour[4] = %.1f, want clamp to 160", ft.Contour5Pt[4])
	}
}
