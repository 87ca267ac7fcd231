package analysis

import (
	"context"
	"testing"

	"github.com/dialectatlas/tonelab/internal/errs"
)

func TestVoiceQualityInsufficientVoicing(t *testing.T) {
	pcm := silenceBuffer(t, 0.5)
	_, err := (&VoiceQualityModule{}).Analyze(context.Background(), pcm, nil, ModeSingle)
	if err == nil {
		t.Fatal("silence produced a voice quality estimate")
	}
	if !errs.Is(err, errs.InsufficientVoicedFrames) {
		t.Errorf("error code = %s, want %s", errs.CodeOf(err), errs.InsufficientVoicedFrames)
	}
	if e := errs.From(err); e.Detail["required"] == nil {
		t.Error("error detail missing the required frame count")
	}
}

func TestVoiceQualitySteadyTone(t *testing.T) {
	pcm := toneBuffer(t, 200, 1.0, 0.5)
	rec, err := (&VoiceQualityModule{}).Analyze(context.Background(), pcm, nil, ModeSingle)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	hnr, ok := rec.Summary["hnr"].(map[string]any)
	if !ok {
		t.Fatalf("hnr summary is %T", rec.Summary["hnr"])
	}
	mean := requireFloat(t, hnr, "mean_db")
	if mean < 5 {
		t.Errorf("hnr mean_db = %.1f for a near-pure tone, want clearly harmonic", mean)
	}

	jitter := rec.Summary["jitter"].(map[string]any)
	local := requireFloat(t, jitter, "local")
	if local < 0 || local > 0.05 {
		t.Errorf("jitter local = %.4f for a steady tone, want < 0.05", local)
	}

	shimmer := rec.Summary["shimmer"].(map[string]any)
	if floatField(t, shimmer, "local") == nil {
		t.Error("shimmer undefined for a steady tone")
	}
}

func TestVoiceQualityMinVoicedOption(t *testing.T) {
	// A short voiced stretch passes only when the requirement is lowered.
	pcm := toneBuffer(t, 200, 0.12, 0.5)

	if _, err := (&VoiceQualityModule{}).Analyze(context.Background(), pcm,
		Options{"min_voiced_frames": 50}, ModeSingle); !errs.Is(err, errs.InsufficientVoicedFrames) {
		t.Errorf("raised requirement not enforced, err = %v", err)
	}
	if _, err := (&VoiceQualityModule{}).Analyze(context.Background(), pcm,
		Options{"min_voiced_frames": 2}, ModeSingle); err != nil {
		t.Errorf("lowered requirement still failed: %v", err)
	}
}
