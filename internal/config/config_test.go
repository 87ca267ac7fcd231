package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tonelab.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir not resolved")
	}
	if cfg.Limits.MaxUploadBytes != 50<<20 {
		t.Errorf("max_upload_bytes = %d", cfg.Limits.MaxUploadBytes)
	}
	if cfg.Analysis.SampleRate != 16000 {
		t.Errorf("sample_rate = %d", cfg.Analysis.SampleRate)
	}
	if !cfg.Retention.Enabled || cfg.Retention.MaxAge != time.Hour {
		t.Errorf("retention = %+v", cfg.Retention)
	}
}

func TestLoadOverlay(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/tonelab-test
limits:
  max_duration_single_s: 5
workers:
  count: 8
retention:
  enabled: false
  max_age: 48h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/tonelab-test" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Limits.MaxDurationSingleS != 5 {
		t.Errorf("max_duration_single_s = %v", cfg.Limits.MaxDurationSingleS)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Limits.MaxDurationContinuousS != 120 {
		t.Errorf("max_duration_continuous_s = %v", cfg.Limits.MaxDurationContinuousS)
	}
	if cfg.Workers.Count != 8 || cfg.Workers.QueueDepth != 64 {
		t.Errorf("workers = %+v", cfg.Workers)
	}
	if cfg.Retention.Enabled || cfg.Retention.MaxAge != 48*time.Hour {
		t.Errorf("retention = %+v", cfg.Retention)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative_upload_limit", "limits:\n  max_upload_bytes: -1\n"},
		{"zero_duration", "limits:\n  max_duration_single_s: 0\n"},
		{"zero_workers", "workers:\n  count: 0\n"},
		{"inverted_syllable_bounds", "analysis:\n  syllable_min_duration_s: 0.6\n"},
		{"unparseable", "limits: [not, a, mapping\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestMaxDuration(t *testing.T) {
	cfg := Default()
	if got := cfg.MaxDuration("single"); got != 20 {
		t.Errorf("single = %v", got)
	}
	if got := cfg.MaxDuration("continuous"); got != 120 {
		t.Errorf("continuous = %v", got)
	}
}
