// Package config loads the tonelab service configuration from YAML with
// sensible defaults for every field, so an empty file (or no file) yields a
// working local setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds the full service configuration.
type Config struct {
	// DataDir is the root directory for audio artifacts and the metadata
	// store. Defaults to ~/.local/share/tonelab (or the OS equivalent).
	DataDir string `yaml:"data_dir"`

	Limits    Limits    `yaml:"limits"`
	Analysis  Analysis  `yaml:"analysis"`
	Workers   Workers   `yaml:"workers"`
	Retention Retention `yaml:"retention"`
}

// Limits bounds what the upload surface accepts.
type Limits struct {
	// MaxUploadBytes is the maximum accepted upload size.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// MaxDurationSingleS is the maximum audio duration for single mode.
	MaxDurationSingleS float64 `yaml:"max_duration_single_s"`
	// MaxDurationContinuousS is the maximum audio duration for continuous
	// mode. Continuous recordings run longer than isolated syllables.
	MaxDurationContinuousS float64 `yaml:"max_duration_continuous_s"`
}

// Analysis holds normalization targets and segmentation tuning.
type Analysis struct {
	// SampleRate is the normalized PCM sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`
	// SyllableMinDurationS is the minimum-duration floor for syllable-like
	// units in continuous mode. Kept configurable: the right floor depends
	// on speech rate and no single default suits all material.
	SyllableMinDurationS float64 `yaml:"syllable_min_duration_s"`
	// SyllableMaxDurationS is the corresponding ceiling.
	SyllableMaxDurationS float64 `yaml:"syllable_max_duration_s"`
}

// Workers configures the background job pool.
type Workers struct {
	// Count is the number of concurrent job workers.
	Count int `yaml:"count"`
	// QueueDepth is the submission queue capacity.
	QueueDepth int `yaml:"queue_depth"`
}

// Retention configures the periodic sweeper.
type Retention struct {
	// Enabled turns the sweeper on.
	Enabled bool `yaml:"enabled"`
	// MaxAge is how old an upload must be before it is reclaimed.
	MaxAge time.Duration `yaml:"max_age"`
	// Interval is how often the sweeper runs.
	Interval time.Duration `yaml:"interval"`
}

// SupportedFormats lists the container formats the decode service accepts.
var SupportedFormats = []string{"wav", "mp3", "m4a", "webm", "ogg", "flac", "aac"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Limits: Limits{
			MaxUploadBytes:         50 << 20, // 50 MB
			MaxDurationSingleS:     20,
			MaxDurationContinuousS: 120,
		},
		Analysis: Analysis{
			SampleRate:           16000,
			SyllableMinDurationS: 0.05,
			SyllableMaxDurationS: 0.5,
		},
		Workers: Workers{
			Count:      2,
			QueueDepth: 64,
		},
		Retention: Retention{
			Enabled:  true,
			MaxAge:   time.Hour,
			Interval: 30 * time.Minute,
		},
	}
}

// Load reads a YAML config file and overlays it on the defaults. An empty
// path returns the defaults with DataDir resolved.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.fillDataDir(); err != nil {
		return nil, err
	}
	return cfg, cfg.validate()
}

func (c *Config) fillDataDir() error {
	if c.DataDir != "" {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("config: cannot determine home directory: %w", err)
	}
	c.DataDir = filepath.Join(home, ".local", "share", "tonelab")
	return nil
}

func (c *Config) validate() error {
	if c.Limits.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: limits.max_upload_bytes must be positive")
	}
	if c.Limits.MaxDurationSingleS <= 0 || c.Limits.MaxDurationContinuousS <= 0 {
		return fmt.Errorf("config: duration limits must be positive")
	}
	if c.Analysis.SampleRate <= 0 {
		return fmt.Errorf("config: analysis.sample_rate must be positive")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("config: workers.count must be positive")
	}
	if c.Analysis.SyllableMinDurationS >= c.Analysis.SyllableMaxDurationS {
		return fmt.Errorf("config: syllable duration floor must be below the ceiling")
	}
	return nil
}

// MaxDuration returns the duration limit for the given analysis mode name.
func (c *Config) MaxDuration(mode string) float64 {
	if mode == "continuous" {
		return c.Limits.MaxDurationContinuousS
	}
	return c.Limits.MaxDurationSingleS
}
