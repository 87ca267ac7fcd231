package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dialectatlas/tonelab/internal/errs"
)

// NormalizedAudio is the result of normalizing an upload: canonical PCM plus
// the metadata recorded on the upload.
type NormalizedAudio struct {
	PCM        *Buffer
	WAV        []byte // canonical 16-bit WAV bytes, what gets persisted
	DurationS  float64
	SampleRate int
	// Source metadata from the probe, before normalization.
	SourceFormat   string
	SourceRate     int
	SourceChannels int
	Warnings       []string
}

// Normalizer validates uploads and converts them to canonical PCM through
// the decode service.
type Normalizer struct {
	decoder    Decoder
	maxBytes   int64
	maxDurS    float64
	sampleRate int
	log        *slog.Logger
}

// NewNormalizer builds a normalizer with the given limits. maxDurS is the
// largest duration any mode permits; per-mode limits are enforced again at
// job creation.
func NewNormalizer(decoder Decoder, maxBytes int64, maxDurS float64, sampleRate int, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		decoder:    decoder,
		maxBytes:   maxBytes,
		maxDurS:    maxDurS,
		sampleRate: sampleRate,
		log:        log,
	}
}

// Normalize validates raw upload bytes and produces canonical mono PCM.
// Size is checked before the decode service is invoked; duration is checked
// from the probe before the full decode runs.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, declaredFormat string) (*NormalizedAudio, error) {
	if int64(len(raw)) > n.maxBytes {
		return nil, errs.Newf(errs.UploadTooLarge, "upload is %d bytes, limit is %d", len(raw), n.maxBytes).
			WithDetail("size_bytes", len(raw)).
			WithDetail("max_bytes", n.maxBytes)
	}

	info, err := n.decoder.Probe(ctx, raw, declaredFormat)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	if info.DurationS > n.maxDurS {
		return nil, errs.Newf(errs.AudioTooLong, "audio is %.1fs, limit is %.0fs", info.DurationS, n.maxDurS).
			WithDetail("duration_s", info.DurationS).
			WithDetail("max_duration_s", n.maxDurS)
	}

	pcm, err := n.decoder.Decode(ctx, raw, declaredFormat, n.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	var warnings []string
	if info.Channels > 1 {
		warnings = append(warnings, fmt.Sprintf("%d-channel source downmixed to mono", info.Channels))
	}
	if info.SampleRate != 0 && info.SampleRate != n.sampleRate {
		warnings = append(warnings, fmt.Sprintf("resampled from %d Hz to %d Hz", info.SampleRate, n.sampleRate))
	}

	out := &NormalizedAudio{
		PCM:            pcm,
		WAV:            EncodeWAV(pcm),
		DurationS:      pcm.Duration(),
		SampleRate:     n.sampleRate,
		SourceFormat:   info.Format,
		SourceRate:     info.SampleRate,
		SourceChannels: info.Channels,
		Warnings:       warnings,
	}
	n.log.Debug("normalized upload",
		"format", info.Format,
		"duration_s", out.DurationS,
		"source_rate", info.SampleRate,
		"source_channels", info.Channels)
	return out, nil
}
