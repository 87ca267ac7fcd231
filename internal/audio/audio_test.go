package audio

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
)

// wavOnlyDecoder decodes WAV uploads without ffmpeg so the normalizer can be
// tested in isolation.
type wavOnlyDecoder struct{}

func (wavOnlyDecoder) Decode(ctx context.Context, raw []byte, declaredFormat string, targetRate int) (*Buffer, error) {
	return DecodeWAV(raw)
}

func (wavOnlyDecoder) Probe(ctx context.Context, raw []byte, declaredFormat string) (ProbeInfo, error) {
	buf, err := DecodeWAV(raw)
	if err != nil {
		return ProbeInfo{}, err
	}
	return ProbeInfo{
		DurationS:  buf.Duration(),
		SampleRate: buf.SampleRate,
		Channels:   1,
		Format:     "wav",
	}, nil
}

func toneBuffer(t *testing.T, freq, durS float64, rate int, amp float64) *Buffer {
	t.Helper()
	n := int(durS * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return &Buffer{Samples: samples, SampleRate: rate}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWAVRoundtrip(t *testing.T) {
	src := toneBuffer(t, 220, 0.25, 16000, 0.8)
	data := EncodeWAV(src)

	got, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got.SampleRate != src.SampleRate {
		t.Errorf("sample rate %d, want %d", got.SampleRate, src.SampleRate)
	}
	if len(got.Samples) != len(src.Samples) {
		t.Fatalf("sample count %d, want %d", len(got.Samples), len(src.Samples))
	}
	for i := range got.Samples {
		if math.Abs(got.Samples[i]-src.Samples[i]) > 1.0/32000 {
			t.Fatalf("sample %d drifted beyond quantization error: %.6f vs %.6f", i, got.Samples[i], src.Samples[i])
		}
	}
}

func TestEncodeWAVClipsOutOfRange(t *testing.T) {
	src := &Buffer{Samples: []float64{2.0, -2.0}, SampleRate: 8000}
	got, err := DecodeWAV(EncodeWAV(src))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got.Samples[0] < 0.99 || got.Samples[1] > -0.99 {
		t.Errorf("clipping failed: %v", got.Samples)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"not_wav", bytes.Repeat([]byte{0xAB}, 128)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeWAV(tt.data); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	raw := EncodeWAV(toneBuffer(t, 200, 0.5, 16000, 0.5))
	n := NewNormalizer(wavOnlyDecoder{}, 1<<20, 30, 16000, quietLogger())

	first, err := n.Normalize(context.Background(), raw, "wav")
	if err != nil {
		t.Fatalf("first Normalize: %v", err)
	}
	second, err := n.Normalize(context.Background(), raw, "wav")
	if err != nil {
		t.Fatalf("second Normalize: %v", err)
	}
	if !bytes.Equal(first.WAV, second.WAV) {
		t.Error("normalizing the same input twice produced different WAV bytes")
	}
}

func TestNormalizeRejectsOversized(t *testing.T) {
	raw := EncodeWAV(toneBuffer(t, 200, 1.0, 16000, 0.5))
	n := NewNormalizer(wavOnlyDecoder{}, 100, 30, 16000, quietLogger())

	if _, err := n.Normalize(context.Background(), raw, "wav"); err == nil {
		t.Fatal("oversized upload accepted")
	}
}

func TestNormalizeRejectsTooLong(t *testing.T) {
	raw := EncodeWAV(toneBuffer(t, 200, 2.0, 16000, 0.5))
	n := NewNormalizer(wavOnlyDecoder{}, 1<<24, 1.0, 16000, quietLogger())

	if _, err := n.Normalize(context.Background(), raw, "wav"); err == nil {
		t.Fatal("overlong upload accepted")
	}
}

func TestBufferSlice(t *testing.T) {
	b := toneBuffer(t, 100, 1.0, 1000, 0.5)

	sub := b.Slice(0.25, 0.75)
	if len(sub.Samples) != 500 {
		t.Errorf("slice length %d, want 500", len(sub.Samples))
	}
	if empty := b.Slice(0.9, 0.1); len(empty.Samples) != 0 {
		t.Errorf("inverted slice should be empty, got %d samples", len(empty.Samples))
	}
	if clamped := b.Slice(0.5, 5.0); len(clamped.Samples) != 500 {
		t.Errorf("clamped slice length %d, want 500", len(clamped.Samples))
	}
}
