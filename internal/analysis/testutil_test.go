package analysis

import (
	"math"
	"testing"

	"github.com/dialectatlas/tonelab/internal/audio"
)

const testRate = 16000

// toneBuffer generates a steady sine tone with a touch of deterministic
// noise so autocorrelation stays strictly below 1.
func toneBuffer(t *testing.T, freq, durS, amp float64) *audio.Buffer {
	t.Helper()
	n := int(durS * testRate)
	samples := make([]float64, n)
	rng := uint32(12345)
	for i := range samples {
		rng = rng*1664525 + 1013904223
		noise := (float64(rng)/float64(0xFFFFFFFF))*2 - 1
		samples[i] = amp*math.Sin(2*math.Pi*freq*float64(i)/float64(testRate)) + 0.002*noise
	}
	return &audio.Buffer{Samples: samples, SampleRate: testRate}
}

// silenceBuffer generates durS seconds of digital silence.
func silenceBuffer(t *testing.T, durS float64) *audio.Buffer {
	t.Helper()
	return &audio.Buffer{
		Samples:    make([]float64, int(durS*testRate)),
		SampleRate: testRate,
	}
}

// syllableBuffer generates silence, a tone burst, silence. The burst carries
// a half-sine amplitude envelope so its intensity contour has a clear peak.
func syllableBuffer(t *testing.T, freq, leadS, burstS, trailS float64) *audio.Buffer {
	t.Helper()
	lead := int(leadS * testRate)
	burst := int(burstS * testRate)
	trail := int(trailS * testRate)
	samples := make([]float64, lead+burst+trail)
	for i := 0; i < burst; i++ {
		env := math.Sin(math.Pi * float64(i) / float64(burst))
		samples[lead+i] = 0.5 * env * math.Sin(2*math.Pi*freq*float64(i)/float64(testRate))
	}
	return &audio.Buffer{Samples: samples, SampleRate: testRate}
}

func defaultTuning() SegmentationTuning {
	return SegmentationTuning{SyllableMinDurationS: 0.05, SyllableMaxDurationS: 0.5}
}

// floatField pulls a *float64 summary value, failing when the key is
// missing or holds another type.
func floatField(t *testing.T, summary map[string]any, key string) *float64 {
	t.Helper()
	v, ok := summary[key]
	if !ok {
		t.Fatalf("summary missing %q", key)
	}
	p, ok := v.(*float64)
	if !ok {
		t.Fatalf("summary[%q] is %T, want *float64", key, v)
	}
	return p
}

func requireFloat(t *testing.T, summary map[string]any, key string) float64 {
	t.Helper()
	p := floatField(t, summary, key)
	if p == nil {
		t.Fatalf("summary[%q] is nil", key)
	}
	return *p
}
