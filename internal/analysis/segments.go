package analysis

import (
	"context"
	"math"
	"sort"

	"github.com/dialectatlas/tonelab/internal/audio"
	"github.com/dialectatlas/tonelab/internal/dsp"
)

const (
	// rimeCoreFraction is the share of the voiced span taken as the stable
	// nucleus, centered within it.
	rimeCoreFraction = 0.6
	// minRegionFrames suppresses one- or two-frame blips when grouping
	// speech and voiced regions.
	minRegionFrames = 3
	// syllablePeakDistance and syllablePeakProminence tune the energy peak
	// picking for syllable-like units (frames, dB).
	syllablePeakDistance   = 5
	syllablePeakProminence = 3.0
	// syllableBoundaryRatio expands a peak outward until intensity falls
	// below this fraction of the peak value.
	syllableBoundaryRatio = 0.7
	// minSilenceGapS drops silence slivers shorter than this.
	minSilenceGapS = 0.01
)

// SegmentsModule segments the recording by mode. Single mode yields the
// ordered silence/voiced/rime_core structure of an isolated syllable;
// continuous mode yields speech and voiced regions plus zero or more
// syllable_like units found from energy peaks.
type SegmentsModule struct {
	tuning SegmentationTuning
}

func (*SegmentsModule) Name() string { return "segments" }

func (m *SegmentsModule) OptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: "silence_threshold_db", Default: silenceThresholdDB, Doc: "frames below this intensity count as silence"},
		{Name: "syllable_min_duration_s", Default: m.tuning.SyllableMinDurationS, Doc: "syllable_like duration floor"},
		{Name: "syllable_max_duration_s", Default: m.tuning.SyllableMaxDurationS, Doc: "syllable_like duration ceiling"},
	}
}

func (m *SegmentsModule) Analyze(ctx context.Context, pcm *audio.Buffer, opts Options, mode Mode) (*Record, error) {
	threshold := opts.Float("silence_threshold_db", silenceThresholdDB)
	minDur := opts.Float("syllable_min_duration_s", m.tuning.SyllableMinDurationS)
	maxDur := opts.Float("syllable_max_duration_s", m.tuning.SyllableMaxDurationS)

	times, energy := intensityContour(pcm, defaultStepS)
	track := dsp.TrackF0(pcm.Samples, pcm.SampleRate, defaultF0Min, defaultF0Max, defaultStepS)

	var segments []Segment
	if mode == ModeSingle {
		segments = segmentSingle(pcm.Duration(), times, energy, track, threshold)
	} else {
		segments = segmentContinuous(pcm.Duration(), times, energy, track, threshold, minDur, maxDur)
	}

	return &Record{
		Segments: segments,
		Params: map[string]any{
			"mode":                    string(mode),
			"silence_threshold_db":    threshold,
			"syllable_min_duration_s": minDur,
			"syllable_max_duration_s": maxDur,
		},
	}, nil
}

func seg(t SegmentType, start, end float64) Segment {
	return Segment{Type: t, StartS: start, EndS: end, DurationS: end - start}
}

// segmentSingle produces the ordered silence -> voiced -> rime_core layout
// of an isolated syllable, with leading and trailing silence as present.
func segmentSingle(total float64, times, energy []float64, track *dsp.PitchTrack, threshold float64) []Segment {
	speech := make([]bool, len(energy))
	first, last := -1, -1
	for i, v := range energy {
		if v >= threshold {
			speech[i] = true
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return []Segment{seg(SegSilence, 0, total)}
	}

	var segments []Segment
	if first > 0 {
		segments = append(segments, seg(SegSilence, 0, times[first]))
	}

	// Voiced span: speech frames whose nearest pitch frame is voiced.
	vFirst, vLast := -1, -1
	for i := first; i <= last; i++ {
		if !speech[i] {
			continue
		}
		idx := nearestIndex(track.Times, times[i])
		if len(track.Times) > 0 && !math.IsNaN(track.Values[idx]) {
			if vFirst < 0 {
				vFirst = i
			}
			vLast = i
		}
	}
	if vFirst >= 0 {
		vStart, vEnd := times[vFirst], times[vLast]
		segments = append(segments, seg(SegVoiced, vStart, vEnd))

		span := vEnd - vStart
		coreStart := vStart + span*(1-rimeCoreFraction)/2
		segments = append(segments, seg(SegRimeCore, coreStart, coreStart+span*rimeCoreFraction))
	}

	if last < len(times)-1 {
		segments = append(segments, seg(SegSilence, times[last], total))
	}
	return segments
}

// segmentContinuous finds speech regions, voiced regions within them and
// syllable-like units around energy peaks, then fills the gaps between
// speech regions with silence segments.
func segmentContinuous(total float64, times, energy []float64, track *dsp.PitchTrack, threshold, minDur, maxDur float64) []Segment {
	speechMask := make([]bool, len(energy))
	for i, v := range energy {
		speechMask[i] = v >= threshold
	}

	var segments []Segment
	var speechSpans [][2]float64
	for _, r := range dsp.Regions(speechMask, minRegionFrames) {
		start, end := r[0], r[1]
		startT, endT := times[start], times[end]
		speechSpans = append(speechSpans, [2]float64{startT, endT})
		segments = append(segments, seg(SegSpeech, startT, endT))

		voicedMask := make([]bool, end-start+1)
		for i := start; i <= end; i++ {
			idx := nearestIndex(track.Times, times[i])
			voicedMask[i-start] = len(track.Times) > 0 && !math.IsNaN(track.Values[idx])
		}
		for _, vr := range dsp.Regions(voicedMask, minRegionFrames) {
			segments = append(segments, seg(SegVoiced, times[start+vr[0]], times[start+vr[1]]))
		}

		for _, span := range detectSyllables(times[start:end+1], energy[start:end+1], minDur, maxDur) {
			segments = append(segments, seg(SegSyllableLike, span[0], span[1]))
		}
	}

	for _, gap := range silenceGaps(speechSpans, total) {
		segments = append(segments, seg(SegSilence, gap[0], gap[1]))
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].StartS < segments[j].StartS
	})
	return segments
}

// detectSyllables picks intensity peaks and walks each boundary outward
// until the contour drops below a fraction of the peak level. Candidates
// outside the duration window are rejected as coarticulation noise or
// merged runs.
func detectSyllables(times, energy []float64, minDur, maxDur float64) [][2]float64 {
	var out [][2]float64
	for _, p := range dsp.FindPeaks(energy, syllablePeakDistance, syllablePeakProminence) {
		threshold := energy[p] * syllableBoundaryRatio
		start, end := p, p
		for start > 0 && energy[start] > threshold {
			start--
		}
		for end < len(energy)-1 && energy[end] > threshold {
			end++
		}
		dur := times[end] - times[start]
		if dur >= minDur && dur <= maxDur {
			out = append(out, [2]float64{times[start], times[end]})
		}
	}
	return out
}

func silenceGaps(speech [][2]float64, total float64) [][2]float64 {
	if len(speech) == 0 {
		return [][2]float64{{0, total}}
	}
	var gaps [][2]float64
	if speech[0][0] > minSilenceGapS {
		gaps = append(gaps, [2]float64{0, speech[0][0]})
	}
	for i := 0; i < len(speech)-1; i++ {
		if speech[i+1][0]-speech[i][1] > minSilenceGapS {
			gaps = append(gaps, [2]float64{speech[i][1], speech[i+1][0]})
		}
	}
	if total-speech[len(speech)-1][1] > minSilenceGapS {
		gaps = append(gaps, [2]float64{speech[len(speech)-1][1], total})
	}
	return gaps
}
