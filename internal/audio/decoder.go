package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/dialectatlas/tonelab/internal/errs"
)

// Decoder converts an arbitrary audio container into canonical PCM. The
// production implementation shells out to ffmpeg; tests inject a WAV-only
// fake so the pipeline can run without the binary.
type Decoder interface {
	// Decode converts raw container bytes into mono PCM at the target
	// sample rate. declaredFormat is the client's claimed container format
	// ("wav", "mp3", ...) used as a decode hint.
	Decode(ctx context.Context, raw []byte, declaredFormat string, targetRate int) (*Buffer, error)

	// Probe reports container metadata without decoding the full stream.
	Probe(ctx context.Context, raw []byte, declaredFormat string) (ProbeInfo, error)
}

// ProbeInfo is the subset of container metadata the normalizer needs.
type ProbeInfo struct {
	DurationS  float64
	SampleRate int
	Channels   int
	Format     string
}

// FFmpegDecoder implements Decoder by invoking the ffmpeg and ffprobe
// binaries through ffmpeg-go. Work happens in per-call temp files because
// several container formats (m4a, some webm) are not seekable through pipes.
type FFmpegDecoder struct{}

// NewFFmpegDecoder returns the ffmpeg-backed decoder.
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{}
}

type probeData struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func (d *FFmpegDecoder) Decode(ctx context.Context, raw []byte, declaredFormat string, targetRate int) (*Buffer, error) {
	dir, err := os.MkdirTemp("", "tonelab-decode-")
	if err != nil {
		return nil, fmt.Errorf("audio: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input."+safeExt(declaredFormat))
	outPath := filepath.Join(dir, "decoded.wav")
	if err := os.WriteFile(inPath, raw, 0644); err != nil {
		return nil, fmt.Errorf("audio: write temp input: %w", err)
	}

	err = ffmpeg.Input(inPath).
		Output(outPath, ffmpeg.KwArgs{
			"ar":  targetRate,
			"ac":  1,
			"c:a": "pcm_s16le",
		}).
		OverWriteOutput().
		Silent(true).
		Run()
	if err != nil {
		return nil, errs.New(errs.AudioDecodeFailed, "ffmpeg decode failed").
			WithDetail("cause", err.Error())
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("audio: read decoded output: %w", err)
	}
	buf, err := DecodeWAV(data)
	if err != nil {
		return nil, errs.New(errs.AudioDecodeFailed, "decoded output unreadable").
			WithDetail("cause", err.Error())
	}
	return buf, nil
}

func (d *FFmpegDecoder) Probe(ctx context.Context, raw []byte, declaredFormat string) (ProbeInfo, error) {
	var info ProbeInfo

	dir, err := os.MkdirTemp("", "tonelab-probe-")
	if err != nil {
		return info, fmt.Errorf("audio: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input."+safeExt(declaredFormat))
	if err := os.WriteFile(inPath, raw, 0644); err != nil {
		return info, fmt.Errorf("audio: write temp input: %w", err)
	}

	out, err := ffmpeg.Probe(inPath)
	if err != nil {
		return info, errs.New(errs.AudioDecodeFailed, "ffprobe failed").
			WithDetail("cause", err.Error())
	}

	var pd probeData
	if err := json.Unmarshal([]byte(out), &pd); err != nil {
		return info, errs.New(errs.AudioDecodeFailed, "ffprobe output unparseable").
			WithDetail("cause", err.Error())
	}

	info.Format = pd.Format.FormatName
	info.DurationS, _ = strconv.ParseFloat(pd.Format.Duration, 64)
	for _, s := range pd.Streams {
		if s.CodecType == "audio" {
			info.SampleRate, _ = strconv.Atoi(s.SampleRate)
			info.Channels = s.Channels
			break
		}
	}
	if info.Channels == 0 {
		return info, errs.New(errs.AudioDecodeFailed, "no audio stream found")
	}
	return info, nil
}

// safeExt keeps the temp filename extension to known format names so a
// hostile declared format cannot influence the path.
func safeExt(format string) string {
	switch format {
	case "wav", "mp3", "m4a", "webm", "ogg", "flac", "aac":
		return format
	default:
		return "bin"
	}
}
