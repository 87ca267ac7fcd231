package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// WAV codec for 16-bit linear PCM. This is the only on-disk form tonelab
// writes: the normalizer stores canonical audio as 16 kHz mono s16le WAV, and
// the analysis pipeline reads it back. Arbitrary uploaded containers are
// handled by the decode service, not here.

const (
	wavHeaderSize = 44
	bytesPerSamp  = 2
)

// EncodeWAV serializes the buffer as a 16-bit PCM WAV file. Samples are
// clipped to [-1, 1] before quantization. Encoding is deterministic: the same
// buffer always yields the same bytes.
func EncodeWAV(b *Buffer) []byte {
	n := len(b.Samples)
	dataSize := n * bytesPerSamp
	out := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))

	out.WriteString("RIFF")
	binary.Write(out, binary.LittleEndian, uint32(36+dataSize))
	out.WriteString("WAVE")

	out.WriteString("fmt ")
	binary.Write(out, binary.LittleEndian, uint32(16))                        // chunk size
	binary.Write(out, binary.LittleEndian, uint16(1))                         // PCM
	binary.Write(out, binary.LittleEndian, uint16(1))                         // mono
	binary.Write(out, binary.LittleEndian, uint32(b.SampleRate))              // sample rate
	binary.Write(out, binary.LittleEndian, uint32(b.SampleRate*bytesPerSamp)) // byte rate
	binary.Write(out, binary.LittleEndian, uint16(bytesPerSamp))              // block align
	binary.Write(out, binary.LittleEndian, uint16(16))                        // bits per sample

	out.WriteString("data")
	binary.Write(out, binary.LittleEndian, uint32(dataSize))
	for _, s := range b.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.Write(out, binary.LittleEndian, int16(math.Round(s*32767)))
	}
	return out.Bytes()
}

// DecodeWAV parses a 16-bit PCM WAV file into a Buffer. Multi-channel input
// is downmixed by averaging channels. Only uncompressed PCM is accepted;
// anything else belongs to the decode service.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < wavHeaderSize {
		return nil, fmt.Errorf("wav: file too short (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("wav: missing RIFF/WAVE header")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		pcm        []byte
	)

	// Walk chunks; fmt must precede data.
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("wav: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("wav: unsupported format tag %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}
		pos = body + size
		if size%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("wav: no fmt chunk found")
	}
	if bits != 16 {
		return nil, fmt.Errorf("wav: unsupported bit depth %d (want 16)", bits)
	}
	if pcm == nil {
		return nil, fmt.Errorf("wav: no data chunk found")
	}

	frames := len(pcm) / (bytesPerSamp * channels)
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * bytesPerSamp
			v := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float64(v) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return &Buffer{Samples: samples, SampleRate: sampleRate}, nil
}
