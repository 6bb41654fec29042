package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	formatPCM   = 1
	formatFloat = 3
)

type Levels struct {
	RMSdBFS  float64
	PeakdBFS float64
	Samples  int64
}

// SilenceGate reports near-silent WAV captures. The peak may exceed the
// threshold by up to 6 dB so isolated clicks do not count as speech.
type SilenceGate struct {
	ThresholdDBFS float64
}

func (g SilenceGate) IsSilent(path string) (bool, Levels, error) {
	levels, err := MeasureWAV(path)
	if err != nil {
		return false, Levels{}, err
	}

	if levels.Samples == 0 || (math.IsInf(levels.RMSdBFS, -1) && math.IsInf(levels.PeakdBFS, -1)) {
		return true, levels, nil
	}

	return levels.RMSdBFS <= g.ThresholdDBFS && levels.PeakdBFS <= g.ThresholdDBFS+6, levels, nil
}

type wavLayout struct {
	format        uint16
	bitsPerSample uint16
	dataOffset    int64
	dataSize      uint32
}

func MeasureWAV(path string) (Levels, error) {
	f, err := os.Open(path)
	if err != nil {
		return Levels{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	layout, err := readLayout(f)
	if err != nil {
		return Levels{}, err
	}

	info, err := f.Stat()
	if err != nil {
		return Levels{}, fmt.Errorf("stat wav: %w", err)
	}

	// Streaming recorders often leave the data size unpatched; use what is there.
	size := int64(layout.dataSize)
	if remaining := info.Size() - layout.dataOffset; size > remaining {
		size = remaining
	}

	if _, err := f.Seek(layout.dataOffset, io.SeekStart); err != nil {
		return Levels{}, fmt.Errorf("seek wav data: %w", err)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return Levels{}, fmt.Errorf("read wav data: %w", err)
	}

	return measure(data, layout)
}

func readLayout(r io.ReadSeeker) (wavLayout, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return wavLayout{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return wavLayout{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(riff[:4]) != "RIFF" || string(riff[8:]) != "WAVE" {
		return wavLayout{}, ErrInvalidWAV
	}

	var (
		layout  wavLayout
		hasFmt  bool
		hasData bool
	)

	for !hasData {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return wavLayout{}, fmt.Errorf("read wav chunk header: %w", err)
		}

		id := string(hdr[:4])
		size := binary.LittleEndian.Uint32(hdr[4:])
		padded := int64(size) + int64(size%2)

		switch id {
		case "fmt ":
			if size < 16 {
				return wavLayout{}, ErrInvalidWAV
			}
			body := make([]byte, padded)
			if _, err := io.ReadFull(r, body); err != nil {
				return wavLayout{}, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			layout.format = binary.LittleEndian.Uint16(body[0:2])
			layout.bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			hasFmt = true
		case "data":
			offset, err := r.Seek(0, io.SeekCurrent)
			if err != nil {
				return wavLayout{}, fmt.Errorf("locate wav data chunk: %w", err)
			}
			layout.dataOffset = offset
			layout.dataSize = size
			hasData = true
		default:
			if _, err := r.Seek(padded, io.SeekCurrent); err != nil {
				return wavLayout{}, fmt.Errorf("skip wav chunk %q: %w", id, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return wavLayout{}, ErrInvalidWAV
	}
	if !supported(layout.format, layout.bitsPerSample) {
		return wavLayout{}, ErrUnsupportedWAV
	}
	return layout, nil
}

func supported(format, bits uint16) bool {
	switch format {
	case formatPCM:
		return bits == 8 || bits == 16 || bits == 24 || bits == 32
	case formatFloat:
		return bits == 32 || bits == 64
	default:
		return false
	}
}

func measure(data []byte, layout wavLayout) (Levels, error) {
	width := int(layout.bitsPerSample / 8)

	var (
		peak, sumSquares float64
		samples          int64
	)
	for i := 0; i+width <= len(data); i += width {
		v := sampleValue(data[i:i+width], layout.format, layout.bitsPerSample)
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sumSquares += v * v
		samples++
	}

	if samples == 0 {
		return Levels{RMSdBFS: math.Inf(-1), PeakdBFS: math.Inf(-1)}, nil
	}

	return Levels{
		RMSdBFS:  toDBFS(math.Sqrt(sumSquares / float64(samples))),
		PeakdBFS: toDBFS(peak),
		Samples:  samples,
	}, nil
}

// sampleValue normalizes one sample to [-1, 1]. The format has already
// been checked by supported.
func sampleValue(b []byte, format, bits uint16) float64 {
	if format == formatFloat {
		if bits == 64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	}

	switch bits {
	case 8:
		return (float64(b[0]) - 128) / 128
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(b))) / (1 << 15)
	case 24:
		v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
		return float64(v) / (1 << 23)
	default:
		return float64(int32(binary.LittleEndian.Uint32(b))) / (1 << 31)
	}
}

func toDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(amplitude)
}
