// Package audiotest builds in-memory audio fixtures for tests.
package audiotest

import (
	"encoding/binary"
	"math"
)

// PCM16WAV encodes samples as a canonical 44-byte-header PCM WAV.
func PCM16WAV(samples []int16, sampleRate, channels int) []byte {
	const fmtChunkSize = 16
	dataSize := len(samples) * 2

	out := make([]byte, 0, 44+dataSize)
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(4+(8+fmtChunkSize)+(8+dataSize)))
	out = append(out, "WAVE"...)

	out = append(out, "fmt "...)
	out = binary.LittleEndian.AppendUint32(out, fmtChunkSize)
	out = binary.LittleEndian.AppendUint16(out, 1)
	out = binary.LittleEndian.AppendUint16(out, uint16(channels))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate))
	out = binary.LittleEndian.AppendUint32(out, uint32(sampleRate*channels*2))
	out = binary.LittleEndian.AppendUint16(out, uint16(channels*2))
	out = binary.LittleEndian.AppendUint16(out, 16)

	out = append(out, "data"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(dataSize))
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

// Tone returns n samples of a sine wave at the given amplitude (0..1).
func Tone(n int, freq, sampleRate, amplitude float64) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return samples
}
