package audio

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fmueller/voxserve/internal/audio/audiotest"
	"github.com/stretchr/testify/require"
)

func TestSilenceGateDetectsSilence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "silent.wav")
	require.NoError(t, os.WriteFile(path, audiotest.PCM16WAV(make([]int16, 16000), 16000, 1), 0o644))

	silent, metrics, err := SilenceGate{ThresholdDBFS: -65}.IsSilent(path)
	require.NoError(t, err)
	require.True(t, silent)
	require.True(t, math.IsInf(metrics.RMSdBFS, -1))
	require.True(t, math.IsInf(metrics.PeakdBFS, -1))
	require.EqualValues(t, 16000, metrics.Samples)
}

func TestSilenceGatePassesSpeechLikeSignal(t *testing.T) {
	t.Parallel()

	samples := audiotest.Tone(16000, 440, 16000, 0.25)

	path := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(path, audiotest.PCM16WAV(samples, 16000, 1), 0o644))

	silent, metrics, err := SilenceGate{ThresholdDBFS: -65}.IsSilent(path)
	require.NoError(t, err)
	require.False(t, silent)
	require.Greater(t, metrics.PeakdBFS, -20.0)
	require.Greater(t, metrics.RMSdBFS, -20.0)
}

func TestSilenceGateInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "not-wav.wav")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, _, err := SilenceGate{ThresholdDBFS: -65}.IsSilent(path)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidWAV)
}

func TestMeasureWAVToleratesUnpatchedDataSize(t *testing.T) {
	t.Parallel()

	wav := audiotest.PCM16WAV(make([]int16, 800), 16000, 1)
	// Recorders killed mid-stream leave 0xFFFFFFFF as the data chunk size.
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	path := filepath.Join(t.TempDir(), "streamed.wav")
	require.NoError(t, os.WriteFile(path, wav, 0o644))

	levels, err := MeasureWAV(path)
	require.NoError(t, err)
	require.EqualValues(t, 800, levels.Samples)
}

func TestMeasureWAVRejectsCompressedFormat(t *testing.T) {
	t.Parallel()

	wav := audiotest.PCM16WAV(make([]int16, 16), 16000, 1)
	// audio format 0x55 is MPEG layer 3 inside RIFF.
	binary.LittleEndian.PutUint16(wav[20:22], 0x55)

	path := filepath.Join(t.TempDir(), "mp3-in-riff.wav")
	require.NoError(t, os.WriteFile(path, wav, 0o644))

	_, err := MeasureWAV(path)
	require.ErrorIs(t, err, ErrUnsupportedWAV)
}
