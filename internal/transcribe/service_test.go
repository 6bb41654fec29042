package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fmueller/voxserve/internal/audio"
	"github.com/fmueller/voxserve/internal/audio/audiotest"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/stretchr/testify/require"
)

type recordingEngine struct {
	mu      sync.Mutex
	paths   []string
	existed []bool
	result  whisper.Result
	err     error
}

func (e *recordingEngine) Transcribe(_ context.Context, req whisper.Request) (whisper.Result, error) {
	_, statErr := os.Stat(req.AudioPath)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths = append(e.paths, req.AudioPath)
	e.existed = append(e.existed, statErr == nil)
	return e.result, e.err
}

func newTestService(t *testing.T, engine whisper.Engine, mutate ...func(*Options)) (*Service, string) {
	t.Helper()

	dir := t.TempDir()
	opts := Options{MinAudioBytes: DefaultMinAudioBytes, StagingDir: dir, Language: "auto"}
	for _, m := range mutate {
		m(&opts)
	}
	svc, err := NewService(engine, opts)
	require.NoError(t, err)
	return svc, dir
}

func speechWAV() []byte {
	return audiotest.PCM16WAV(audiotest.Tone(8000, 440, 16000, 0.3), 16000, 1)
}

func requireStagingEmpty(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "staged files left behind")
}

func TestTranscribeBase64ReturnsModelResult(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{result: whisper.Result{Text: "  hello there \n", Language: "en"}}
	svc, dir := newTestService(t, engine)

	res, err := svc.TranscribeBase64(context.Background(), base64.StdEncoding.EncodeToString(speechWAV()))
	require.NoError(t, err)
	require.Equal(t, whisper.Result{Text: "hello there", Language: "en"}, res)

	require.Len(t, engine.paths, 1)
	require.True(t, engine.existed[0], "staged file must exist while the model runs")
	require.Equal(t, ".wav", filepath.Ext(engine.paths[0]))
	require.True(t, strings.HasPrefix(filepath.Base(engine.paths[0]), stagePrefix))
	require.NoFileExists(t, engine.paths[0])
	requireStagingEmpty(t, dir)
}

func TestTranscribeDefaultsMissingModelFields(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &recordingEngine{})

	res, err := svc.TranscribeBytes(context.Background(), speechWAV())
	require.NoError(t, err)
	require.Equal(t, "", res.Text)
	require.Equal(t, whisper.UnknownLanguage, res.Language)
}

func TestTranscribeBelowThresholdSkipsModel(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{result: whisper.Result{Text: "never", Language: "en"}}
	svc, dir := newTestService(t, engine)

	for _, size := range []int{0, 1, 999} {
		payload := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x01}, size))
		res, err := svc.TranscribeBase64(context.Background(), payload)
		require.NoError(t, err)
		require.Equal(t, whisper.Result{}, res)
	}

	require.Empty(t, engine.paths)
	requireStagingEmpty(t, dir)
}

func TestTranscribeThresholdIsInclusiveAtMinimum(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{result: whisper.Result{Text: "ok", Language: "en"}}
	svc, _ := newTestService(t, engine)

	_, err := svc.TranscribeBytes(context.Background(), bytes.Repeat([]byte{0x01}, DefaultMinAudioBytes))
	require.NoError(t, err)
	require.Len(t, engine.paths, 1)
}

func TestTranscribeThresholdIsConfigurable(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{result: whisper.Result{Text: "short", Language: "en"}}
	svc, _ := newTestService(t, engine, func(o *Options) { o.MinAudioBytes = 10 })

	res, err := svc.TranscribeBytes(context.Background(), []byte("0123456789"))
	require.NoError(t, err)
	require.Equal(t, "short", res.Text)
}

func TestTranscribeMalformedBase64IsConversionError(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{}
	svc, dir := newTestService(t, engine)

	_, err := svc.TranscribeBase64(context.Background(), "this is not base64!!")
	require.Error(t, err)

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, KindConversion, appErr.Kind)
	require.Equal(t, http.StatusInternalServerError, appErr.Status)
	require.Equal(t, MsgUndecodable, appErr.Public(false))
	require.Empty(t, engine.paths)
	requireStagingEmpty(t, dir)
}

func TestTranscribeModelFailureReleasesStagedFile(t *testing.T) {
	t.Parallel()

	modelErr := errors.New("ffmpeg timed out after 30s")
	engine := &recordingEngine{err: modelErr}
	svc, dir := newTestService(t, engine)

	_, err := svc.TranscribeBytes(context.Background(), speechWAV())
	require.ErrorIs(t, err, modelErr)

	appErr := Classify(err)
	require.Equal(t, KindModelInvocation, appErr.Kind)
	require.Equal(t, MsgModelFailed, appErr.Public(false))
	require.Contains(t, appErr.Public(true), "ffmpeg timed out after 30s")

	require.Len(t, engine.paths, 1)
	require.NoFileExists(t, engine.paths[0])
	requireStagingEmpty(t, dir)
}

func TestTranscribeReleasesStagedFileOnPanic(t *testing.T) {
	t.Parallel()

	var staged string
	engine := whisper.EngineFunc(func(_ context.Context, req whisper.Request) (whisper.Result, error) {
		staged = req.AudioPath
		panic("engine exploded")
	})
	svc, dir := newTestService(t, engine)

	require.Panics(t, func() {
		_, _ = svc.TranscribeBytes(context.Background(), speechWAV())
	})
	require.NotEmpty(t, staged)
	require.NoFileExists(t, staged)
	requireStagingEmpty(t, dir)
}

func TestTranscribeSamePayloadTwiceIsIndependent(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{result: whisper.Result{Text: "again", Language: "en"}}
	svc, dir := newTestService(t, engine)
	payload := base64.StdEncoding.EncodeToString(speechWAV())

	first, err := svc.TranscribeBase64(context.Background(), payload)
	require.NoError(t, err)
	second, err := svc.TranscribeBase64(context.Background(), payload)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, engine.paths, 2)
	require.NotEqual(t, engine.paths[0], engine.paths[1])
	requireStagingEmpty(t, dir)
}

func TestTranscribeConcurrentRequestsStageDistinctFiles(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{result: whisper.Result{Text: "x", Language: "en"}}
	svc, dir := newTestService(t, engine)
	data := speechWAV()

	errs := make(chan error, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TranscribeBytes(context.Background(), data)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	seen := make(map[string]struct{}, len(engine.paths))
	for _, p := range engine.paths {
		seen[p] = struct{}{}
	}
	require.Len(t, seen, 16)
	requireStagingEmpty(t, dir)
}

func TestTranscribeSilenceGateSkipsSilentWAV(t *testing.T) {
	t.Parallel()

	engine := &recordingEngine{result: whisper.Result{Text: "ghost", Language: "en"}}
	svc, dir := newTestService(t, engine, func(o *Options) {
		o.SilenceGate = &audio.SilenceGate{ThresholdDBFS: -65}
	})

	res, err := svc.TranscribeBytes(context.Background(), audiotest.PCM16WAV(make([]int16, 8000), 16000, 1))
	require.NoError(t, err)
	require.Equal(t, whisper.Result{}, res)
	require.Empty(t, engine.paths)

	res, err = svc.TranscribeBytes(context.Background(), speechWAV())
	require.NoError(t, err)
	require.Equal(t, "ghost", res.Text)
	requireStagingEmpty(t, dir)
}

func TestTranscribeStagingFailureIsConversionError(t *testing.T) {
	t.Parallel()

	svc, err := NewService(&recordingEngine{}, Options{StagingDir: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)

	_, err = svc.TranscribeBytes(context.Background(), speechWAV())
	appErr := Classify(err)
	require.Equal(t, KindConversion, appErr.Kind)
	require.Equal(t, MsgStagingFailed, appErr.Message)
}

func TestNewServiceValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := NewService(nil, Options{})
	require.Error(t, err)

	_, err = NewService(&recordingEngine{}, Options{MinAudioBytes: -1})
	require.Error(t, err)
}

func TestDecodeAudio(t *testing.T) {
	t.Parallel()

	raw := []byte("RIFF....WAVEfmt ")
	encoded := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeAudio(encoded)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	got, err = DecodeAudio("data:audio/webm;codecs=opus;base64," + encoded)
	require.NoError(t, err)
	require.Equal(t, raw, got)

	got, err = DecodeAudio(encoded[:8] + "\n" + encoded[8:] + "\r\n")
	require.NoError(t, err)
	require.Equal(t, raw, got)

	_, err = DecodeAudio("data:audio/wav," + encoded)
	require.Error(t, err)

	_, err = DecodeAudio("%%%")
	require.Error(t, err)
}
