// Package transcribe turns one base64 audio payload into a transcription:
// decode, stage to a temporary file, gate, invoke the speech engine and
// release the staged file on every path.
package transcribe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/audio"
	"github.com/fmueller/voxserve/internal/logging"
	"github.com/fmueller/voxserve/internal/whisper"
	"go.uber.org/zap"
)

const DefaultMinAudioBytes = 1000

type Options struct {
	// MinAudioBytes is the staged size below which the model is skipped
	// and an empty result returned.
	MinAudioBytes int64
	StagingDir    string
	Language      string
	// SilenceGate, when set, skips transcription of near-silent WAV input.
	SilenceGate *audio.SilenceGate
	Logger      *zap.Logger
}

type Service struct {
	engine whisper.Engine
	opts   Options
}

// NewService wires the shared engine handle. The engine is never reloaded;
// it must tolerate concurrent calls or be wrapped with whisper.Limit.
func NewService(engine whisper.Engine, opts Options) (*Service, error) {
	if engine == nil {
		return nil, errors.New("speech engine is required")
	}
	if opts.MinAudioBytes < 0 {
		return nil, fmt.Errorf("minimum audio size must be non-negative (got %d)", opts.MinAudioBytes)
	}
	return &Service{engine: engine, opts: opts}, nil
}

// TranscribeBase64 decodes payload and transcribes it. All errors are *Error.
func (s *Service) TranscribeBase64(ctx context.Context, payload string) (whisper.Result, error) {
	data, err := DecodeAudio(payload)
	if err != nil {
		return whisper.Result{}, Conversion(MsgUndecodable, err)
	}
	s.log(ctx).Debug("decoded audio payload", zap.Int("bytes", len(data)))
	return s.TranscribeBytes(ctx, data)
}

// TranscribeBytes stages data and runs it through the engine. Input below
// MinAudioBytes (or judged silent) yields an empty, successful Result.
func (s *Service) TranscribeBytes(ctx context.Context, data []byte) (whisper.Result, error) {
	logger := s.log(ctx)

	artifact, err := Stage(s.opts.StagingDir, data)
	if err != nil {
		return whisper.Result{}, Conversion(MsgStagingFailed, err)
	}
	defer func() {
		if err := artifact.Release(); err != nil {
			logger.Warn("failed to remove staged audio", zap.String("path", artifact.Path()), zap.Error(err))
		}
	}()

	size, err := artifact.Size()
	if err != nil {
		return whisper.Result{}, Conversion(MsgStagingFailed, err)
	}

	if size < s.opts.MinAudioBytes {
		logger.Info("audio below minimum size; skipping transcription",
			zap.String("audio", artifact.Path()),
			zap.Int64("bytes", size),
			zap.Int64("min_bytes", s.opts.MinAudioBytes),
		)
		return whisper.Result{}, nil
	}

	if s.isSilent(logger, artifact) {
		return whisper.Result{}, nil
	}

	logger.Info("transcribing...", zap.String("audio", artifact.Path()), zap.Int64("bytes", size), zap.String("language", s.opts.Language))
	started := time.Now()

	res, err := s.engine.Transcribe(ctx, whisper.Request{AudioPath: artifact.Path(), Language: s.opts.Language})
	if err != nil {
		logger.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return whisper.Result{}, ModelInvocation(err)
	}

	res = whisper.Normalize(res)
	logger.Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("language", res.Language),
		zap.Int("chars", len(res.Text)),
	)
	return res, nil
}

func (s *Service) isSilent(logger *zap.Logger, artifact *Artifact) bool {
	if s.opts.SilenceGate == nil || artifact.Ext() != ".wav" {
		return false
	}

	silent, levels, err := s.opts.SilenceGate.IsSilent(artifact.Path())
	if err != nil {
		logger.Warn("silence gate analysis failed; continuing transcription", zap.Error(err), zap.String("audio", artifact.Path()))
		return false
	}
	if silent {
		logger.Info("audio considered silent; skipping transcription",
			zap.String("audio", artifact.Path()),
			zap.Float64("rms_dbfs", levels.RMSdBFS),
			zap.Float64("peak_dbfs", levels.PeakdBFS),
			zap.Float64("threshold_dbfs", s.opts.SilenceGate.ThresholdDBFS),
		)
	}
	return silent
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, s.opts.Logger)
}

// DecodeAudio decodes standard base64, tolerating a data-URL header and
// embedded whitespace.
func DecodeAudio(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 {
			return nil, errors.New("malformed data URL")
		}
		if !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, errors.New("data URL is not base64 encoded")
		}
		payload = payload[comma+1:]
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64 audio: %w", err)
	}
	return data, nil
}
