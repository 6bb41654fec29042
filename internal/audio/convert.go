package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// whisper.cpp only accepts 16 kHz input.
	TargetSampleRate = 16000
	TargetChannels   = 1

	DefaultConvertTimeout = 30 * time.Second
)

var ErrConversionTimeout = errors.New("audio conversion timed out")

// Converter normalizes arbitrary containers into 16 kHz mono PCM WAV with
// ffmpeg, bounded by Timeout.
type Converter struct {
	FFmpegPath string
	Timeout    time.Duration
	Logger     *zap.Logger
}

func (c *Converter) Available() bool {
	if c == nil {
		return false
	}
	_, err := exec.LookPath(c.executable())
	return err == nil
}

// ToWAV writes the converted audio next to inputPath and returns its path.
// The caller owns the output file; nothing is left behind on failure.
func (c *Converter) ToWAV(ctx context.Context, inputPath string) (string, error) {
	if strings.TrimSpace(inputPath) == "" {
		return "", errors.New("input path is required")
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}

	outPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".16k.wav"
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", inputPath,
		"-ar", strconv.Itoa(TargetSampleRate),
		"-ac", strconv.Itoa(TargetChannels),
		"-c:a", "pcm_s16le",
		outPath,
	}

	convertCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(convertCtx, c.executable(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	c.log().Debug("converting audio", zap.String("ffmpeg", c.executable()), zap.Strings("args", args))
	started := time.Now()
	if err := cmd.Run(); err != nil {
		_ = removeIfExists(outPath)
		errText := strings.TrimSpace(stderr.String())
		if errors.Is(convertCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s (%s)", ErrConversionTimeout, timeout, errText)
		}
		return "", fmt.Errorf("ffmpeg conversion failed: %w (%s)", err, errText)
	}
	c.log().Debug("audio converted", zap.String("output", outPath), zap.Duration("elapsed", time.Since(started)))

	return outPath, nil
}

func (c *Converter) executable() string {
	if strings.TrimSpace(c.FFmpegPath) == "" {
		return "ffmpeg"
	}
	return c.FFmpegPath
}

func (c *Converter) log() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
