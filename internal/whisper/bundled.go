package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fmueller/voxserve/internal/audio"
	"go.uber.org/zap"
)

// EnginePathEnv overrides discovery of the whisper-cli executable.
const EnginePathEnv = "VOXSERVE_WHISPER_PATH"

// BundledEngine runs whisper.cpp's whisper-cli once per request against a
// model file resolved at startup.
type BundledEngine struct {
	Executable string
	ModelPath  string
	// Converter, when set and available, normalizes input to 16 kHz WAV
	// before whisper-cli sees it.
	Converter *audio.Converter
	Logger    *zap.Logger
}

func NewBundledEngine(modelPath string, logger *zap.Logger) (*BundledEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv(EnginePathEnv)); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%s is not executable: %w", EnginePathEnv, err)
		}
		return &BundledEngine{Executable: override, ModelPath: modelPath, Logger: logger}, nil
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve voxserve executable path: %w", err)
	}

	whisperExe, err := ResolveBundledEnginePath(self)
	if err != nil {
		return nil, err
	}

	return &BundledEngine{Executable: whisperExe, ModelPath: modelPath, Logger: logger}, nil
}

func ResolveBundledEnginePath(selfExecutable string) (string, error) {
	for _, candidate := range EnginePathCandidates(selfExecutable) {
		if err := ensureExecutable(candidate); err == nil {
			return candidate, nil
		}
	}

	if onPath, err := exec.LookPath(engineBinaryName()); err == nil {
		return onPath, nil
	}

	return "", fmt.Errorf("whisper engine not found near %s or on PATH; install whisper.cpp or set %s (expected ../libexec/whisper/%s)", selfExecutable, EnginePathEnv, engineBinaryName())
}

func EnginePathCandidates(selfExecutable string) []string {
	binDir := filepath.Dir(selfExecutable)
	engineName := engineBinaryName()
	hostTarget := fmt.Sprintf("%s_%s", runtime.GOOS, normalizeArch(runtime.GOARCH))

	return []string{
		filepath.Join(binDir, "..", "libexec", "whisper", engineName),
		filepath.Join(binDir, "libexec", "whisper", engineName),
		filepath.Join(binDir, "packaging", "whisper", hostTarget, engineName),
		filepath.Join(binDir, engineName),
	}
}

func (b *BundledEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.AudioPath) == "" {
		return Result{}, errors.New("audio path is required")
	}
	if strings.TrimSpace(b.ModelPath) == "" {
		return Result{}, errors.New("model path is required")
	}
	if err := ensureExecutable(b.Executable); err != nil {
		return Result{}, fmt.Errorf("whisper engine missing or not executable: %w", err)
	}

	audioPath := req.AudioPath
	if b.Converter.Available() {
		converted, err := b.Converter.ToWAV(ctx, audioPath)
		if err != nil {
			return Result{}, err
		}
		defer b.remove(converted)
		audioPath = converted
	}

	outBase := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".whisper"
	jsonOut := outBase + ".json"
	defer b.remove(jsonOut)

	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = "auto"
	}
	args := []string{"-m", b.ModelPath, "-f", audioPath, "-l", lang, "-nt", "-np", "-oj", "-of", outBase}

	cmd := exec.CommandContext(ctx, b.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	b.log().Debug("running whisper engine", zap.String("engine", b.Executable), zap.Strings("args", args))
	started := time.Now()
	if err := cmd.Run(); err != nil {
		errText := strings.TrimSpace(stderr.String())
		if isMissingSharedLibraryError(errText) {
			return Result{}, fmt.Errorf("whisper engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF", b.Executable, errText)
		}
		if isIllegalInstructionError(errText) || isIllegalInstructionError(err.Error()) {
			return Result{}, fmt.Errorf("whisper engine crashed with an illegal CPU instruction; " +
				"your CPU may lack required instruction set extensions; " +
				"set " + EnginePathEnv + " to a whisper-cli binary built for your CPU")
		}
		return Result{}, fmt.Errorf("whisper transcribe failed: %w (%s)", err, errText)
	}
	b.log().Debug("whisper engine finished", zap.Duration("elapsed", time.Since(started)))

	content, err := os.ReadFile(jsonOut)
	if err != nil {
		return Result{}, fmt.Errorf("read whisper output: %w", err)
	}

	return ParseOutput(content)
}

// output mirrors the subset of whisper-cli's -oj document that we use.
type output struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text string `json:"text"`
	} `json:"transcription"`
}

func ParseOutput(content []byte) (Result, error) {
	var doc output
	if err := json.Unmarshal(content, &doc); err != nil {
		return Result{}, fmt.Errorf("decode whisper output: %w", err)
	}

	var text strings.Builder
	for _, segment := range doc.Transcription {
		text.WriteString(segment.Text)
	}

	return Result{Text: strings.TrimSpace(text.String()), Language: doc.Result.Language}, nil
}

func (b *BundledEngine) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.log().Warn("failed to remove whisper artifact", zap.String("path", path), zap.Error(err))
	}
}

func (b *BundledEngine) log() *zap.Logger {
	if b.Logger == nil {
		return zap.NewNop()
	}
	return b.Logger
}

func engineBinaryName() string {
	if runtime.GOOS == "windows" {
		return "whisper-cli.exe"
	}
	return "whisper-cli"
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func isMissingSharedLibraryError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	for _, pattern := range []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"image not found",
	} {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}

func isIllegalInstructionError(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "illegal instruction")
}

func normalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}
