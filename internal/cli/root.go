package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/fmueller/voxserve/internal/audio"
	"github.com/fmueller/voxserve/internal/config"
	"github.com/fmueller/voxserve/internal/logging"
	"github.com/fmueller/voxserve/internal/platform"
	"github.com/fmueller/voxserve/internal/transcribe"
	"github.com/fmueller/voxserve/internal/version"
	"github.com/fmueller/voxserve/internal/whisper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"
)

type appState struct {
	v          *viper.Viper
	configFile string
	envFile    string
	noProgress bool

	cfg    config.Config
	logger *zap.Logger

	engineFn func(ctx context.Context) (whisper.Engine, error)
	onListen func(addr string)
}

func newAppState() *appState {
	app := &appState{v: viper.New()}
	app.engineFn = app.buildEngine
	return app
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(newAppState())
}

func newRootCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "voxserve",
		Short:         "Serve whisper speech-to-text over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(app.v, config.LoadOptions{ConfigFile: app.configFile, EnvFile: app.envFile})
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Verbose: cfg.Log.Verbose, JSON: cfg.Log.JSON, Name: "voxserve"})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.cfg = cfg
			app.logger = logger
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVar(&app.configFile, "config", "", "Path to a YAML config file")
	flags.StringVar(&app.envFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	flags.BoolVar(&app.noProgress, "no-progress", false, "Disable progress indicators")
	bindLoggingFlags(app.v, flags)
	bindModelFlags(app.v, flags)
	bindPipelineFlags(app.v, flags)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newSetupCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Bool("verbose", false, "Enable verbose logs")
	flags.Bool("json", false, "Enable JSON logging")
	mustBind(v, flags, "log.verbose", "verbose")
	mustBind(v, flags, "log.json", "json")
}

func bindModelFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.String("model", whisper.DefaultModel, "Model name or model file path")
	flags.String("model-dir", "", "Directory where models are stored")
	flags.String("language", "auto", "Language code (auto|en|de|...) for transcription")
	flags.Bool("auto-download", true, "Automatically download missing models")
	flags.Bool("convert", true, "Normalize input to 16 kHz mono WAV with ffmpeg when available")
	flags.String("ffmpeg", "ffmpeg", "ffmpeg executable used for conversion")
	flags.Int("max-concurrent", 1, "Maximum concurrent model invocations")
	mustBind(v, flags, "whisper.model", "model")
	mustBind(v, flags, "whisper.model_dir", "model-dir")
	mustBind(v, flags, "whisper.language", "language")
	mustBind(v, flags, "whisper.auto_download", "auto-download")
	mustBind(v, flags, "whisper.convert", "convert")
	mustBind(v, flags, "whisper.ffmpeg_path", "ffmpeg")
	mustBind(v, flags, "whisper.max_concurrent", "max-concurrent")
}

func bindPipelineFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Int64("min-audio-bytes", transcribe.DefaultMinAudioBytes, "Audio smaller than this is answered with an empty result")
	flags.String("staging-dir", "", "Directory for staged request audio (default system temp dir)")
	flags.Bool("silence-gate", false, "Detect near-silent WAV audio and skip transcription")
	flags.Float64("silence-threshold-dbfs", -65, "Silence gate threshold in dBFS")
	mustBind(v, flags, "transcribe.min_audio_bytes", "min-audio-bytes")
	mustBind(v, flags, "transcribe.staging_dir", "staging-dir")
	mustBind(v, flags, "transcribe.silence_gate", "silence-gate")
	mustBind(v, flags, "transcribe.silence_threshold_dbfs", "silence-threshold-dbfs")
}

func mustBind(v *viper.Viper, flags *pflag.FlagSet, key, name string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// buildEngine resolves the model once and returns the shared engine handle.
func (a *appState) buildEngine(ctx context.Context) (whisper.Engine, error) {
	model, err := a.ensureModelAvailable(ctx)
	if err != nil {
		return nil, err
	}

	engine, err := whisper.NewBundledEngine(model.Path, a.log())
	if err != nil {
		return nil, err
	}

	if a.cfg.Whisper.Convert {
		converter := &audio.Converter{
			FFmpegPath: a.cfg.Whisper.FFmpegPath,
			Timeout:    a.cfg.Whisper.ConvertTimeout,
			Logger:     a.log(),
		}
		if converter.Available() {
			engine.Converter = converter
		} else {
			a.log().Warn("ffmpeg not found; audio is passed to whisper unconverted", zap.String("ffmpeg", a.cfg.Whisper.FFmpegPath))
		}
	}

	a.log().Info("speech engine ready",
		zap.String("engine", engine.Executable),
		zap.String("model", model.Path),
		zap.Int("max_concurrent", a.cfg.Whisper.MaxConcurrent),
	)
	return whisper.Limit(engine, a.cfg.Whisper.MaxConcurrent), nil
}

func (a *appState) buildService(ctx context.Context) (*transcribe.Service, error) {
	engineFn := a.engineFn
	if engineFn == nil {
		engineFn = a.buildEngine
	}

	engine, err := engineFn(ctx)
	if err != nil {
		return nil, err
	}

	stagingDir, err := platform.EnsureStagingDir(a.cfg.Transcribe.StagingDir)
	if err != nil {
		return nil, err
	}

	opts := transcribe.Options{
		MinAudioBytes: a.cfg.Transcribe.MinAudioBytes,
		StagingDir:    stagingDir,
		Language:      a.cfg.Whisper.Language,
		Logger:        a.log(),
	}
	if a.cfg.Transcribe.SilenceGate {
		opts.SilenceGate = &audio.SilenceGate{ThresholdDBFS: a.cfg.Transcribe.SilenceThresholdDBFS}
	}
	return transcribe.NewService(engine, opts)
}

func (a *appState) modelStorageDir() (string, error) {
	dir, err := platform.ResolveModelDir(a.cfg.Whisper.ModelDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory %s: %w", dir, err)
	}
	return dir, nil
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
