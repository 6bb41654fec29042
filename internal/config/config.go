// Package config loads voxserve settings from defaults, an optional YAML
// file, an optional .env file, VOXSERVE_* environment variables and bound
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOXSERVE"

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	Whisper    WhisperConfig    `mapstructure:"whisper"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	// MaxBodyBytes bounds the JSON request body, base64 overhead included.
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
	ExposeErrorDetail bool          `mapstructure:"expose_error_detail"`
}

type TranscribeConfig struct {
	// MinAudioBytes is the staged size below which a request is answered
	// with an empty result instead of invoking the model.
	MinAudioBytes        int64   `mapstructure:"min_audio_bytes" validate:"gte=0"`
	StagingDir           string  `mapstructure:"staging_dir"`
	SilenceGate          bool    `mapstructure:"silence_gate"`
	SilenceThresholdDBFS float64 `mapstructure:"silence_threshold_dbfs" validate:"lte=0"`
}

type WhisperConfig struct {
	Model          string        `mapstructure:"model"`
	ModelDir       string        `mapstructure:"model_dir"`
	Language       string        `mapstructure:"language"`
	AutoDownload   bool          `mapstructure:"auto_download"`
	Convert        bool          `mapstructure:"convert"`
	FFmpegPath     string        `mapstructure:"ffmpeg_path"`
	ConvertTimeout time.Duration `mapstructure:"convert_timeout" validate:"gte=0"`
	MaxConcurrent  int           `mapstructure:"max_concurrent" validate:"gte=1"`
}

type LogConfig struct {
	Verbose bool `mapstructure:"verbose"`
	JSON    bool `mapstructure:"json"`
}

type LoadOptions struct {
	ConfigFile string
	// EnvFile is loaded into the process environment before env binding.
	// When empty, ./.env is loaded if present.
	EnvFile string
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.expose_error_detail", false)

	v.SetDefault("transcribe.min_audio_bytes", 1000)
	v.SetDefault("transcribe.staging_dir", "")
	v.SetDefault("transcribe.silence_gate", false)
	v.SetDefault("transcribe.silence_threshold_dbfs", -65.0)

	v.SetDefault("whisper.model", "base")
	v.SetDefault("whisper.model_dir", "")
	v.SetDefault("whisper.language", "auto")
	v.SetDefault("whisper.auto_download", true)
	v.SetDefault("whisper.convert", true)
	v.SetDefault("whisper.ffmpeg_path", "ffmpeg")
	v.SetDefault("whisper.convert_timeout", 30*time.Second)
	v.SetDefault("whisper.max_concurrent", 1)

	v.SetDefault("log.verbose", false)
	v.SetDefault("log.json", false)
}

// Load resolves the configuration held by v. Flags must already be bound
// with BindPFlag by the caller.
func Load(v *viper.Viper, opts LoadOptions) (Config, error) {
	SetDefaults(v)

	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(opts.ConfigFile) != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Whisper.Language = sanitizeLanguage(cfg.Whisper.Language)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load env file .env: %w", err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		messages = append(messages, fmt.Sprintf("%s (got %v) violates %s", fe.Namespace(), fe.Value(), rule))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}

func sanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return "auto"
	}
	return trimmed
}
