// Package config provides configuration loading from environment variables
// and YAML detection presets.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/silence"
)

// Static errors for configuration validation.
var (
	// ErrInvalidConfig wraps every field validation failure.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Detection holds the default detection, plan and encoder settings applied
// to requests that leave them out.
type Detection struct {
	MagnitudeThresholdRatio float64 `env:"MAGNITUDE_THRESHOLD_RATIO, default=0.02" json:"magnitude_threshold_ratio" validate:"gt=0"`
	DurationThreshold       float64 `env:"DURATION_THRESHOLD, default=0.5" json:"duration_threshold" validate:"gte=0"`
	FailureToleranceRatio   float64 `env:"FAILURE_TOLERANCE_RATIO, default=0.1" json:"failure_tolerance_ratio" validate:"gte=0"`
	SpaceOnEdges            float64 `env:"SPACE_ON_EDGES, default=0.1" json:"space_on_edges" validate:"gte=0"`
	SilencePartSpeed        int     `env:"SILENCE_PART_SPEED, default=0" json:"silence_part_speed" validate:"gte=0"`
	MinLoudPartDuration     float64 `env:"MIN_LOUD_PART_DURATION, default=-1" json:"min_loud_part_duration"`
	Codec                   string  `env:"CODEC" json:"codec,omitempty"`
	Bitrate                 string  `env:"BITRATE" json:"bitrate,omitempty"`
}

// Preset returns the settings as a preset.
func (d Detection) Preset() Preset {
	return Preset{
		Params: silence.Params{
			MagnitudeThresholdRatio: d.MagnitudeThresholdRatio,
			DurationThreshold:       d.DurationThreshold,
			FailureToleranceRatio:   d.FailureToleranceRatio,
			SpaceOnEdges:            d.SpaceOnEdges,
		},
		Options: cut.Options{
			MinLoudPartDuration: d.MinLoudPartDuration,
			SilenceSpeed:        d.SilencePartSpeed,
		},
		Encode: media.EncodeOpts{
			Codec:   d.Codec,
			Bitrate: d.Bitrate,
		},
	}
}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/jumpcutter" json:"temp_dir"`

	// Processing settings
	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs" validate:"min=1"`
	JobTimeout        time.Duration `env:"JOB_TIMEOUT, default=0s" json:"job_timeout" validate:"gte=0"`
	FFmpegPath        string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath       string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Decode settings for detection. Zero keeps the source sample rate and channel layout.
	DecodeSampleRate int `env:"DECODE_SAMPLE_RATE, default=0" json:"decode_sample_rate" validate:"gte=0"`
	DecodeChannels   int `env:"DECODE_CHANNELS, default=0" json:"decode_channels" validate:"gte=0"`

	// Detection defaults, optionally overridden by the preset file.
	Detection  Detection `json:"detection"`
	PresetPath string    `env:"PRESET_PATH" json:"preset_path,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3KeyPrefix        string `env:"S3_KEY_PREFIX, default=jumpcutter" json:"s3_key_prefix"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=json text JSON TEXT"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks field ranges and the S3 settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// Defaults returns the request defaults: the Detection settings with the
// preset file applied on top when PresetPath is set.
func (c *Config) Defaults() (Preset, error) {
	base := c.Detection.Preset()
	if c.PresetPath == "" {
		return base, nil
	}
	return LoadPreset(c.PresetPath, base)
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	return NewLogger(w, c.LogFormat, c.LogLevel)
}

// NewLogger creates a JSON or text logger writing to w at the given level.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, MaxConcurrentJobs: %d, JobTimeout: %s, FFmpegPath: %s, FFprobePath: %s, PresetPath: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.MaxConcurrentJobs,
		c.JobTimeout,
		c.FFmpegPath,
		c.FFprobePath,
		c.PresetPath,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
