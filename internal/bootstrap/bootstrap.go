// Package bootstrap provides dependency initialization for the jumpcutter
// server and CLI.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/jumpcutter/internal/audio"
	"github.com/maauso/jumpcutter/internal/config"
	"github.com/maauso/jumpcutter/internal/job"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/metrics"
	"github.com/maauso/jumpcutter/internal/storage"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	CutService *job.CutService
	Metrics    *metrics.Metrics
	// Defaults are the detection, plan and encoder settings requests start from.
	Defaults config.Preset
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	defaults, err := cfg.Defaults()
	if err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if cfg.PresetPath != "" {
		logger.Info("preset loaded", slog.String("path", cfg.PresetPath))
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	decoder := audio.NewFFmpegDecoder(cfg.FFmpegPath, store.TempDir())
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath, store.TempDir())
	repo := job.NewMemoryRepository()
	m := metrics.New()

	svc := job.NewCutService(repo, decoder, processor, store, m, logger, job.ServiceConfig{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobTimeout:        cfg.JobTimeout,
		S3KeyPrefix:       cfg.S3KeyPrefix,
		Decode: audio.DecodeOpts{
			SampleRate: cfg.DecodeSampleRate,
			Channels:   cfg.DecodeChannels,
		},
	})

	return &Dependencies{
		CutService: svc,
		Metrics:    m,
		Defaults:   defaults,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
