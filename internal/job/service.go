package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/maauso/jumpcutter/internal/audio"
	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/metrics"
	"github.com/maauso/jumpcutter/internal/silence"
	"github.com/maauso/jumpcutter/internal/storage"
	"github.com/maauso/jumpcutter/internal/xmeml"
)

// Static errors for the cut use case.
var (
	// ErrNoAudio is returned when the input has no audio stream to analyse.
	ErrNoAudio = errors.New("input has no audio stream")
	// ErrOutputNotFound is returned when a job has no output at the requested index.
	ErrOutputNotFound = errors.New("output not found")
	// ErrJobActive is returned when a job that is still queued or running is deleted.
	ErrJobActive = errors.New("job is still active")
)

const defaultMaxConcurrentJobs = 2

// planTolerance is the gap, in seconds, a silent plan may leave between
// segments and still count as tiling the source.
const planTolerance = 1e-6

// ServiceConfig tunes CutService.
type ServiceConfig struct {
	// MaxConcurrentJobs bounds how many jobs run at once.
	MaxConcurrentJobs int
	// JobTimeout bounds a single job. Zero means no deadline.
	JobTimeout time.Duration
	// S3KeyPrefix is prepended to uploaded object keys.
	S3KeyPrefix string
	// Decode resamples or downmixes the audio handed to the detector.
	Decode audio.DecodeOpts
}

// PlanPreview is the plan of one mode without rendering it.
type PlanPreview struct {
	Mode           cut.Mode      `json:"mode"`
	Segments       []cut.Segment `json:"segments"`
	OutputDuration float64       `json:"output_duration"`
}

// Preview is the result of detection and planning for a request.
type Preview struct {
	Source         media.Info         `json:"source"`
	Duration       float64            `json:"duration"`
	Intervals      []silence.Interval `json:"intervals"`
	EdgesMayInvert bool               `json:"edges_may_invert"`
	Plans          []PlanPreview      `json:"plans"`
}

// analysis is what every mode of a job is planned from.
type analysis struct {
	info      media.Info
	total     float64
	intervals []silence.Interval
}

// CutService orchestrates a cut: it probes and decodes the input, detects
// silent intervals, builds one plan per requested mode and renders or
// exports each plan, optionally uploading the results.
type CutService struct {
	repo      Repository
	decoder   audio.Decoder
	processor media.Processor
	storage   storage.Storage
	metrics   *metrics.Metrics
	logger    *slog.Logger
	sem       *semaphore.Weighted
	cfg       ServiceConfig
}

// NewCutService creates a new CutService.
// A nil logger falls back to slog.Default() and nil metrics to a private
// registry.
func NewCutService(
	repo Repository,
	decoder audio.Decoder,
	processor media.Processor,
	store storage.Storage,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg ServiceConfig,
) *CutService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewWithRegistry(prometheus.NewRegistry())
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	return &CutService{
		repo:      repo,
		decoder:   decoder,
		processor: processor,
		storage:   store,
		metrics:   m,
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		cfg:       cfg,
	}
}

// CreateJob validates req, fills its defaults and persists a new job in
// IN_QUEUE status.
func (s *CutService) CreateJob(ctx context.Context, req Request) (*Job, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := New(req)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("input", req.InputPath),
		slog.Any("modes", req.Modes),
		slog.String("export", string(req.Export)),
		slog.Bool("push_to_s3", req.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *CutService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *CutService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob removes a finished job. Outputs the service placed in its own
// scratch directory are deleted with it; outputs written to a caller-chosen
// path are left alone.
func (s *CutService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return ErrJobActive
	}

	if owned := s.ownedPaths(job.OutputPaths()); len(owned) > 0 {
		if err := s.storage.CleanupTemp(ctx, owned); err != nil {
			return fmt.Errorf("remove outputs: %w", err)
		}
	}

	s.logger.Info("job deleted", slog.String("job_id", id))
	return s.repo.Delete(ctx, id)
}

// StageUpload stores an uploaded input in scratch storage and returns its
// path, for use as Request.InputPath with TempInput set.
func (s *CutService) StageUpload(ctx context.Context, name string, data io.Reader) (string, error) {
	path, err := s.storage.SaveTemp(ctx, sanitizeName(name), data)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	// Keep the original extension so ffmpeg can pick the demuxer.
	if ext := filepath.Ext(name); ext != "" && filepath.Ext(path) != ext {
		renamed := path + ext
		if err := os.Rename(path, renamed); err != nil {
			_ = s.storage.CleanupTemp(ctx, []string{path})
			return "", fmt.Errorf("stage upload: %w", err)
		}
		path = renamed
	}
	return path, nil
}

// DiscardUpload removes an input staged by StageUpload that no job will own.
func (s *CutService) DiscardUpload(ctx context.Context, path string) {
	if err := s.storage.CleanupTemp(context.WithoutCancel(ctx), []string{path}); err != nil {
		s.logger.Warn("failed to remove staged upload",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// OpenOutput opens the output at index of a job. The caller closes the reader.
func (s *CutService) OpenOutput(ctx context.Context, jobID string, index int) (io.ReadCloser, Output, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, Output{}, err
	}
	if index < 0 || index >= len(job.Outputs) {
		return nil, Output{}, ErrOutputNotFound
	}

	out := job.Outputs[index]
	rc, err := s.storage.LoadTemp(ctx, out.Path)
	if err != nil {
		return nil, Output{}, fmt.Errorf("open output: %w", err)
	}
	return rc, out, nil
}

// Preview runs detection and planning for req without writing anything.
func (s *CutService) Preview(ctx context.Context, req Request) (*Preview, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	an, err := s.analyze(ctx, req, "")
	if err != nil {
		return nil, err
	}

	preview := &Preview{
		Source:         an.info,
		Duration:       an.total,
		Intervals:      an.intervals,
		EdgesMayInvert: req.Params.EdgesMayInvert(),
		Plans:          make([]PlanPreview, 0, len(req.Modes)),
	}
	for _, mode := range req.Modes {
		plan, err := cut.Build(an.total, an.intervals, mode, req.Options)
		if err != nil {
			return nil, fmt.Errorf("build %s plan: %w", mode, err)
		}
		preview.Plans = append(preview.Plans, PlanPreview{
			Mode:           mode,
			Segments:       plan.Segments,
			OutputDuration: plan.OutputDuration(),
		})
	}
	return preview, nil
}

// Run creates a job for req and processes it synchronously.
func (s *CutService) Run(ctx context.Context, req Request) (*Job, error) {
	job, err := s.CreateJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Process(ctx, job.ID)
}

// Process executes a stored job. It waits for a free slot, then moves the
// job through RUNNING to a terminal status and returns its final state.
//
// The workflow:
//  1. Probe the input and decode its audio track
//  2. Detect silent intervals
//  3. For each mode: build the plan, render it or export a project file
//  4. Optionally upload every output to S3
//  5. Update the job to COMPLETED, FAILED, CANCELLED or TIMED_OUT
func (s *CutService) Process(ctx context.Context, jobID string) (*Job, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for processing slot: %w", err)
	}
	defer s.sem.Release(1)

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	s.metrics.RecordJobStarted()
	started := time.Now()
	s.logger.Info("job started", slog.String("job_id", job.ID))

	runCtx := ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	attempted, runErr := s.run(runCtx, job)
	s.finish(ctx, job, runErr, attempted, started)

	return job.Clone(), runErr
}

// run does the work of Process for a RUNNING job. It returns every output
// path it started writing so a failed job can remove them.
func (s *CutService) run(ctx context.Context, job *Job) ([]string, error) {
	req := job.Request

	an, err := s.analyze(ctx, req, job.ID)
	if err != nil {
		return nil, err
	}
	job.SetDetection(an.total, len(an.intervals))
	job.UpdateProgress(40)
	s.save(ctx, job)

	base := req.OutputPath
	if base == "" {
		base = DefaultOutputPath(s.storage.TempDir(), job.ID, req.InputPath)
	}
	paths := OutputPaths(base, req.Modes, req.Export)

	var attempted []string
	for i, mode := range req.Modes {
		plan, err := cut.Build(an.total, an.intervals, mode, req.Options)
		if err != nil {
			return attempted, fmt.Errorf("build %s plan: %w", mode, err)
		}
		s.recordPlan(plan)
		if mode == cut.ModeSilent && !plan.Covers(an.total, planTolerance) {
			s.logger.Debug("silent plan does not tile the source, some intervals are inverted",
				slog.String("job_id", job.ID),
				slog.Int("segments", len(plan.Segments)),
				slog.Float64("duration", an.total),
			)
		}

		path := paths[mode]
		attempted = append(attempted, path)
		if err := s.write(ctx, req, an, plan, path); err != nil {
			return attempted, fmt.Errorf("write %s output: %w", mode, err)
		}

		out := Output{
			Mode:     mode,
			Path:     path,
			Segments: len(plan.Kept()),
			Duration: plan.OutputDuration(),
		}
		if req.PushToS3 {
			url, err := s.upload(ctx, job.ID, path)
			if err != nil {
				return attempted, err
			}
			out.URL = url
		}
		job.AddOutput(out)

		s.logger.Info("output written",
			slog.String("job_id", job.ID),
			slog.String("mode", string(mode)),
			slog.String("path", path),
			slog.String("url", out.URL),
			slog.Int("segments", out.Segments),
			slog.Float64("duration", out.Duration),
		)

		job.UpdateProgress(40 + 60*(i+1)/len(req.Modes))
		s.save(ctx, job)
	}

	return attempted, nil
}

// analyze probes and decodes the input and detects its silent intervals.
func (s *CutService) analyze(ctx context.Context, req Request, jobID string) (analysis, error) {
	log := s.logger.With(slog.String("job_id", jobID), slog.String("input", req.InputPath))

	info, err := s.processor.Probe(ctx, req.InputPath)
	if err != nil {
		return analysis{}, fmt.Errorf("probe input: %w", err)
	}
	if !info.HasAudio {
		return analysis{}, ErrNoAudio
	}

	decodeStart := time.Now()
	buf, err := s.decoder.Decode(ctx, req.InputPath, s.cfg.Decode)
	if err != nil {
		return analysis{}, fmt.Errorf("decode audio: %w", err)
	}
	s.metrics.RecordDecode(time.Since(decodeStart).Seconds())

	if req.Params.EdgesMayInvert() {
		log.Warn("space on edges is at least half the duration threshold, some intervals may be inverted",
			slog.Float64("space_on_edges", req.Params.SpaceOnEdges),
			slog.Float64("duration_threshold", req.Params.DurationThreshold),
		)
	}

	detectStart := time.Now()
	intervals, err := silence.Detect(buf, req.Params)
	if err != nil {
		return analysis{}, fmt.Errorf("detect silence: %w", err)
	}
	s.metrics.RecordDetection(len(intervals), time.Since(detectStart).Seconds())

	total := info.Duration
	if total <= 0 {
		total = buf.Duration()
	}

	log.Info("silence detected",
		slog.Int("intervals", len(intervals)),
		slog.Float64("duration", total),
		slog.Int("sample_rate", buf.SampleRate),
		slog.Int("channels", buf.Channels),
	)

	return analysis{info: info, total: total, intervals: intervals}, nil
}

// write renders plan or exports it as a project file at path.
func (s *CutService) write(ctx context.Context, req Request, an analysis, plan cut.Plan, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	start := time.Now()
	defer func() { s.metrics.RecordRender(string(req.Export), time.Since(start).Seconds()) }()

	if req.Export == ExportXML {
		return writeProject(plan, xmeml.Source{
			Path:            req.InputPath,
			FrameRate:       an.info.FrameRate,
			Width:           an.info.Width,
			Height:          an.info.Height,
			AudioChannels:   an.info.AudioChannels,
			AudioSampleRate: an.info.AudioSampleRate,
			Duration:        an.total,
		}, path)
	}

	return s.processor.RenderPlan(ctx, req.InputPath, plan, path, req.Encode)
}

func writeProject(plan cut.Plan, src xmeml.Source, path string) (err error) {
	doc, err := xmeml.Export(plan, src)
	if err != nil {
		return err
	}

	f, err := os.Create(path) // #nosec G304 - path is derived from the request
	if err != nil {
		return fmt.Errorf("create project file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close project file: %w", cerr)
		}
	}()

	return xmeml.Encode(f, doc)
}

// upload pushes the output at path to S3 under the job's prefix.
func (s *CutService) upload(ctx context.Context, jobID, path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path was written by this job
	if err != nil {
		return "", fmt.Errorf("open output for upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	key := storage.ObjectKey(s.cfg.S3KeyPrefix, jobID, path)
	url, err := s.storage.UploadToS3(ctx, key, f, storage.ContentType(path))
	s.metrics.RecordUpload(err == nil)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return url, nil
}

// finish moves job to its terminal status, removes what a failed job left
// behind and persists the result.
func (s *CutService) finish(ctx context.Context, job *Job, runErr error, attempted []string, started time.Time) {
	// The job record must be written even when ctx was cancelled.
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With(slog.String("job_id", job.ID))

	var transErr error
	switch {
	case runErr == nil:
		transErr = job.Complete()
	case errors.Is(runErr, context.DeadlineExceeded):
		transErr = job.Timeout(runErr.Error())
	case errors.Is(runErr, context.Canceled):
		transErr = job.Cancel()
	default:
		transErr = job.Fail(runErr.Error())
	}
	if transErr != nil {
		log.Error("failed to finish job", slog.String("error", transErr.Error()))
	}

	var cleanup []string
	if runErr != nil {
		cleanup = append(cleanup, attempted...)
		job.ClearOutputs()
	}
	if job.Request.TempInput {
		cleanup = append(cleanup, job.Request.InputPath)
	}
	if len(cleanup) > 0 {
		if err := s.storage.CleanupTemp(ctx, cleanup); err != nil {
			log.Warn("failed to clean up job files", slog.String("error", err.Error()))
		}
	}

	s.save(ctx, job)

	status := job.GetStatus()
	s.metrics.RecordJobFinished(string(status), time.Since(started).Seconds())

	if runErr != nil {
		log.Error("job finished with error",
			slog.String("status", string(status)),
			slog.String("error", runErr.Error()),
		)
		return
	}
	log.Info("job completed",
		slog.Int("outputs", len(job.Outputs)),
		slog.Duration("elapsed", time.Since(started)),
	)
}

// save persists job, logging instead of failing the pipeline.
func (s *CutService) save(ctx context.Context, job *Job) {
	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *CutService) recordPlan(plan cut.Plan) {
	for _, t := range []cut.Treatment{cut.PassThrough, cut.SpeedUp, cut.Drop} {
		if n := plan.Count(t); n > 0 {
			s.metrics.RecordSegments(string(plan.Mode), t.String(), n)
		}
	}
}

// ownedPaths keeps the paths that live under the scratch directory.
func (s *CutService) ownedPaths(paths []string) []string {
	root, err := filepath.Abs(s.storage.TempDir())
	if err != nil {
		return nil
	}
	var owned []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		owned = append(owned, p)
	}
	return owned
}

// sanitizeName turns an upload filename into a safe temp file prefix.
func sanitizeName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "_" {
		return "upload"
	}
	return base
}
