package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/jumpcutter/internal/audio"
	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/metrics"
	"github.com/maauso/jumpcutter/internal/silence"
	"github.com/maauso/jumpcutter/internal/storage"
)

type mockDecoder struct {
	mock.Mock
}

func (m *mockDecoder) Decode(ctx context.Context, mediaPath string, opts audio.DecodeOpts) (silence.Buffer, error) {
	args := m.Called(ctx, mediaPath, opts)
	return args.Get(0).(silence.Buffer), args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Probe(ctx context.Context, path string) (media.Info, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(media.Info), args.Error(1)
}

func (m *mockProcessor) RenderPlan(ctx context.Context, src string, plan cut.Plan, output string, opts media.EncodeOpts) error {
	args := m.Called(ctx, src, plan, output, opts)
	return args.Error(0)
}

func (m *mockProcessor) JoinVideos(ctx context.Context, paths []string, output string) error {
	args := m.Called(ctx, paths, output)
	return args.Error(0)
}

// speechBuffer is 3s at 100Hz: loud, silent between 1s and 2s, loud.
// With default params it yields one interval of roughly (1.09, 1.89).
func speechBuffer() silence.Buffer {
	const rate = 100
	data := make([]float64, 3*rate)
	for i := range data {
		if i >= rate && i < 2*rate {
			continue
		}
		if i%2 == 0 {
			data[i] = 0.5
		} else {
			data[i] = -0.5
		}
	}
	return silence.Buffer{Data: data, Channels: 1, SampleRate: rate}
}

func videoInfo() media.Info {
	return media.Info{
		Duration:        3,
		HasVideo:        true,
		FrameRate:       25,
		Width:           1280,
		Height:          720,
		HasAudio:        true,
		AudioChannels:   1,
		AudioSampleRate: 48000,
	}
}

type serviceFixture struct {
	svc       *CutService
	repo      *MemoryRepository
	decoder   *mockDecoder
	processor *mockProcessor
	store     *storage.LocalStorage
	metrics   *metrics.Metrics
	dir       string
}

func newFixture(t *testing.T, cfg ServiceConfig) *serviceFixture {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.NewLocalStorage(filepath.Join(dir, "scratch"))
	require.NoError(t, err)

	f := &serviceFixture{
		repo:      NewMemoryRepository(),
		decoder:   &mockDecoder{},
		processor: &mockProcessor{},
		store:     store,
		metrics:   metrics.NewWithRegistry(prometheus.NewRegistry()),
		dir:       dir,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewCutService(f.repo, f.decoder, f.processor, store, f.metrics, logger, cfg)
	return f
}

// expectAnalysis stubs probing and decoding of input.
func (f *serviceFixture) expectAnalysis(input string) {
	f.processor.On("Probe", mock.Anything, input).Return(videoInfo(), nil)
	f.decoder.On("Decode", mock.Anything, input, audio.DecodeOpts{}).Return(speechBuffer(), nil)
}

// writeOutput makes a RenderPlan stub create its output file.
func writeOutput(args mock.Arguments) {
	_ = os.WriteFile(args.String(3), []byte("rendered"), 0600)
}

func TestNewCutService_Defaults(t *testing.T) {
	svc := NewCutService(NewMemoryRepository(), &mockDecoder{}, &mockProcessor{}, nil, nil, nil, ServiceConfig{})

	assert.NotNil(t, svc.logger)
	assert.NotNil(t, svc.metrics)
	assert.Equal(t, defaultMaxConcurrentJobs, svc.cfg.MaxConcurrentJobs)
}

func TestCutService_CreateJob(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, Request{InputPath: "talk.mp4"})
	require.NoError(t, err)

	assert.Equal(t, StatusInQueue, job.Status)
	assert.Equal(t, []cut.Mode{cut.ModeSilent}, job.Request.Modes)
	assert.Equal(t, ExportVideo, job.Request.Export)
	assert.Equal(t, silence.DefaultParams(), job.Request.Params)
	assert.Equal(t, cut.DefaultOptions(), job.Request.Options)

	saved, err := f.repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, saved.ID)
}

func TestCutService_CreateJob_Invalid(t *testing.T) {
	f := newFixture(t, ServiceConfig{})

	_, err := f.svc.CreateJob(context.Background(), Request{Modes: []cut.Mode{cut.ModeSilent}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	jobs, _ := f.repo.List(context.Background())
	assert.Empty(t, jobs)
}

func TestCutService_Run_Video(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	output := filepath.Join(f.dir, "out", "talk.mp4")

	f.expectAnalysis("talk.mp4")
	f.processor.On("RenderPlan", mock.Anything, "talk.mp4",
		mock.MatchedBy(func(p cut.Plan) bool {
			return p.Mode == cut.ModeSilent && p.Count(cut.Drop) == 1 && len(p.Kept()) == 2
		}),
		output, media.EncodeOpts{Codec: "libx265"},
	).Run(writeOutput).Return(nil)

	job, err := f.svc.Run(context.Background(), Request{
		InputPath:  "talk.mp4",
		OutputPath: output,
		Params:     silence.DefaultParams(),
		Options:    cut.DefaultOptions(),
		Encode:     media.EncodeOpts{Codec: "libx265"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 1, job.Intervals)
	assert.InDelta(t, 3.0, job.SourceDuration, 1e-9)
	require.Len(t, job.Outputs, 1)
	assert.Equal(t, output, job.Outputs[0].Path)
	assert.Equal(t, 2, job.Outputs[0].Segments)
	assert.InDelta(t, 2.2, job.Outputs[0].Duration, 1e-6)
	assert.FileExists(t, output)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.JobsTotal.WithLabelValues(string(StatusCompleted))), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.JobsInFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SegmentsTotal.WithLabelValues("silent", "drop")), 0)

	f.processor.AssertExpectations(t)
	f.decoder.AssertExpectations(t)
}

func TestCutService_Run_DecodeOptions(t *testing.T) {
	decode := audio.DecodeOpts{SampleRate: 16000, Channels: 1}
	f := newFixture(t, ServiceConfig{Decode: decode})
	output := filepath.Join(f.dir, "talk.mp4")

	f.processor.On("Probe", mock.Anything, "talk.mp4").Return(videoInfo(), nil)
	f.decoder.On("Decode", mock.Anything, "talk.mp4", decode).Return(speechBuffer(), nil)
	f.processor.On("RenderPlan", mock.Anything, "talk.mp4", mock.Anything, output, mock.Anything).
		Run(writeOutput).Return(nil)

	job, err := f.svc.Run(context.Background(), Request{InputPath: "talk.mp4", OutputPath: output})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.Status)
	f.decoder.AssertExpectations(t)
}

func TestCutService_Run_LogsUntiledSilentPlan(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.svc = NewCutService(f.repo, f.decoder, f.processor, f.store, f.metrics, logger, ServiceConfig{})

	output := filepath.Join(f.dir, "talk.mp4")
	f.expectAnalysis("talk.mp4")
	f.processor.On("RenderPlan", mock.Anything, "talk.mp4", mock.Anything, output, mock.Anything).
		Run(writeOutput).Return(nil)

	// Trimming 0.6s from both edges of the one second gap inverts it.
	params := silence.DefaultParams()
	params.SpaceOnEdges = 0.6
	_, err := f.svc.Run(context.Background(), Request{InputPath: "talk.mp4", OutputPath: output, Params: params})
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "silent plan does not tile the source")
}

func TestCutService_Run_BothModesXML(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectAnalysis("talk.mp4")

	job, err := f.svc.Run(context.Background(), Request{
		InputPath:  "talk.mp4",
		OutputPath: filepath.Join(f.dir, "talk.mp4"),
		Modes:      []cut.Mode{cut.ModeSilent, cut.ModeVoiced},
		Params:     silence.DefaultParams(),
		Options:    cut.DefaultOptions(),
		Export:     ExportXML,
	})
	require.NoError(t, err)
	require.Len(t, job.Outputs, 2)

	silent := filepath.Join(f.dir, "talk_silent_parts_cutted.xml")
	voiced := filepath.Join(f.dir, "talk_voiced_parts_cutted.xml")
	assert.Equal(t, silent, job.Outputs[0].Path)
	assert.Equal(t, voiced, job.Outputs[1].Path)
	assert.Equal(t, 1, job.Outputs[1].Segments)

	data, err := os.ReadFile(silent)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "<?xml"))
	assert.Contains(t, string(data), "<!DOCTYPE xmeml>")
	assert.FileExists(t, voiced)

	f.processor.AssertNotCalled(t, "RenderPlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCutService_Run_FailureRemovesOutputs(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	base := filepath.Join(f.dir, "talk.mp4")
	silent := filepath.Join(f.dir, "talk_silent_parts_cutted.mp4")
	voiced := filepath.Join(f.dir, "talk_voiced_parts_cutted.mp4")

	f.expectAnalysis("talk.mp4")
	f.processor.On("RenderPlan", mock.Anything, "talk.mp4", mock.Anything, silent, mock.Anything).
		Run(writeOutput).Return(nil)
	f.processor.On("RenderPlan", mock.Anything, "talk.mp4", mock.Anything, voiced, mock.Anything).
		Run(writeOutput).Return(errors.New("ffmpeg exited with status 1"))

	job, err := f.svc.Run(context.Background(), Request{
		InputPath:  "talk.mp4",
		OutputPath: base,
		Modes:      []cut.Mode{cut.ModeSilent, cut.ModeVoiced},
		Params:     silence.DefaultParams(),
		Options:    cut.DefaultOptions(),
	})
	require.Error(t, err)

	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, "write voiced output")
	assert.Empty(t, job.Outputs)
	assert.NoFileExists(t, silent)
	assert.NoFileExists(t, voiced)

	saved, err := f.repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, saved.Status)
}

func TestCutService_Run_NoAudio(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.processor.On("Probe", mock.Anything, "slides.mp4").
		Return(media.Info{Duration: 10, HasVideo: true, FrameRate: 30}, nil)

	job, err := f.svc.Run(context.Background(), Request{InputPath: "slides.mp4", Params: silence.DefaultParams()})

	require.ErrorIs(t, err, ErrNoAudio)
	assert.Equal(t, StatusFailed, job.Status)
	f.decoder.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything, mock.Anything)
}

func TestCutService_Run_Timeout(t *testing.T) {
	f := newFixture(t, ServiceConfig{JobTimeout: 20 * time.Millisecond})
	f.expectAnalysis("talk.mp4")
	f.processor.On("RenderPlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)

	job, err := f.svc.Run(context.Background(), Request{
		InputPath:  "talk.mp4",
		OutputPath: filepath.Join(f.dir, "talk.mp4"),
		Params:     silence.DefaultParams(),
		Options:    cut.DefaultOptions(),
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusTimedOut, job.Status)
	assert.NotEmpty(t, job.Error)
}

func TestCutService_Run_Cancelled(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	f.processor.On("Probe", mock.Anything, "talk.mp4").Return(videoInfo(), nil)
	f.decoder.On("Decode", mock.Anything, "talk.mp4", audio.DecodeOpts{}).
		Run(func(mock.Arguments) { cancel() }).
		Return(silence.Buffer{}, context.Canceled)

	job, err := f.svc.Run(ctx, Request{InputPath: "talk.mp4", Params: silence.DefaultParams()})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, job.Status)
}

func TestCutService_Run_UploadWithoutS3(t *testing.T) {
	f := newFixture(t, ServiceConfig{S3KeyPrefix: "cuts"})
	output := filepath.Join(f.dir, "talk.mp4")

	f.expectAnalysis("talk.mp4")
	f.processor.On("RenderPlan", mock.Anything, mock.Anything, mock.Anything, output, mock.Anything).
		Run(writeOutput).Return(nil)

	job, err := f.svc.Run(context.Background(), Request{
		InputPath:  "talk.mp4",
		OutputPath: output,
		Params:     silence.DefaultParams(),
		Options:    cut.DefaultOptions(),
		PushToS3:   true,
	})

	require.ErrorIs(t, err, storage.ErrS3NotConfigured)
	assert.Equal(t, StatusFailed, job.Status)
	assert.NoFileExists(t, output)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Uploads.WithLabelValues("failure")), 0)
}

func TestCutService_Process_NotQueued(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()

	job := NewWithID("cut-done", testRequest())
	_ = job.Start()
	_ = job.Complete()
	require.NoError(t, f.repo.Save(ctx, job))

	_, err := f.svc.Process(ctx, "cut-done")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Process(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCutService_Preview(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	f.expectAnalysis("talk.mp4")

	preview, err := f.svc.Preview(context.Background(), Request{
		InputPath: "talk.mp4",
		Modes:     []cut.Mode{cut.ModeSilent, cut.ModeVoiced},
		Params:    silence.DefaultParams(),
		Options:   cut.Options{MinLoudPartDuration: -1, SilenceSpeed: 4},
	})
	require.NoError(t, err)

	assert.InDelta(t, 3.0, preview.Duration, 1e-9)
	require.Len(t, preview.Intervals, 1)
	assert.InDelta(t, 1.09, preview.Intervals[0].Start, 1e-6)
	assert.InDelta(t, 1.89, preview.Intervals[0].End, 1e-6)
	assert.False(t, preview.EdgesMayInvert)

	require.Len(t, preview.Plans, 2)
	assert.Equal(t, cut.ModeSilent, preview.Plans[0].Mode)
	require.Len(t, preview.Plans[0].Segments, 3)
	assert.Equal(t, cut.SpeedUp, preview.Plans[0].Segments[1].Treatment)
	assert.InDelta(t, 2.4, preview.Plans[0].OutputDuration, 1e-6)
	assert.InDelta(t, 0.8, preview.Plans[1].OutputDuration, 1e-6)

	f.processor.AssertNotCalled(t, "RenderPlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCutService_StagedInputIsRemoved(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()

	staged, err := f.svc.StageUpload(ctx, "../my talk.mp4", strings.NewReader("media"))
	require.NoError(t, err)
	assert.Equal(t, f.store.TempDir(), filepath.Dir(staged))
	assert.Equal(t, ".mp4", filepath.Ext(staged))
	assert.True(t, strings.HasPrefix(filepath.Base(staged), "my_talk_"))

	f.expectAnalysis(staged)
	f.processor.On("RenderPlan", mock.Anything, staged, mock.Anything, mock.Anything, mock.Anything).
		Run(writeOutput).Return(nil)

	job, err := f.svc.Run(ctx, Request{
		InputPath: staged,
		Params:    silence.DefaultParams(),
		Options:   cut.DefaultOptions(),
		TempInput: true,
	})
	require.NoError(t, err)

	assert.NoFileExists(t, staged)
	require.Len(t, job.Outputs, 1)
	assert.Equal(t, f.store.TempDir(), filepath.Dir(job.Outputs[0].Path))
	assert.FileExists(t, job.Outputs[0].Path)
}

func TestCutService_OpenAndDeleteOutputs(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()

	f.expectAnalysis("talk.mp4")
	f.processor.On("RenderPlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(writeOutput).Return(nil)

	job, err := f.svc.Run(ctx, Request{InputPath: "talk.mp4", Params: silence.DefaultParams(), Options: cut.DefaultOptions()})
	require.NoError(t, err)
	path := job.Outputs[0].Path

	rc, out, err := f.svc.OpenOutput(ctx, job.ID, 0)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "rendered", string(data))
	assert.Equal(t, cut.ModeSilent, out.Mode)

	_, _, err = f.svc.OpenOutput(ctx, job.ID, 3)
	assert.ErrorIs(t, err, ErrOutputNotFound)

	require.NoError(t, f.svc.DeleteJob(ctx, job.ID))
	assert.NoFileExists(t, path)
	_, err = f.svc.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCutService_DeleteJob_KeepsExternalOutputs(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()
	output := filepath.Join(f.dir, "mine.mp4")

	f.expectAnalysis("talk.mp4")
	f.processor.On("RenderPlan", mock.Anything, mock.Anything, mock.Anything, output, mock.Anything).
		Run(writeOutput).Return(nil)

	job, err := f.svc.Run(ctx, Request{InputPath: "talk.mp4", OutputPath: output, Params: silence.DefaultParams(), Options: cut.DefaultOptions()})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteJob(ctx, job.ID))
	assert.FileExists(t, output)
}

func TestCutService_DeleteJob_Active(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()

	job, err := f.svc.CreateJob(ctx, Request{InputPath: "talk.mp4"})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteJob(ctx, job.ID), ErrJobActive)
	assert.ErrorIs(t, f.svc.DeleteJob(ctx, "missing"), ErrJobNotFound)
}

func TestCutService_ListJobs(t *testing.T) {
	f := newFixture(t, ServiceConfig{})
	ctx := context.Background()

	_, err := f.svc.CreateJob(ctx, Request{InputPath: "a.mp4"})
	require.NoError(t, err)
	_, err = f.svc.CreateJob(ctx, Request{InputPath: "b.mp4"})
	require.NoError(t, err)

	jobs, err := f.svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"talk.mp4":         "talk",
		"../../etc/passwd": "passwd",
		"my talk (1).mov":  "my_talk__1_",
		"":                 "upload",
		".mp4":             "upload",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeName(in), "sanitizeName(%q)", in)
	}
}
