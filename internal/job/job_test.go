package job

import (
	"errors"
	"testing"
	"time"

	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/silence"
)

func testRequest() Request {
	return Request{
		InputPath: "talk.mp4",
		Modes:     []cut.Mode{cut.ModeSilent},
		Params:    silence.DefaultParams(),
		Options:   cut.DefaultOptions(),
		Export:    ExportVideo,
	}
}

func TestNew(t *testing.T) {
	job := New(testRequest())

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if job.Outputs == nil {
		t.Error("expected Outputs to be initialized")
	}
	if job.Request.InputPath != "talk.mp4" {
		t.Errorf("expected request to be stored, got %+v", job.Request)
	}
}

func TestNewWithID_CopiesRequest(t *testing.T) {
	req := testRequest()
	job := NewWithID("test-job-123", req)

	if job.ID != "test-job-123" {
		t.Errorf("expected ID test-job-123, got %s", job.ID)
	}

	req.Modes[0] = cut.ModeVoiced
	if job.Request.Modes[0] != cut.ModeSilent {
		t.Error("job must not share the caller's mode slice")
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to CANCELLED", StatusInQueue, StatusCancelled, false},
		{"IN_QUEUE to TIMED_OUT", StatusInQueue, StatusTimedOut, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"RUNNING to TIMED_OUT", StatusRunning, StatusTimedOut, false},
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, true},
		{"COMPLETED to IN_QUEUE", StatusCompleted, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
		{"TIMED_OUT to RUNNING", StatusTimedOut, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test", testRequest())
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition for %s -> %s, got %v", tt.from, tt.to, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	job := New(testRequest())
	beforeStart := time.Now()

	if err := job.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, job.Status)
	}
	if job.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestJob_Complete(t *testing.T) {
	job := New(testRequest())
	_ = job.Start()
	job.UpdateProgress(80)

	if err := job.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New(testRequest())
	_ = job.Start()

	if err := job.Fail("decode audio: no audio stream"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != "decode audio: no audio stream" {
		t.Errorf("unexpected error message %q", job.Error)
	}
}

func TestJob_FailFromTerminalKeepsError(t *testing.T) {
	job := New(testRequest())
	_ = job.Start()
	_ = job.Complete()

	if err := job.Fail("late failure"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Error != "" {
		t.Errorf("rejected transition must not record an error, got %q", job.Error)
	}
}

func TestJob_Timeout(t *testing.T) {
	job := New(testRequest())
	_ = job.Start()

	if err := job.Timeout("context deadline exceeded"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusTimedOut {
		t.Errorf("expected status %s, got %s", StatusTimedOut, job.Status)
	}
	if job.Error == "" {
		t.Error("expected timeout message to be recorded")
	}
}

func TestJob_Cancel(t *testing.T) {
	job := New(testRequest())

	if err := job.Cancel(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !job.IsTerminal() {
		t.Error("cancelled job should be terminal")
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := map[Status]bool{
		StatusInQueue:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusTimedOut:  true,
	}

	for status, want := range tests {
		job := NewWithID("test", testRequest())
		job.Status = status
		if got := job.IsTerminal(); got != want {
			t.Errorf("IsTerminal() for %s = %v, want %v", status, got, want)
		}
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := New(testRequest())

	tests := []struct {
		in   int
		want int
	}{
		{50, 50},
		{-10, 0},
		{150, 100},
	}
	for _, tt := range tests {
		job.UpdateProgress(tt.in)
		if job.Progress != tt.want {
			t.Errorf("UpdateProgress(%d): expected %d, got %d", tt.in, tt.want, job.Progress)
		}
	}
}

func TestJob_DetectionAndOutputs(t *testing.T) {
	job := New(testRequest())

	job.SetDetection(12.5, 4)
	job.AddOutput(Output{Mode: cut.ModeSilent, Path: "/tmp/a.mp4", Segments: 5, Duration: 8})
	job.AddOutput(Output{Mode: cut.ModeVoiced, Path: "/tmp/b.mp4", Segments: 4, Duration: 4.5})

	if job.SourceDuration != 12.5 || job.Intervals != 4 {
		t.Errorf("unexpected detection summary: %v / %d", job.SourceDuration, job.Intervals)
	}

	paths := job.OutputPaths()
	if len(paths) != 2 || paths[0] != "/tmp/a.mp4" || paths[1] != "/tmp/b.mp4" {
		t.Errorf("unexpected output paths %v", paths)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New(testRequest())
	job.Status = StatusRunning
	job.Progress = 50
	job.AddOutput(Output{Mode: cut.ModeSilent, Path: "/tmp/a.mp4"})

	clone := job.Clone()

	if clone.ID != job.ID || clone.Status != job.Status || clone.Progress != job.Progress {
		t.Errorf("clone differs from original: %+v", clone)
	}

	clone.Status = StatusCompleted
	if job.Status == StatusCompleted {
		t.Error("modifying clone should not affect original")
	}

	clone.Outputs[0].URL = "https://example.com/a.mp4"
	if job.Outputs[0].URL != "" {
		t.Error("modifying clone outputs should not affect original")
	}

	clone.Request.Modes[0] = cut.ModeVoiced
	if job.Request.Modes[0] != cut.ModeSilent {
		t.Error("modifying clone request should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New(testRequest())

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.Start()
		}
		done <- true
	}()

	<-done
	<-done
}

func TestJob_ClearOutputs(t *testing.T) {
	job := New(testRequest())
	job.AddOutput(Output{Mode: cut.ModeSilent, Path: "/tmp/a.mp4"})

	job.ClearOutputs()

	if len(job.OutputPaths()) != 0 {
		t.Errorf("expected no outputs, got %v", job.OutputPaths())
	}
}

func TestRequest_WithDefaults(t *testing.T) {
	t.Run("empty request", func(t *testing.T) {
		req := Request{InputPath: "talk.mp4"}.WithDefaults()

		if req.Export != ExportVideo {
			t.Errorf("expected export %s, got %s", ExportVideo, req.Export)
		}
		if len(req.Modes) != 1 || req.Modes[0] != cut.ModeSilent {
			t.Errorf("expected silent mode, got %v", req.Modes)
		}
		if req.Params != silence.DefaultParams() {
			t.Errorf("expected default params, got %+v", req.Params)
		}
		if req.Options != cut.DefaultOptions() {
			t.Errorf("expected default options, got %+v", req.Options)
		}
		if err := req.Validate(); err != nil {
			t.Errorf("expected defaulted request to validate, got %v", err)
		}
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		params := silence.Params{MagnitudeThresholdRatio: 0.05, DurationThreshold: 1}
		opts := cut.Options{MinLoudPartDuration: 0.2, SilenceSpeed: 3}
		req := Request{InputPath: "talk.mp4", Params: params, Options: opts}.WithDefaults()

		if req.Params != params {
			t.Errorf("expected params %+v, got %+v", params, req.Params)
		}
		if req.Options != opts {
			t.Errorf("expected options %+v, got %+v", opts, req.Options)
		}
	})
}
