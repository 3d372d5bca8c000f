// Package job provides the Job aggregate for cut jobs, its repository port
// and the CutService use case that runs decode, detection, planning and
// rendering for a job.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/job/id"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/silence"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for a processing slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the job exceeded its processing deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Export selects what a job writes for each mode.
type Export string

const (
	// ExportVideo renders the cut media with ffmpeg.
	ExportVideo Export = "video"
	// ExportXML writes an xmeml project file for an editor.
	ExportXML Export = "xml"
)

// Request describes one cut: where to read, what to detect and what to write.
type Request struct {
	// InputPath is the source media file.
	InputPath string `json:"input_path" validate:"required"`
	// OutputPath is the requested output. Empty means next to the job's
	// scratch files.
	OutputPath string `json:"output_path,omitempty"`
	// Modes lists the cut modes to produce, one output each.
	Modes []cut.Mode `json:"modes" validate:"required,min=1,max=2,unique,dive,oneof=silent voiced"`
	// Params configures silence detection.
	Params silence.Params `json:"params"`
	// Options configures the segment plan.
	Options cut.Options `json:"options"`
	// Export selects rendered media or a project file.
	Export Export `json:"export" validate:"oneof=video xml"`
	// Encode selects the video encoder for rendered media.
	Encode media.EncodeOpts `json:"encode"`
	// PushToS3 uploads every output after it is written.
	PushToS3 bool `json:"push_to_s3"`
	// TempInput marks InputPath as a staged upload that is removed once the
	// job finishes.
	TempInput bool `json:"-"`
}

// Clone returns a copy of r that shares no slices with it.
func (r Request) Clone() Request {
	c := r
	c.Modes = append([]cut.Mode(nil), r.Modes...)
	return c
}

// Output is one file a job produced.
type Output struct {
	// Mode is the cut mode the output was built for.
	Mode cut.Mode `json:"mode"`
	// Path is the local path of the output.
	Path string `json:"path"`
	// URL is set when the output was uploaded.
	URL string `json:"url,omitempty"`
	// Segments counts the kept segments.
	Segments int `json:"segments"`
	// Duration is the expected output duration in seconds.
	Duration float64 `json:"duration"`
}

// Job represents a cut job aggregate.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100).
	Progress int
	// Error contains any error message if the job failed.
	Error string
	// Request is what the job was asked to do.
	Request Request
	// SourceDuration is the probed length of the input, in seconds.
	SourceDuration float64
	// Intervals is the number of silent intervals detected.
	Intervals int
	// Outputs lists the files written so far, one per mode.
	Outputs []Output
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New(req Request) *Job {
	return NewWithID(id.Generate(), req)
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID string, req Request) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		Request:   req.Clone(),
		Outputs:   make([]Output, 0, len(req.Modes)),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.Progress = 100
		j.CompletedAt = j.UpdatedAt
	case StatusFailed, StatusCancelled, StatusTimedOut:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state and sets progress to 100.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
// The message is only recorded when the transition is allowed.
func (j *Job) Fail(errMsg string) error {
	return j.finishWithError(StatusFailed, errMsg)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT state with an error message.
func (j *Job) Timeout(errMsg string) error {
	return j.finishWithError(StatusTimedOut, errMsg)
}

func (j *Job) finishWithError(status Status, errMsg string) error {
	if err := j.TransitionTo(status); err != nil {
		return err
	}
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage, clamped to 0-100.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetDetection records the probed source length and the detected interval count.
func (j *Job) SetDetection(sourceDuration float64, intervals int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.SourceDuration = sourceDuration
	j.Intervals = intervals
	j.UpdatedAt = time.Now()
}

// AddOutput appends a written output.
func (j *Job) AddOutput(out Output) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Outputs = append(j.Outputs, out)
	j.UpdatedAt = time.Now()
}

// ClearOutputs forgets every recorded output.
func (j *Job) ClearOutputs() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Outputs = make([]Output, 0)
	j.UpdatedAt = time.Now()
}

// OutputPaths returns the local paths of every output written so far.
func (j *Job) OutputPaths() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	paths := make([]string, 0, len(j.Outputs))
	for _, o := range j.Outputs {
		paths = append(paths, o.Path)
	}
	return paths
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled ||
		j.Status == StatusTimedOut
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	outputs := make([]Output, len(j.Outputs))
	copy(outputs, j.Outputs)

	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		Progress:       j.Progress,
		Error:          j.Error,
		Request:        j.Request.Clone(),
		SourceDuration: j.SourceDuration,
		Intervals:      j.Intervals,
		Outputs:        outputs,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
