// Package server provides the HTTP API for the jumpcutter service.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/silence"
)

// CreateJobRequest is the HTTP request body for creating a job or a plan preview.
type CreateJobRequest struct {
	// InputPath is a media file readable by the server.
	InputPath string `json:"input_path" validate:"required_without=MediaBase64"`
	// MediaBase64 is the base64-encoded media file, used when InputPath is empty.
	MediaBase64 string `json:"media_base64" validate:"omitempty,base64"`
	// Filename names the uploaded media. Its extension selects the demuxer.
	Filename string `json:"filename" validate:"required_with=MediaBase64"`
	// OutputPath is where the output is written. Empty means server scratch space.
	OutputPath string `json:"output_path"`
	// Cut selects silent, voiced or both. Empty means silent.
	Cut string `json:"cut" validate:"omitempty,oneof=silent voiced both"`
	// Params overrides the server's detection defaults.
	Params *silence.Params `json:"params"`
	// Options overrides the server's plan defaults.
	Options *cut.Options `json:"options"`
	// Export selects rendered video or an xml project. Empty means video.
	Export string `json:"export" validate:"omitempty,oneof=video xml"`
	// Encode overrides the server's encoder defaults.
	Encode *media.EncodeOpts `json:"encode"`
	// PushToS3 indicates whether to upload every output to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// OutputResponse describes one output of a job.
type OutputResponse struct {
	Mode     string  `json:"mode"`
	Path     string  `json:"path"`
	URL      string  `json:"url,omitempty"`
	Download string  `json:"download"`
	Segments int     `json:"segments"`
	Duration float64 `json:"duration"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// Input is the media the job reads.
	Input string `json:"input"`
	// Modes lists the requested cut modes.
	Modes []string `json:"modes"`
	// Export is video or xml.
	Export string `json:"export"`
	// SourceDuration is the probed input length in seconds.
	SourceDuration float64 `json:"source_duration,omitempty"`
	// Intervals is the number of silent intervals detected.
	Intervals int `json:"intervals"`
	// Outputs lists the files written so far.
	Outputs []OutputResponse `json:"outputs"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is set once the job reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// PlanResponse is the HTTP response for a plan preview.
type PlanResponse struct {
	// Duration is the source length in seconds.
	Duration float64 `json:"duration"`
	// Intervals are the detected silent intervals.
	Intervals []silence.Interval `json:"intervals"`
	// EdgesMayInvert warns that edge trimming can invert short intervals.
	EdgesMayInvert bool `json:"edges_may_invert"`
	// Plans holds one segment plan per requested mode.
	Plans []ModePlan `json:"plans"`
}

// ModePlan is the segment plan of one mode.
type ModePlan struct {
	Mode           string        `json:"mode"`
	Segments       []cut.Segment `json:"segments"`
	OutputDuration float64       `json:"output_duration"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
