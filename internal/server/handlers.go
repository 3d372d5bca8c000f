package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/jumpcutter/internal/cut"
	"github.com/maauso/jumpcutter/internal/job"
	"github.com/maauso/jumpcutter/internal/media"
	"github.com/maauso/jumpcutter/internal/silence"
	"github.com/maauso/jumpcutter/internal/storage"
)

// Defaults fill the request fields a client leaves out.
type Defaults struct {
	Params  silence.Params
	Options cut.Options
	Encode  media.EncodeOpts
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.CutService
	validator          *validator.Validate
	logger             *slog.Logger
	defaults           Defaults
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithDefaults sets the detection, plan and encoder defaults.
func WithDefaults(d Defaults) HandlerOption {
	return func(h *Handlers) {
		h.defaults = d
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.CutService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
		defaults: Defaults{
			Params:  silence.DefaultParams(),
			Options: cut.DefaultOptions(),
		},
		enableAsyncProcess: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	createdJob, err := h.service.CreateJob(r.Context(), req)
	if err != nil {
		if req.TempInput {
			h.service.DiscardUpload(r.Context(), req.InputPath)
		}
		if errors.Is(err, job.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Use context.WithoutCancel so the job outlives the request.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if _, processErr := h.service.Process(ctx, jobID); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.Any("modes", createdJob.Request.Modes),
		slog.String("export", string(createdJob.Request.Export)),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// Plans handles POST /plans requests. It detects silence and returns the
// segment plans without rendering anything.
func (h *Handlers) Plans(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}
	if req.TempInput {
		defer h.service.DiscardUpload(r.Context(), req.InputPath)
	}

	preview, err := h.service.Preview(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, job.ErrNoAudio):
			writeError(w, http.StatusUnprocessableEntity, err.Error(), "NO_AUDIO")
		default:
			h.logger.Error("failed to build plan",
				slog.String("input", req.InputPath),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to build plan", "PLAN_FAILED")
		}
		return
	}

	resp := PlanResponse{
		Duration:       preview.Duration,
		Intervals:      preview.Intervals,
		EdgesMayInvert: preview.EdgesMayInvert,
		Plans:          make([]ModePlan, 0, len(preview.Plans)),
	}
	for _, p := range preview.Plans {
		resp.Plans = append(resp.Plans, ModePlan{
			Mode:           string(p.Mode),
			Segments:       p.Segments,
			OutputDuration: p.OutputDuration,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(foundJob))
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := ListJobsResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err, "failed to delete job", "JOB_DELETE_FAILED")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadOutput handles GET /jobs/{id}/outputs/{index} requests.
func (h *Handlers) DownloadOutput(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "output index must be an integer", "INVALID_INDEX")
		return
	}

	rc, out, err := h.service.OpenOutput(r.Context(), jobID, index)
	if err != nil {
		h.writeJobError(w, jobID, err, "failed to open output", "OUTPUT_FETCH_FAILED")
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", storage.ContentType(out.Path))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(out.Path)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream output",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// decodeRequest parses and validates a CreateJobRequest and turns it into a
// job request. Uploaded media is staged to scratch storage. On failure the
// error response is already written.
func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request) (job.Request, bool) {
	// Decode over copies of the defaults so a partial params, options or
	// encode object only overrides the fields it names.
	params, options, encode := h.defaults.Params, h.defaults.Options, h.defaults.Encode
	body := CreateJobRequest{Params: &params, Options: &options, Encode: &encode}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return job.Request{}, false
	}

	if err := h.validator.Struct(body); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return job.Request{}, false
	}

	req, err := h.toRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return job.Request{}, false
	}

	if body.MediaBase64 != "" && body.InputPath == "" {
		data, err := base64.StdEncoding.DecodeString(body.MediaBase64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "media_base64 is not valid base64", "VALIDATION_ERROR")
			return job.Request{}, false
		}
		path, err := h.service.StageUpload(r.Context(), body.Filename, bytes.NewReader(data))
		if err != nil {
			h.logger.Error("failed to stage upload",
				slog.String("filename", body.Filename),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to store upload", "UPLOAD_FAILED")
			return job.Request{}, false
		}
		req.InputPath = path
		req.TempInput = true
	}

	return req, true
}

// toRequest maps the DTO onto a job request. Objects the body sets to null
// fall back to the handler defaults. InputPath is left empty for uploads
// until the media is staged.
func (h *Handlers) toRequest(body CreateJobRequest) (job.Request, error) {
	req := job.Request{
		InputPath:  body.InputPath,
		OutputPath: body.OutputPath,
		Params:     h.defaults.Params,
		Options:    h.defaults.Options,
		Export:     job.Export(body.Export),
		Encode:     h.defaults.Encode,
		PushToS3:   body.PushToS3,
	}
	if body.Cut != "" {
		modes, err := cut.ParseCutMode(body.Cut)
		if err != nil {
			return job.Request{}, err
		}
		req.Modes = modes
	}
	if body.Params != nil {
		req.Params = *body.Params
	}
	if body.Options != nil {
		req.Options = *body.Options
	}
	if body.Encode != nil {
		req.Encode = *body.Encode
	}

	// Validate before staging so a bad request never writes an upload.
	check := req.WithDefaults()
	if check.InputPath == "" {
		check.InputPath = body.Filename
	}
	if err := check.Validate(); err != nil {
		return job.Request{}, err
	}
	return req, nil
}

func (h *Handlers) writeJobError(w http.ResponseWriter, jobID string, err error, message, code string) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
	case errors.Is(err, job.ErrOutputNotFound):
		writeError(w, http.StatusNotFound, "output not found", "OUTPUT_NOT_FOUND")
	case errors.Is(err, job.ErrJobActive):
		writeError(w, http.StatusConflict, "job is still active", "JOB_ACTIVE")
	default:
		h.logger.Error(message,
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, message, code)
	}
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:             j.ID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		Error:          j.Error,
		Input:          j.Request.InputPath,
		Modes:          make([]string, 0, len(j.Request.Modes)),
		Export:         string(j.Request.Export),
		SourceDuration: j.SourceDuration,
		Intervals:      j.Intervals,
		Outputs:        make([]OutputResponse, 0, len(j.Outputs)),
		CreatedAt:      j.CreatedAt,
	}
	for _, m := range j.Request.Modes {
		resp.Modes = append(resp.Modes, string(m))
	}
	for i, o := range j.Outputs {
		resp.Outputs = append(resp.Outputs, OutputResponse{
			Mode:     string(o.Mode),
			Path:     o.Path,
			URL:      o.URL,
			Download: fmt.Sprintf("/jobs/%s/outputs/%d", j.ID, i),
			Segments: o.Segments,
			Duration: o.Duration,
		})
	}
	if !j.CompletedAt.IsZero() {
		completed := j.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
