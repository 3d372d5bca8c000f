// Package metrics holds the Prometheus instrumentation of the cut pipeline
// and the HTTP API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jumpcutter"

// Metrics contains all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Job metrics
	JobsTotal    *prometheus.CounterVec
	JobsInFlight prometheus.Gauge
	JobDuration  prometheus.Histogram

	// Detection metrics
	IntervalsDetected prometheus.Counter
	DetectionDuration prometheus.Histogram
	DecodeDuration    prometheus.Histogram

	// Plan and output metrics
	SegmentsTotal  *prometheus.CounterVec
	RenderDuration *prometheus.HistogramVec
	Uploads        *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates all metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of finished jobs by final status",
		}, []string{"status"}),
		JobsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently running",
		}),
		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of a job from start to finish",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		}),

		IntervalsDetected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intervals_detected_total",
			Help:      "Total number of silent intervals detected",
		}),
		DetectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detection_duration_seconds",
			Help:      "Time spent scanning decoded audio for silence",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		DecodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent extracting and decoding the audio track",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		SegmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Total number of planned segments by mode and treatment",
		}, []string{"mode", "treatment"}),
		RenderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent writing one output",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"export"}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of output uploads by result",
		}, []string{"result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordJobStarted increments the in-flight gauge.
func (m *Metrics) RecordJobStarted() {
	m.JobsInFlight.Inc()
}

// RecordJobFinished records the final status and wall time of a job.
func (m *Metrics) RecordJobFinished(status string, durationSeconds float64) {
	m.JobsInFlight.Dec()
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordDecode records how long audio extraction took.
func (m *Metrics) RecordDecode(durationSeconds float64) {
	m.DecodeDuration.Observe(durationSeconds)
}

// RecordDetection records one detection run.
func (m *Metrics) RecordDetection(intervals int, durationSeconds float64) {
	m.IntervalsDetected.Add(float64(intervals))
	m.DetectionDuration.Observe(durationSeconds)
}

// RecordSegments adds count segments of one treatment to the mode's total.
func (m *Metrics) RecordSegments(mode, treatment string, count int) {
	m.SegmentsTotal.WithLabelValues(mode, treatment).Add(float64(count))
}

// RecordRender records how long writing one output took.
func (m *Metrics) RecordRender(export string, durationSeconds float64) {
	m.RenderDuration.WithLabelValues(export).Observe(durationSeconds)
}

// RecordUpload counts an upload attempt.
func (m *Metrics) RecordUpload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.Uploads.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}
