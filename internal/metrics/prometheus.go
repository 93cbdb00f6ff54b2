package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the scribe service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture metrics
	CapturesStarted  prometheus.Counter
	CapturesFinished prometheus.Counter
	CaptureFailures  *prometheus.CounterVec
	CaptureDuration  prometheus.Histogram
	EncodedSize      prometheus.Histogram
	FramesDropped    prometheus.Counter
	ActiveCaptures   prometheus.Gauge

	// Record transform metrics
	SectionEdits    *prometheus.CounterVec
	SuggestionsSeen *prometheus.CounterVec
	ActionsApplied  *prometheus.CounterVec

	// Upstream collaborator metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamFailures *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	UpstreamRetries  *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CapturesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_captures_started_total",
			Help: "Total number of capture sessions started",
		}),
		CapturesFinished: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_captures_finished_total",
			Help: "Total number of capture sessions encoded successfully",
		}),
		CaptureFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_capture_failures_total",
			Help: "Total number of failed capture operations",
		}, []string{"reason"}),
		CaptureDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_capture_duration_seconds",
			Help:    "Duration of encoded captures in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		EncodedSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_encoded_audio_bytes",
			Help:    "Size of encoded WAV containers in bytes",
			Buckets: prometheus.ExponentialBuckets(32*1024, 2, 12), // 32KB to ~64MB
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "scribe_capture_frames_dropped_total",
			Help: "Total number of captured frames dropped",
		}),
		ActiveCaptures: f.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_active_captures",
			Help: "Current number of capture sessions recording or paused",
		}),

		SectionEdits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_section_edits_total",
			Help: "Total number of section text edits parsed back into records",
		}, []string{"section"}),
		SuggestionsSeen: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_suggestions_total",
			Help: "Total number of suggestions shown, by source",
		}, []string{"source"}),
		ActionsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_suggestion_actions_total",
			Help: "Total number of suggestion actions applied",
		}, []string{"action", "outcome"}),

		UpstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_upstream_requests_total",
			Help: "Total number of requests sent to collaborator services",
		}, []string{"operation"}),
		UpstreamFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_upstream_failures_total",
			Help: "Total number of failed collaborator requests",
		}, []string{"operation"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_upstream_duration_seconds",
			Help:    "Duration of collaborator requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}, []string{"operation"}),
		UpstreamRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_upstream_retries_total",
			Help: "Total number of collaborator request retries",
		}, []string{"operation"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordCaptureStarted records a capture session entering recording
func (m *Metrics) RecordCaptureStarted() {
	if m == nil {
		return
	}
	m.CapturesStarted.Inc()
	m.ActiveCaptures.Inc()
}

// RecordCaptureEnded marks a capture session as no longer active
func (m *Metrics) RecordCaptureEnded() {
	if m == nil {
		return
	}
	m.ActiveCaptures.Dec()
}

// RecordCaptureFinished records a successfully encoded capture
func (m *Metrics) RecordCaptureFinished(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.CapturesFinished.Inc()
	m.CaptureDuration.Observe(durationSeconds)
	m.EncodedSize.Observe(float64(sizeBytes))
}

// RecordCaptureFailure records a failed capture operation
func (m *Metrics) RecordCaptureFailure(reason string) {
	if m == nil {
		return
	}
	m.CaptureFailures.WithLabelValues(reason).Inc()
}

// RecordFramesDropped adds n dropped frames
func (m *Metrics) RecordFramesDropped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.FramesDropped.Add(float64(n))
}

// RecordSectionEdit records a section parsed back from text
func (m *Metrics) RecordSectionEdit(section string) {
	if m == nil {
		return
	}
	m.SectionEdits.WithLabelValues(section).Inc()
}

// RecordSuggestions records n suggestions received from source
func (m *Metrics) RecordSuggestions(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.SuggestionsSeen.WithLabelValues(source).Add(float64(n))
}

// RecordAction records an applied suggestion action
func (m *Metrics) RecordAction(action, outcome string) {
	if m == nil {
		return
	}
	m.ActionsApplied.WithLabelValues(action, outcome).Inc()
}

// RecordUpstreamRequest records a collaborator request and its outcome
func (m *Metrics) RecordUpstreamRequest(operation string, durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(operation).Inc()
	m.UpstreamDuration.WithLabelValues(operation).Observe(durationSeconds)
	if failed {
		m.UpstreamFailures.WithLabelValues(operation).Inc()
	}
}

// RecordUpstreamRetry increments the retry counter
func (m *Metrics) RecordUpstreamRetry(operation string) {
	if m == nil {
		return
	}
	m.UpstreamRetries.WithLabelValues(operation).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
