package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the washing sensor service
type Metrics struct {
	// Frame pipeline metrics
	FramesCaptured   prometheus.Counter
	FramesDispatched prometheus.Counter
	FramesDropped    prometheus.Counter
	EventQueueSize   prometheus.Gauge

	// Inference metrics
	InferenceRequests  *prometheus.CounterVec
	InferenceFallbacks *prometheus.CounterVec
	InferenceDuration  *prometheus.HistogramVec
	ProviderBackoffs   *prometheus.CounterVec

	// Audio metrics
	AudioWindowsProcessed prometheus.Counter
	AudioWaterDetected    prometheus.Counter
	AudioBlowerDetected   prometheus.Counter

	// State engine metrics
	StateTransitions *prometheus.CounterVec
	IdleRegressions  prometheus.Counter
	SessionDuration  prometheus.Histogram
	SessionScore     prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Frame pipeline metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "washsense_frames_captured_total",
			Help: "Total number of camera frames captured",
		}),
		FramesDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "washsense_frames_dispatched_total",
			Help: "Total number of frames dispatched for inference",
		}),
		FramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "washsense_frames_dropped_total",
			Help: "Total number of frames dropped with no eligible provider",
		}),
		EventQueueSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "washsense_cue_event_queue_size",
			Help: "Current number of cue events awaiting the state engine",
		}),

		// Inference metrics
		InferenceRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "washsense_inference_requests_total",
			Help: "Total number of inference requests per provider",
		}, []string{"provider"}),
		InferenceFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "washsense_inference_fallbacks_total",
			Help: "Total number of inferences that degraded to neutral cues",
		}, []string{"provider"}),
		InferenceDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "washsense_inference_duration_seconds",
			Help:    "Duration of inference requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}, []string{"provider"}),
		ProviderBackoffs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "washsense_provider_backoffs_total",
			Help: "Total number of backoff windows entered per provider",
		}, []string{"provider"}),

		// Audio metrics
		AudioWindowsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "washsense_audio_windows_processed_total",
			Help: "Total number of audio windows classified",
		}),
		AudioWaterDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "washsense_audio_water_detected_total",
			Help: "Total number of audio windows classified as running water",
		}),
		AudioBlowerDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "washsense_audio_blower_detected_total",
			Help: "Total number of audio windows classified as a hand blower",
		}),

		// State engine metrics
		StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "washsense_state_transitions_total",
			Help: "Total number of state transitions",
		}, []string{"from_state", "to_state"}),
		IdleRegressions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "washsense_idle_regressions_total",
			Help: "Total number of idle timeout regressions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "washsense_session_duration_seconds",
			Help:    "Duration of completed washing sessions",
			Buckets: prometheus.ExponentialBuckets(5, 2, 8), // 5s to ~10 minutes
		}),
		SessionScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "washsense_session_score",
			Help:    "Final score of completed washing sessions",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 to 100
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "washsense_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "washsense_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "washsense_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured increments the frames captured counter
func (m *Metrics) RecordFrameCaptured() {
	m.FramesCaptured.Inc()
}

// RecordFrameDispatched increments the frames dispatched counter
func (m *Metrics) RecordFrameDispatched() {
	m.FramesDispatched.Inc()
}

// RecordFrameDropped increments the frames dropped counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// SetEventQueueSize sets the current cue event queue size
func (m *Metrics) SetEventQueueSize(size int) {
	m.EventQueueSize.Set(float64(size))
}

// RecordInference records one inference request and its outcome
func (m *Metrics) RecordInference(provider string, fellBack bool, durationSeconds float64) {
	m.InferenceRequests.WithLabelValues(provider).Inc()
	if fellBack {
		m.InferenceFallbacks.WithLabelValues(provider).Inc()
	}
	m.InferenceDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordProviderBackoff increments the backoff counter for a provider
func (m *Metrics) RecordProviderBackoff(provider string) {
	m.ProviderBackoffs.WithLabelValues(provider).Inc()
}

// RecordAudioWindow records one classified audio window
func (m *Metrics) RecordAudioWindow(water, blower bool) {
	m.AudioWindowsProcessed.Inc()
	if water {
		m.AudioWaterDetected.Inc()
	}
	if blower {
		m.AudioBlowerDetected.Inc()
	}
}

// RecordTransition records a state transition
func (m *Metrics) RecordTransition(fromState, toState string) {
	m.StateTransitions.WithLabelValues(fromState, toState).Inc()
	if toState == "IDLE" {
		m.IdleRegressions.Inc()
	}
}

// RecordSessionDone records a completed session
func (m *Metrics) RecordSessionDone(durationSeconds float64, score int) {
	m.SessionDuration.Observe(durationSeconds)
	m.SessionScore.Observe(float64(score))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
