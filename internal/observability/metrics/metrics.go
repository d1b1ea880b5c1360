// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_transcribe"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Batch metrics
	BatchJobsTotal    prometheus.Counter
	BatchJobsFailed   *prometheus.CounterVec
	BatchJobDuration  prometheus.Histogram
	SegmentsProduced  prometheus.Counter
	SegmentDrift      prometheus.Histogram
	ScratchCleanupErr prometheus.Counter

	// Backend metrics
	BackendLatency *prometheus.HistogramVec
	BackendErrors  *prometheus.CounterVec

	// Realtime metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram
	RealtimeEvents  *prometheus.CounterVec
	MalformedEvents prometheus.Counter
	BlocksFinalized *prometheus.CounterVec
	LiveFlushes     prometheus.Counter
	SignalingErrors prometheus.Counter

	// Uplink metrics
	AudioBytesSent   prometheus.Counter
	AudioFramesSent  prometheus.Counter
	AudioFramesMuted prometheus.Counter
	LimitExceeded    *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Batch metrics
		BatchJobsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_jobs_total",
			Help:      "Total number of batch transcription jobs started",
		}),
		BatchJobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_jobs_failed_total",
			Help:      "Total number of failed batch transcription jobs",
		}, []string{"reason"}),
		BatchJobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_job_duration_seconds",
			Help:      "Duration of batch transcription jobs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
		}),
		SegmentsProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_produced_total",
			Help:      "Total number of audio segments produced by the transcoder",
		}),
		SegmentDrift: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_drift_seconds",
			Help:      "Measured segment duration minus nominal segment duration",
			Buckets:   []float64{-5, -1, -0.5, -0.1, 0, 0.1, 0.5, 1, 5},
		}),
		ScratchCleanupErr: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scratch_cleanup_errors_total",
			Help:      "Total number of scratch directories that could not be removed",
		}),

		// Backend metrics
		BackendLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_latency_seconds",
			Help:      "Transcription backend call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"provider", "type"}),
		BackendErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Total number of transcription backend errors",
		}, []string{"provider", "error_type"}),

		// Realtime metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_sessions_total",
			Help:      "Total number of realtime sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_sessions_active",
			Help:      "Number of currently active realtime sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "realtime_session_duration_seconds",
			Help:      "Duration of realtime sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900, 1800, 3600},
		}),
		RealtimeEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Total number of parsed realtime events by kind and outcome (applied, ignored)",
		}, []string{"kind", "outcome"}),
		MalformedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_malformed_events_total",
			Help:      "Total number of malformed realtime events discarded",
		}),
		BlocksFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_blocks_finalized_total",
			Help:      "Total number of blocks appended to finalized logs",
		}, []string{"label"}),
		LiveFlushes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_live_flushes_total",
			Help:      "Total number of live buffer flushes",
		}),
		SignalingErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_signaling_errors_total",
			Help:      "Total number of failed signaling exchanges",
		}),

		// Uplink metrics
		AudioBytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uplink_audio_bytes_total",
			Help:      "Total audio bytes forwarded to realtime backends",
		}),
		AudioFramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uplink_audio_frames_total",
			Help:      "Total audio frames forwarded to realtime backends",
		}),
		AudioFramesMuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uplink_audio_frames_muted_total",
			Help:      "Total audio frames dropped while a session was paused",
		}),
		LimitExceeded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_limit_exceeded_total",
			Help:      "Total number of times realtime session limits were exceeded",
		}, []string{"limit_type"}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordJobStart records a batch job starting.
func (m *Metrics) RecordJobStart() {
	m.BatchJobsTotal.Inc()
}

// RecordJobEnd records a batch job ending. An empty reason means success.
func (m *Metrics) RecordJobEnd(reason string, durationSeconds float64) {
	m.BatchJobDuration.Observe(durationSeconds)
	if reason != "" {
		m.BatchJobsFailed.WithLabelValues(reason).Inc()
	}
}

// RecordSegments records segments produced by the transcoder.
func (m *Metrics) RecordSegments(n int) {
	m.SegmentsProduced.Add(float64(n))
}

// RecordDrift records measured minus nominal segment seconds.
func (m *Metrics) RecordDrift(seconds float64) {
	m.SegmentDrift.Observe(seconds)
}

// RecordCleanupError records a scratch directory left behind.
func (m *Metrics) RecordCleanupError() {
	m.ScratchCleanupErr.Inc()
}

// RecordBackendCall records a backend call latency.
func (m *Metrics) RecordBackendCall(provider, callType string, latencySeconds float64) {
	m.BackendLatency.WithLabelValues(provider, callType).Observe(latencySeconds)
}

// RecordBackendError records a backend error.
func (m *Metrics) RecordBackendError(provider, errorType string) {
	m.BackendErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordSessionStart records a realtime session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a realtime session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordEvent records a parsed realtime event. Events arriving while the
// session is paused or not live are recorded as ignored.
func (m *Metrics) RecordEvent(kind string, applied bool) {
	outcome := "applied"
	if !applied {
		outcome = "ignored"
	}
	m.RealtimeEvents.WithLabelValues(kind, outcome).Inc()
}

// RecordMalformedEvent records a discarded realtime event.
func (m *Metrics) RecordMalformedEvent() {
	m.MalformedEvents.Inc()
}

// RecordBlock records a finalized block.
func (m *Metrics) RecordBlock(label string) {
	if label == "" {
		label = "completed"
	}
	m.BlocksFinalized.WithLabelValues(label).Inc()
}

// RecordFlush records a live buffer flush.
func (m *Metrics) RecordFlush() {
	m.LiveFlushes.Inc()
}

// RecordSignalingError records a failed signaling exchange.
func (m *Metrics) RecordSignalingError() {
	m.SignalingErrors.Inc()
}

// RecordAudioSent records audio bytes and frames forwarded upstream.
func (m *Metrics) RecordAudioSent(bytes int) {
	m.AudioBytesSent.Add(float64(bytes))
	m.AudioFramesSent.Inc()
}

// RecordAudioMuted records a frame dropped while paused.
func (m *Metrics) RecordAudioMuted() {
	m.AudioFramesMuted.Inc()
}

// RecordLimitExceeded records when a session limit is exceeded.
func (m *Metrics) RecordLimitExceeded(limitType string) {
	m.LimitExceeded.WithLabelValues(limitType).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
