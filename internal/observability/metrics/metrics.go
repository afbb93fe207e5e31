// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_order_logger"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionStarts    prometheus.Counter
	SessionStops     prometheus.Counter
	SessionListening prometheus.Gauge
	EngineRestarts   *prometheus.CounterVec

	// Recognition metrics
	TranscriptsInterim prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	EngineErrors       *prometheus.CounterVec

	// Normalization metrics
	NormalizeSkipped   prometheus.Counter
	NormalizeCorrected prometheus.Counter
	NormalizeFallback  *prometheus.CounterVec

	// Pipeline metrics
	ExtractionAccepted prometheus.Counter
	ExtractionRejected prometheus.Counter
	DedupSuppressed    prometheus.Counter
	PipelineDuration   prometheus.Histogram

	// Persistence metrics
	PersistAttempts prometheus.Counter
	PersistRetries  prometheus.Counter
	PersistFailures prometheus.Counter
	PersistSuccess  prometheus.Counter

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
		// Session metrics
		SessionStarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Total number of capture sessions started",
		}),
		SessionStops: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_stops_total",
			Help:      "Total number of capture sessions stopped by the user",
		}),
		SessionListening: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_listening",
			Help:      "Whether the capture session is currently listening (1) or not (0)",
		}),
		EngineRestarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_restarts_total",
			Help:      "Total number of recognition engine restarts",
		}, []string{"cause"}),

		// Recognition metrics
		TranscriptsInterim: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Total number of interim transcript fragments received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts received",
		}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Total number of recognition engine errors by tier",
		}, []string{"tier", "code"}),

		// Normalization metrics
		NormalizeSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_skipped_total",
			Help:      "Total number of utterances with no price signal that skipped the corrector",
		}),
		NormalizeCorrected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_corrected_total",
			Help:      "Total number of utterances rewritten by the corrector",
		}),
		NormalizeFallback: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalize_fallback_total",
			Help:      "Total number of utterances that fell back to raw text",
		}, []string{"reason"}),

		// Pipeline metrics
		ExtractionAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_accepted_total",
			Help:      "Total number of utterances that produced a valid order draft",
		}),
		ExtractionRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_rejected_total",
			Help:      "Total number of utterances rejected by the extraction grammar",
		}),
		DedupSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_suppressed_total",
			Help:      "Total number of duplicate utterances suppressed",
		}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end duration of the normalize-extract-record pipeline",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		// Persistence metrics
		PersistAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_attempts_total",
			Help:      "Total number of order persistence attempts",
		}),
		PersistRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_retries_total",
			Help:      "Total number of order persistence retries",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Total number of orders lost after the retry was exhausted",
		}),
		PersistSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_success_total",
			Help:      "Total number of orders successfully persisted",
		}),

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

// RecordSessionStart records a capture session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionStarts.Inc()
	m.SessionListening.Set(1)
}

// RecordSessionStop records a capture session being stopped by the user.
func (m *Metrics) RecordSessionStop() {
	m.SessionStops.Inc()
	m.SessionListening.Set(0)
}

// RecordEngineRestart records an engine restart and its cause.
func (m *Metrics) RecordEngineRestart(cause string) {
	m.EngineRestarts.WithLabelValues(cause).Inc()
}

// RecordInterimTranscript records an interim transcript fragment.
func (m *Metrics) RecordInterimTranscript() {
	m.TranscriptsInterim.Inc()
}

// RecordFinalTranscript records a final transcript.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordEngineError records a recognition engine error by tier.
func (m *Metrics) RecordEngineError(tier, code string) {
	m.EngineErrors.WithLabelValues(tier, code).Inc()
}

// RecordNormalizeSkipped records a corrector call avoided by the
// price-signal pre-filter.
func (m *Metrics) RecordNormalizeSkipped() {
	m.NormalizeSkipped.Inc()
}

// RecordNormalizeCorrected records a successful corrector rewrite.
func (m *Metrics) RecordNormalizeCorrected() {
	m.NormalizeCorrected.Inc()
}

// RecordNormalizeFallback records a fallback to raw text.
func (m *Metrics) RecordNormalizeFallback(reason string) {
	m.NormalizeFallback.WithLabelValues(reason).Inc()
}

// RecordExtraction records the outcome of the extraction grammar.
func (m *Metrics) RecordExtraction(accepted bool) {
	if accepted {
		m.ExtractionAccepted.Inc()
	} else {
		m.ExtractionRejected.Inc()
	}
}

// RecordDedupSuppressed records a duplicate utterance being discarded.
func (m *Metrics) RecordDedupSuppressed() {
	m.DedupSuppressed.Inc()
}

// RecordPipelineDuration records the end-to-end pipeline latency.
func (m *Metrics) RecordPipelineDuration(seconds float64) {
	m.PipelineDuration.Observe(seconds)
}

// RecordPersistAttempt records a store submission attempt.
func (m *Metrics) RecordPersistAttempt(retry bool) {
	m.PersistAttempts.Inc()
	if retry {
		m.PersistRetries.Inc()
	}
}

// RecordPersistOutcome records the final outcome of a submission.
func (m *Metrics) RecordPersistOutcome(success bool) {
	if success {
		m.PersistSuccess.Inc()
	} else {
		m.PersistFailures.Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
