// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "caption_ingress"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Ingest metrics
	CaptionsReceived prometheus.Counter
	CaptionsIgnored  *prometheus.CounterVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionDuration prometheus.Histogram

	// Segmenter metrics
	DraftsActive      prometheus.Gauge
	SegmentsCompleted *prometheus.CounterVec

	// Emission metrics
	UtterancesEmitted prometheus.Counter
	DeltasEmitted     prometheus.Counter
	DedupSuppressed   prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Sink metrics
	SinkDeliveries   *prometheus.CounterVec
	SinkFallbacks    prometheus.Counter
	SinkLatency      prometheus.Histogram
	WatchdogRestarts prometheus.Counter
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		CaptionsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captions_received_total",
			Help:      "Total number of caption snapshots received",
		}),
		CaptionsIgnored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captions_ignored_total",
			Help:      "Total number of caption snapshots ignored",
		}, []string{"reason"}),

		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active caption sessions",
		}),
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of caption sessions started",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of caption sessions in seconds",
			Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),

		DraftsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drafts_active",
			Help:      "Number of per-speaker drafts currently open",
		}),
		SegmentsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_completed_total",
			Help:      "Total number of caption segments finalized",
		}, []string{"reason"}),

		UtterancesEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_emitted_total",
			Help:      "Total number of final utterances emitted downstream",
		}),
		DeltasEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_emitted_total",
			Help:      "Total number of caption deltas emitted downstream",
		}),
		DedupSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_suppressed_total",
			Help:      "Total number of emissions suppressed as duplicates",
		}),

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

		SinkDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_deliveries_total",
			Help:      "Total number of sink delivery attempts",
		}, []string{"sink", "outcome"}),
		SinkFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_fallbacks_total",
			Help:      "Total number of utterances written to the fallback file",
		}),
		SinkLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_latency_seconds",
			Help:      "HTTP sink delivery latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		WatchdogRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_stalls_total",
			Help:      "Total number of caption stalls detected by the watchdog",
		}),
	}
}

// RecordCaptionReceived records a caption snapshot accepted for processing.
func (m *Metrics) RecordCaptionReceived() {
	m.CaptionsReceived.Inc()
}

// RecordCaptionIgnored records a caption snapshot discarded before processing.
func (m *Metrics) RecordCaptionIgnored(reason string) {
	m.CaptionsIgnored.WithLabelValues(reason).Inc()
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session closing.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSegmentCompleted records a segment finalized for the given reason.
func (m *Metrics) RecordSegmentCompleted(reason string) {
	m.SegmentsCompleted.WithLabelValues(reason).Inc()
}

// SetActiveDrafts sets the current number of open drafts.
func (m *Metrics) SetActiveDrafts(n int) {
	m.DraftsActive.Set(float64(n))
}

// RecordUtteranceEmitted records a final utterance sent downstream.
func (m *Metrics) RecordUtteranceEmitted() {
	m.UtterancesEmitted.Inc()
}

// RecordDeltaEmitted records a caption delta sent downstream.
func (m *Metrics) RecordDeltaEmitted() {
	m.DeltasEmitted.Inc()
}

// RecordDedupSuppressed records an emission dropped by the dedup gate.
func (m *Metrics) RecordDedupSuppressed() {
	m.DedupSuppressed.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordSinkDelivery records a sink delivery attempt.
func (m *Metrics) RecordSinkDelivery(sink string, err error, latencySeconds float64) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.SinkDeliveries.WithLabelValues(sink, outcome).Inc()
	if sink == "http" {
		m.SinkLatency.Observe(latencySeconds)
	}
}

// RecordSinkFallback records an utterance written to the fallback file.
func (m *Metrics) RecordSinkFallback() {
	m.SinkFallbacks.Inc()
}

// RecordWatchdogStall records a caption stall detected by the watchdog.
func (m *Metrics) RecordWatchdogStall() {
	m.WatchdogRestarts.Inc()
}
