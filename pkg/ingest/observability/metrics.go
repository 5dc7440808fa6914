package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every fathom-etl metric.
const Namespace = "fathom_etl"

// Source labels
const (
	SourceExport  = "export"
	SourceWebhook = "webhook"
)

// Status labels
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// IngestMetrics holds the Prometheus metrics for transcript ingest.
type IngestMetrics struct {
	DocumentsTotal     *prometheus.CounterVec
	MessagesTotal      *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	ProcessingSeconds  *prometheus.HistogramVec
	SpeakerResolutions *prometheus.CounterVec
	SinkWritesTotal    *prometheus.CounterVec
	InFlight           prometheus.Gauge
}

// NewIngestMetrics registers the ingest metrics with reg.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	factory := promauto.With(reg)

	return &IngestMetrics{
		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "documents_total",
				Help:      "Transcripts processed by source and outcome",
			},
			[]string{"source", "status"},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "messages_total",
				Help:      "Messages produced by source",
			},
			[]string{"source"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "errors_total",
				Help:      "Failed transcripts by error code",
			},
			[]string{"source", "code"},
		),
		ProcessingSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "processing_seconds",
				Help:      "Time to parse and write one transcript",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"source"},
		),
		SpeakerResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "speaker_resolutions_total",
				Help:      "Speaker labels by whether the roster resolved them",
			},
			[]string{"resolved"},
		),
		SinkWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "sink_writes_total",
				Help:      "Message writes by sink and outcome",
			},
			[]string{"sink", "status"},
		),
		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "documents_in_flight",
				Help:      "Transcripts currently being processed",
			},
		),
	}
}

// RecordDocument records one processed transcript.
func (m *IngestMetrics) RecordDocument(source string, messages int, seconds float64) {
	m.DocumentsTotal.WithLabelValues(source, StatusSuccess).Inc()
	m.MessagesTotal.WithLabelValues(source).Add(float64(messages))
	m.ProcessingSeconds.WithLabelValues(source).Observe(seconds)
}

// RecordFailure records a transcript that failed with code.
func (m *IngestMetrics) RecordFailure(source, code string) {
	m.DocumentsTotal.WithLabelValues(source, StatusFailed).Inc()
	m.ErrorsTotal.WithLabelValues(source, code).Inc()
}

// RecordSpeakers records how many speaker labels resolved.
func (m *IngestMetrics) RecordSpeakers(matched, unmatched int) {
	m.SpeakerResolutions.WithLabelValues("true").Add(float64(matched))
	m.SpeakerResolutions.WithLabelValues("false").Add(float64(unmatched))
}

// RecordSinkWrite records a write to sink.
func (m *IngestMetrics) RecordSinkWrite(sink string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	m.SinkWritesTotal.WithLabelValues(sink, status).Inc()
}
