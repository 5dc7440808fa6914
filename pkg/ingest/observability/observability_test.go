package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestIngestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestMetrics(reg)

	m.RecordDocument(SourceExport, 12, 0.02)
	m.RecordDocument(SourceExport, 3, 0.01)
	m.RecordFailure(SourceWebhook, "parse_error")
	m.RecordSpeakers(5, 2)
	m.RecordSinkWrite("postgres", nil)
	m.RecordSinkWrite("postgres", errors.New("down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues(SourceExport, StatusSuccess)))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues(SourceExport)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues(SourceWebhook, StatusFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(SourceWebhook, "parse_error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SpeakerResolutions.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkWritesTotal.WithLabelValues("postgres", StatusFailed)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fathom_etl_documents_total"])
	assert.True(t, names["fathom_etl_processing_seconds"])
}

func TestTracer_NoopProvider(t *testing.T) {
	tracer := NewTracer()

	ctx, span := tracer.StartBatchSpan(context.Background(), "batch-1", 3)
	defer span.End()
	_, doc := tracer.StartDocumentSpan(ctx, "/exports/a.txt")
	h := NewSpanHelper(doc)
	h.SetRecording("209771231", 4)
	h.SetError(errors.New("bad"), "parse_error", false)
	doc.End()

	assert.Empty(t, TraceID(context.Background()))
	assert.Empty(t, TraceHeaders(context.Background()))
}

func TestTraceHeaders(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.Equal(t, map[string]string{
		"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
		"span_id":  "00f067aa0ba902b7",
	}, TraceHeaders(ctx))
}
