// Package observability holds the tracing and metrics for transcript ingest.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for ingest spans.
const TracerName = "fathom-etl/ingest"

// Span attribute keys
const (
	AttrBatchID      = "batch_id"
	AttrDocument     = "document"
	AttrRecordingID  = "recording_id"
	AttrSource       = "source"
	AttrStage        = "stage"
	AttrMessageCount = "message_count"
	AttrErrorCode    = "error_code"
	AttrRetryable    = "retryable"
)

// Span names
const (
	SpanBatch       = "ingest.batch"
	SpanDocument    = "ingest.document"
	SpanWebhook     = "ingest.webhook"
	SpanStagePrefix = "ingest.stage."
)

// Tracer starts ingest spans on the global tracer provider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartBatchSpan starts the root span of a batch run.
func (t *Tracer) StartBatchSpan(ctx context.Context, batchID string, files int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanBatch,
		trace.WithAttributes(
			attribute.String(AttrBatchID, batchID),
			attribute.Int("files", files),
		),
	)
}

// StartDocumentSpan starts a span for one export file.
func (t *Tracer) StartDocumentSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDocument,
		trace.WithAttributes(attribute.String(AttrDocument, path)),
	)
}

// StartWebhookSpan starts a span for one webhook delivery.
func (t *Tracer) StartWebhookSpan(ctx context.Context, webhookID int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanWebhook,
		trace.WithAttributes(attribute.Int("webhook_id", webhookID)),
	)
}

// StartStageSpan starts a child span for a pipeline stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanStagePrefix+stage,
		trace.WithAttributes(attribute.String(AttrStage, stage)),
	)
}

// SpanHelper sets ingest attributes on a span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper wraps span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetRecording records the recording a span produced messages for.
func (h *SpanHelper) SetRecording(recordingID string, messages int) {
	h.span.SetAttributes(
		attribute.String(AttrRecordingID, recordingID),
		attribute.Int(AttrMessageCount, messages),
	)
}

// SetError records err with its classified code.
func (h *SpanHelper) SetError(err error, code string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorCode, code),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace ID in ctx, or "".
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the span ID in ctx, or "".
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// TraceHeaders returns the trace and span IDs in ctx for propagation in
// event payloads.
func TraceHeaders(ctx context.Context) map[string]string {
	headers := make(map[string]string)
	if id := TraceID(ctx); id != "" {
		headers["trace_id"] = id
	}
	if id := SpanID(ctx); id != "" {
		headers["span_id"] = id
	}
	return headers
}
