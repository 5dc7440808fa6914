// Package intake turns Fathom webhook payloads into transcript messages and
// delivers them to the configured export directory, sinks and event stream.
package intake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/events"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/export"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/observability"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

var errNoMessages = errors.New("transcript has no messages")

// Publisher announces ingested transcripts. *events.Publisher implements it.
type Publisher interface {
	PublishTranscriptIngested(ctx context.Context, params events.TranscriptParams) error
}

// Deps are the collaborators of a Service. Directory and Logger are required.
type Deps struct {
	Directory *fathom.Directory
	Writer    *export.Writer
	Sinks     map[string]storage.Sink
	Events    Publisher
	Metrics   *observability.IngestMetrics
	Tracer    *observability.Tracer
	Logger    logging.Logger
}

// Result describes one ingested webhook.
type Result struct {
	WebhookID    int            `json:"webhook_id"`
	RecordingID  string         `json:"recording_id"`
	MessageCount int            `json:"message_count"`
	OutputPath   string         `json:"output_path,omitempty"`
	Stored       map[string]int `json:"stored,omitempty"`
	Unresolved   []string       `json:"unresolved_speakers,omitempty"`

	Messages []fathom.Message `json:"-"`
}

// Service ingests webhook payloads. It is safe for concurrent use.
type Service struct {
	deps   Deps
	logger logging.Logger
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	return &Service{
		deps:   deps,
		logger: deps.Logger.With(logging.F("component", "webhook_intake")),
	}
}

// Ingest parses hook and delivers its messages. Failures are returned as
// *pferrors.PipelineError. A failed event publication is logged only.
func (s *Service) Ingest(ctx context.Context, hook *fathom.Webhook) (*Result, error) {
	start := time.Now()
	ctx, span := s.deps.Tracer.StartWebhookSpan(ctx, hook.ID)
	defer span.End()
	sh := observability.NewSpanHelper(span)
	log := s.logger.WithContext(ctx).With(logging.F("webhook_id", hook.ID))

	if s.deps.Metrics != nil {
		s.deps.Metrics.InFlight.Inc()
		defer s.deps.Metrics.InFlight.Dec()
	}

	fail := func(err error, stage string) (*Result, error) {
		pe := pferrors.ClassifyError(err, stage)
		sh.SetError(err, string(pe.Code), pferrors.IsRetryable(pe.Code))
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordFailure(observability.SourceWebhook, string(pe.Code))
		}
		log.Error("Failed to ingest webhook",
			logging.Err(err),
			logging.F("code", string(pe.Code)),
			logging.F("stage", stage))
		return nil, pe
	}

	msgs, err := fathom.Collect(hook.Messages(s.deps.Directory))
	if err != nil {
		return fail(err, pferrors.StageParse)
	}
	if len(msgs) == 0 {
		return fail(errNoMessages, pferrors.StageParse)
	}

	res := &Result{
		WebhookID:    hook.ID,
		RecordingID:  msgs[0].RecordingID,
		MessageCount: len(msgs),
		Messages:     msgs,
	}
	lines := strings.Split(hook.Transcript.Plaintext, "\n")
	speakers := s.deps.Directory.ResolveAll(fathom.SpeakerLabels(lines))
	res.Unresolved = speakers.Unresolved()

	if s.deps.Writer != nil {
		name, err := hook.FileName()
		if err != nil {
			return fail(err, pferrors.StageExport)
		}
		if res.OutputPath, err = s.deps.Writer.WriteMessages(name, msgs); err != nil {
			return fail(err, pferrors.StageExport)
		}
	}

	names := make([]string, 0, len(s.deps.Sinks))
	for name := range s.deps.Sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n, err := s.deps.Sinks[name].UpsertMessages(ctx, msgs)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordSinkWrite(name, err)
		}
		if err != nil {
			return fail(fmt.Errorf("%s: %w", name, err), pferrors.StageStore)
		}
		if res.Stored == nil {
			res.Stored = make(map[string]int)
		}
		res.Stored[name] = n
	}

	if s.deps.Events != nil {
		if err := s.deps.Events.PublishTranscriptIngested(ctx, events.TranscriptParams{
			Recording:  recordingOf(hook, res.RecordingID),
			Messages:   msgs,
			OutputPath: res.OutputPath,
		}); err != nil {
			log.Warn("Failed to publish transcript event", logging.Err(err))
		}
	}

	if s.deps.Metrics != nil {
		stats := speakers.Stats()
		s.deps.Metrics.RecordSpeakers(stats.Matched, stats.Unmatched)
		s.deps.Metrics.RecordDocument(observability.SourceWebhook, len(msgs), time.Since(start).Seconds())
	}
	sh.SetRecording(res.RecordingID, res.MessageCount)
	sh.SetSuccess()
	log.Info("Webhook ingested",
		logging.F("recording_id", res.RecordingID),
		logging.F("messages", res.MessageCount))
	return res, nil
}

func recordingOf(hook *fathom.Webhook, id string) fathom.Recording {
	return fathom.Recording{
		ID:    id,
		URL:   hook.Recording.URL,
		Title: hook.Meeting.Title,
		Date:  hook.Meeting.ScheduledStartTime,
	}
}
