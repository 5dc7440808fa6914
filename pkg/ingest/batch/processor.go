package batch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/events"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/export"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/observability"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// DefaultConcurrency is the default number of concurrent workers.
const DefaultConcurrency = 4

// Config configures the batch processor.
type Config struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int

	// DryRun parses files without writing output, storing or publishing.
	DryRun bool

	// HeaderOptions are passed to every ParseDocument call.
	HeaderOptions []fathom.HeaderOption

	// OnProgress receives a snapshot after every progress change.
	OnProgress func(ProgressSnapshot)
}

// JobStore records batch runs. *storage.Repository implements it.
type JobStore interface {
	CreateJob(ctx context.Context, job *storage.IngestJob) error
	CompleteJob(ctx context.Context, job *storage.IngestJob) error
	RecordError(ctx context.Context, jobID, filePath, code, msg string) error
}

// EventPublisher announces parsed transcripts. *events.Publisher implements it.
type EventPublisher interface {
	PublishTranscriptIngested(ctx context.Context, params events.TranscriptParams) error
	PublishJobProgress(ctx context.Context, params events.JobProgressParams) error
	PublishJobCompleted(ctx context.Context, params events.JobCompletedParams) error
}

// Deps are the collaborators of a Processor. Only Directory and Logger are
// required.
type Deps struct {
	Directory *fathom.Directory
	Writer    *export.Writer
	Sinks     map[string]storage.Sink
	Jobs      JobStore
	Events    EventPublisher
	Metrics   *observability.IngestMetrics
	Tracer    *observability.Tracer
	Logger    logging.Logger
}

// Result summarises a batch run.
type Result struct {
	JobID         string       `json:"job_id"`
	TotalFiles    int          `json:"total_files"`
	ImportedCount int          `json:"imported_count"`
	FailedCount   int          `json:"failed_count"`
	MessageCount  int          `json:"message_count"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   time.Time    `json:"completed_at"`
	Success       bool         `json:"success"`
	Files         []FileResult `json:"files"`
	Errors        []FileError  `json:"errors"`
}

// FileResult describes one parsed export.
type FileResult struct {
	FilePath    string   `json:"file_path"`
	OutputPath  string   `json:"output_path,omitempty"`
	RecordingID string   `json:"recording_id"`
	Messages    int      `json:"messages"`
	Unresolved  []string `json:"unresolved_speakers,omitempty"`
}

// FileError records the failure of one export.
type FileError struct {
	FilePath string             `json:"file_path"`
	Code     pferrors.ErrorCode `json:"code"`
	Stage    string             `json:"stage"`
	Error    string             `json:"error"`
}

// Processor parses directories of exports.
type Processor struct {
	cfg    Config
	deps   Deps
	logger logging.Logger

	progress *Progress
	mu       sync.Mutex
}

// NewProcessor creates a processor.
func NewProcessor(cfg Config, deps Deps) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	return &Processor{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.With(logging.F("component", "batch_processor")),
		progress: NewProgress(0),
	}
}

// Progress returns the tracker of the current or last run.
func (p *Processor) Progress() *Progress {
	return p.progress
}

// Process parses every export at path. A failing file is logged, recorded
// and skipped; only discovery errors abort the run.
func (p *Processor) Process(ctx context.Context, path string) (*Result, error) {
	files, err := Discover(path)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	return p.ProcessFiles(ctx, path, files)
}

// ProcessFiles parses files. source names the run in job records.
func (p *Processor) ProcessFiles(ctx context.Context, source string, files []string) (*Result, error) {
	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	ctx = context.WithValue(ctx, logging.BatchIDKey, jobID.String())
	ctx, span := p.deps.Tracer.StartBatchSpan(ctx, jobID.String(), len(files))
	defer span.End()

	result := &Result{
		JobID:      jobID.String(),
		TotalFiles: len(files),
		StartedAt:  time.Now(),
		Files:      []FileResult{},
		Errors:     []FileError{},
	}
	p.progress = NewProgress(len(files))
	if p.cfg.OnProgress != nil {
		p.progress.SetOnUpdate(p.cfg.OnProgress)
	}
	p.progress.Start()

	job := &storage.IngestJob{
		ID:         result.JobID,
		Status:     storage.JobStatusInProgress,
		SourcePath: source,
		TotalFiles: len(files),
		StartedAt:  result.StartedAt,
	}
	if p.recording() {
		if err := p.deps.Jobs.CreateJob(ctx, job); err != nil {
			p.logger.Warn("Failed to create job record", logging.Err(err))
		}
	}

	if p.cfg.Concurrency == 1 {
		p.processSequential(ctx, files, result)
	} else {
		p.processParallel(ctx, files, result)
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].FilePath < result.Files[j].FilePath })
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].FilePath < result.Errors[j].FilePath })
	result.CompletedAt = time.Now()
	result.Success = result.FailedCount == 0 && ctx.Err() == nil

	status := finalStatus(ctx, result)
	p.finish(ctx, job, result, status)

	if ctx.Err() != nil {
		p.progress.Cancel()
	} else {
		p.progress.Complete(result.Success)
	}
	p.logger.WithContext(ctx).Info("Batch finished",
		logging.F("files", result.TotalFiles),
		logging.F("imported", result.ImportedCount),
		logging.F("failed", result.FailedCount),
		logging.F("messages", result.MessageCount),
		logging.F("status", string(status)))
	return result, nil
}

func finalStatus(ctx context.Context, r *Result) storage.JobStatus {
	switch {
	case ctx.Err() != nil:
		return storage.JobStatusCancelled
	case r.FailedCount == 0:
		return storage.JobStatusCompleted
	case r.ImportedCount > 0:
		return storage.JobStatusCompletedErrors
	default:
		return storage.JobStatusFailed
	}
}

// finish stores and publishes the run's outcome. Cancellation of ctx must not
// prevent the final bookkeeping.
func (p *Processor) finish(ctx context.Context, job *storage.IngestJob, r *Result, status storage.JobStatus) {
	if p.cfg.DryRun {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if p.recording() {
		job.Status = status
		job.ImportedCount = r.ImportedCount
		job.FailedCount = r.FailedCount
		job.MessageCount = r.MessageCount
		job.CompletedAt = &r.CompletedAt
		if err := p.deps.Jobs.CompleteJob(ctx, job); err != nil {
			p.logger.Warn("Failed to update job status", logging.Err(err))
		}
	}

	if p.deps.Events != nil {
		if err := p.deps.Events.PublishJobCompleted(ctx, events.JobCompletedParams{
			JobID:         r.JobID,
			SourcePath:    job.SourcePath,
			TotalFiles:    r.TotalFiles,
			ImportedCount: r.ImportedCount,
			FailedCount:   r.FailedCount,
			MessageCount:  r.MessageCount,
			StartedAt:     r.StartedAt,
			CompletedAt:   r.CompletedAt,
			FinalStatus:   string(status),
		}); err != nil {
			p.logger.Warn("Failed to publish completion event", logging.Err(err))
		}
	}
}

func (p *Processor) recording() bool {
	return !p.cfg.DryRun && p.deps.Jobs != nil
}

// processSequential processes files one at a time.
func (p *Processor) processSequential(ctx context.Context, files []string, result *Result) {
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		p.progress.SetCurrentFile(file)
		p.recordOutcome(ctx, p.processFile(ctx, result.JobID, file), result)
		p.publishProgress(ctx, result.JobID)
	}
}

// processParallel processes files using a worker pool.
func (p *Processor) processParallel(ctx context.Context, files []string, result *Result) {
	filesCh := make(chan string, len(files))
	resultsCh := make(chan outcome, len(files))

	var wg sync.WaitGroup
	for range min(p.cfg.Concurrency, max(len(files), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range filesCh {
				if ctx.Err() != nil {
					continue
				}
				p.progress.SetCurrentFile(file)
				resultsCh <- p.processFile(ctx, result.JobID, file)
			}
		}()
	}

	for _, file := range files {
		filesCh <- file
	}
	close(filesCh)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	for o := range resultsCh {
		p.recordOutcome(ctx, o, result)
		p.publishProgress(ctx, result.JobID)
	}
}

// publishProgress announces the current progress. Failures are logged only.
func (p *Processor) publishProgress(ctx context.Context, jobID string) {
	if p.cfg.DryRun || p.deps.Events == nil || ctx.Err() != nil {
		return
	}
	snap := p.progress.Snapshot()
	err := p.deps.Events.PublishJobProgress(ctx, events.JobProgressParams{
		JobID:          jobID,
		TotalFiles:     snap.TotalFiles,
		ProcessedCount: snap.ProcessedCount,
		FailedCount:    snap.FailedCount,
		CurrentFile:    snap.CurrentFile,
		Elapsed:        time.Duration(snap.ElapsedSeconds * float64(time.Second)),
	})
	if err != nil {
		p.logger.Debug("Failed to publish progress event", logging.Err(err))
	}
}

type outcome struct {
	file FileResult
	err  *pferrors.PipelineError
}

// processFile runs one export through read, parse, export, store and
// publish.
func (p *Processor) processFile(ctx context.Context, jobID, path string) outcome {
	start := time.Now()
	ctx, span := p.deps.Tracer.StartDocumentSpan(ctx, path)
	defer span.End()
	sh := observability.NewSpanHelper(span)
	log := p.logger.WithContext(ctx).With(logging.F("file", path))

	fail := func(err error, stage string) outcome {
		pe := pferrors.ClassifyError(err, stage)
		sh.SetError(err, string(pe.Code), pferrors.IsRetryable(pe.Code))
		log.Error("Failed to process transcript",
			logging.Err(err),
			logging.F("code", string(pe.Code)),
			logging.F("stage", stage))
		return outcome{file: FileResult{FilePath: path}, err: pe}
	}

	lines, err := fathom.ReadFile(path)
	if err != nil {
		return fail(err, pferrors.StageRead)
	}
	doc, err := fathom.ParseDocument(path, lines, p.deps.Directory, p.cfg.HeaderOptions...)
	if err != nil {
		return fail(err, pferrors.StageParse)
	}

	res := FileResult{
		FilePath:    path,
		RecordingID: doc.Recording.ID,
		Messages:    len(doc.Messages),
	}
	speakers := p.deps.Directory.ResolveAll(fathom.SpeakerLabels(doc.Body))
	res.Unresolved = speakers.Unresolved()
	if len(res.Unresolved) > 0 {
		log.Debug("Unresolved speakers", logging.F("speakers", res.Unresolved))
	}

	if p.cfg.DryRun {
		log.Info("Dry run: parsed", logging.F("messages", res.Messages))
		return outcome{file: res}
	}

	if p.deps.Writer != nil {
		res.OutputPath, err = p.deps.Writer.WriteMessages(doc.FileName(), doc.Messages)
		if err != nil {
			return fail(err, pferrors.StageExport)
		}
	}

	for _, name := range sortedKeys(p.deps.Sinks) {
		_, err := p.deps.Sinks[name].UpsertMessages(ctx, doc.Messages)
		if p.deps.Metrics != nil {
			p.deps.Metrics.RecordSinkWrite(name, err)
		}
		if err != nil {
			return fail(fmt.Errorf("%s: %w", name, err), pferrors.StageStore)
		}
	}

	if p.deps.Events != nil {
		if err := p.deps.Events.PublishTranscriptIngested(ctx, events.TranscriptParams{
			Recording:  doc.Recording,
			Messages:   doc.Messages,
			JobID:      jobID,
			SourcePath: path,
			OutputPath: res.OutputPath,
		}); err != nil {
			// The transcript is already written; a lost event is not a failed file.
			log.Warn("Failed to publish transcript event", logging.Err(err))
		}
	}

	if p.deps.Metrics != nil {
		stats := speakers.Stats()
		p.deps.Metrics.RecordSpeakers(stats.Matched, stats.Unmatched)
		p.deps.Metrics.RecordDocument(observability.SourceExport, res.Messages, time.Since(start).Seconds())
	}
	sh.SetRecording(res.RecordingID, res.Messages)
	sh.SetSuccess()
	log.Debug("Transcript processed",
		logging.F("recording_id", res.RecordingID),
		logging.F("messages", res.Messages))
	return outcome{file: res}
}

// recordOutcome updates progress and result.
func (p *Processor) recordOutcome(ctx context.Context, o outcome, result *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o.err == nil {
		result.ImportedCount++
		result.MessageCount += o.file.Messages
		result.Files = append(result.Files, o.file)
		p.progress.RecordImported(o.file.Messages)
		return
	}

	result.FailedCount++
	result.Errors = append(result.Errors, FileError{
		FilePath: o.file.FilePath,
		Code:     o.err.Code,
		Stage:    o.err.Stage,
		Error:    o.err.Message,
	})
	p.progress.RecordFailed()
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordFailure(observability.SourceExport, string(o.err.Code))
	}

	if p.recording() {
		if err := p.deps.Jobs.RecordError(ctx, result.JobID, o.file.FilePath, string(o.err.Code), o.err.Message); err != nil {
			p.logger.Warn("Failed to record error", logging.Err(err))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
