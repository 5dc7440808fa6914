package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/events"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/export"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/observability"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

const goodExport = "Team Sync - March 3\n" +
	"VIEW RECORDING - 25 mins (No highlights): https://fathom.video/calls/209771231\n" +
	"\n" +
	"---\n" +
	"\n" +
	"0:00 - Alice Smith (Acme)\n" +
	"  Hello team.\n" +
	"\n" +
	"0:05 - Bob\n" +
	"  Hi.\n"

const otherExport = "Planning - March 4\n" +
	"VIEW RECORDING - 5 mins: https://fathom.video/share/AbC-123_x\n" +
	"---\n" +
	"0:00 - Alice Smith\n" +
	"  Agenda.\n"

const badExport = "Broken - March 5\n" +
	"VIEW RECORDING - 5 mins: https://fathom.video/calls/1\n" +
	"---\n" +
	"orphan line\n"

type fakeJobs struct {
	mu        sync.Mutex
	created   []*storage.IngestJob
	completed []storage.IngestJob
	errs      []string
}

func (f *fakeJobs) CreateJob(_ context.Context, job *storage.IngestJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobs) CompleteJob(_ context.Context, job *storage.IngestJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, *job)
	return nil
}

func (f *fakeJobs) RecordError(_ context.Context, _, filePath, code, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, filepath.Base(filePath)+":"+code)
	return nil
}

type fakeEvents struct {
	mu          sync.Mutex
	transcripts []events.TranscriptParams
	progress    []events.JobProgressParams
	completed   []events.JobCompletedParams
	err         error
}

func (f *fakeEvents) PublishTranscriptIngested(_ context.Context, params events.TranscriptParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, params)
	return f.err
}

func (f *fakeEvents) PublishJobProgress(_ context.Context, params events.JobProgressParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, params)
	return f.err
}

func (f *fakeEvents) PublishJobCompleted(_ context.Context, params events.JobCompletedParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, params)
	return f.err
}

type fakeSink struct {
	mu       sync.Mutex
	messages int
	err      error
}

func (s *fakeSink) UpsertMessages(_ context.Context, msgs []fathom.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.messages += len(msgs)
	return len(msgs), nil
}

func writeExports(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func directory() *fathom.Directory {
	return fathom.NewDirectory([]fathom.Speaker{
		{Name: "Alice Smith", Email: "alice@chalk.ai"},
	})
}

func config(concurrency int) Config {
	return Config{
		Concurrency: concurrency,
		HeaderOptions: []fathom.HeaderOption{
			fathom.WithClock(func() time.Time { return time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC) }),
		},
	}
}

func TestProcessor_Process(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(map[int]string{1: "sequential", 4: "parallel"}[concurrency], func(t *testing.T) {
			in := writeExports(t, map[string]string{
				"sync.srt":           goodExport,
				"nested/plan.txt":    otherExport,
				"bad.txt":            badExport,
				"notes.md":           "ignored",
				".hidden/secret.txt": badExport,
			})
			out := filepath.Join(t.TempDir(), "out")

			jobs := &fakeJobs{}
			ev := &fakeEvents{}
			sink := &fakeSink{}
			metrics := observability.NewIngestMetrics(prometheus.NewRegistry())

			proc := NewProcessor(config(concurrency), Deps{
				Directory: directory(),
				Writer:    export.NewWriter(out, false, logging.NewNopLogger()),
				Sinks:     map[string]storage.Sink{"postgres": sink},
				Jobs:      jobs,
				Events:    ev,
				Metrics:   metrics,
				Logger:    logging.NewNopLogger(),
			})

			result, err := proc.Process(context.Background(), in)
			require.NoError(t, err)

			assert.Equal(t, 3, result.TotalFiles)
			assert.Equal(t, 2, result.ImportedCount)
			assert.Equal(t, 1, result.FailedCount)
			assert.Equal(t, 3, result.MessageCount)
			assert.False(t, result.Success)

			require.Len(t, result.Errors, 1)
			assert.Equal(t, "bad.txt", filepath.Base(result.Errors[0].FilePath))
			assert.Equal(t, pferrors.ErrParseError, result.Errors[0].Code)
			assert.Equal(t, pferrors.StageParse, result.Errors[0].Stage)
			assert.Contains(t, result.Errors[0].Error, "no message context")

			require.Len(t, result.Files, 2)
			plan := result.Files[0]
			assert.Equal(t, "AbC-123_x", plan.RecordingID)
			assert.Empty(t, plan.Unresolved)
			team := result.Files[1]
			assert.Equal(t, "209771231", team.RecordingID)
			assert.Equal(t, []string{"Bob"}, team.Unresolved)
			assert.Equal(t, filepath.Join(out, "20250303T000000Z-209771231-Team-Sync.jsonl"), team.OutputPath)

			msgs, err := export.ReadMessages(team.OutputPath)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, "alice@chalk.ai", msgs[0].Speaker)

			assert.Equal(t, 3, sink.messages)
			assert.Len(t, ev.transcripts, 2)
			require.Len(t, ev.progress, 3)
			assert.Equal(t, 3, ev.progress[2].ProcessedCount)
			assert.Equal(t, 1, ev.progress[2].FailedCount)
			require.Len(t, ev.completed, 1)
			assert.Equal(t, string(storage.JobStatusCompletedErrors), ev.completed[0].FinalStatus)

			require.Len(t, jobs.created, 1)
			assert.Equal(t, result.JobID, jobs.created[0].ID)
			require.Len(t, jobs.completed, 1)
			assert.Equal(t, storage.JobStatusCompletedErrors, jobs.completed[0].Status)
			assert.Equal(t, []string{"bad.txt:parse_error"}, jobs.errs)

			assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DocumentsTotal.WithLabelValues(observability.SourceExport, observability.StatusSuccess)))
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues(observability.SourceExport, "parse_error")))

			snap := proc.Progress().Snapshot()
			assert.Equal(t, StatusFailed, snap.Status)
			assert.True(t, snap.IsComplete())
			assert.Equal(t, 3, snap.MessageCount)
		})
	}
}

func TestProcessor_DryRun(t *testing.T) {
	in := writeExports(t, map[string]string{"sync.srt": goodExport})
	out := filepath.Join(t.TempDir(), "out")
	jobs := &fakeJobs{}
	ev := &fakeEvents{}
	sink := &fakeSink{}

	cfg := config(2)
	cfg.DryRun = true
	proc := NewProcessor(cfg, Deps{
		Directory: directory(),
		Writer:    export.NewWriter(out, false, logging.NewNopLogger()),
		Sinks:     map[string]storage.Sink{"postgres": sink},
		Jobs:      jobs,
		Events:    ev,
		Logger:    logging.NewNopLogger(),
	})

	result, err := proc.Process(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.MessageCount)

	assert.NoDirExists(t, out)
	assert.Zero(t, sink.messages)
	assert.Empty(t, ev.transcripts)
	assert.Empty(t, ev.progress)
	assert.Empty(t, ev.completed)
	assert.Empty(t, jobs.created)
}

func TestProcessor_SinkFailureFailsFile(t *testing.T) {
	in := writeExports(t, map[string]string{"sync.srt": goodExport})
	jobs := &fakeJobs{}

	proc := NewProcessor(config(1), Deps{
		Directory: directory(),
		Sinks:     map[string]storage.Sink{"cassandra": &fakeSink{err: errors.New("no hosts available in the pool")}},
		Jobs:      jobs,
		Logger:    logging.NewNopLogger(),
	})

	result, err := proc.Process(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, pferrors.ErrStorageUnavailable, result.Errors[0].Code)
	assert.Equal(t, pferrors.StageStore, result.Errors[0].Stage)
	require.Len(t, jobs.completed, 1)
	assert.Equal(t, storage.JobStatusFailed, jobs.completed[0].Status)
}

func TestProcessor_PublishFailureKeepsFile(t *testing.T) {
	in := writeExports(t, map[string]string{"sync.srt": goodExport})

	proc := NewProcessor(config(1), Deps{
		Directory: directory(),
		Events:    &fakeEvents{err: errors.New("connection refused")},
		Logger:    logging.NewNopLogger(),
	})

	result, err := proc.Process(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.ImportedCount)
}

func TestProcessor_Cancelled(t *testing.T) {
	in := writeExports(t, map[string]string{"a.srt": goodExport, "b.srt": goodExport})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := &fakeJobs{}
	proc := NewProcessor(config(2), Deps{Directory: directory(), Jobs: jobs, Logger: logging.NewNopLogger()})

	result, err := proc.Process(ctx, in)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.ImportedCount)
	assert.Equal(t, StatusCancelled, proc.Progress().Snapshot().Status)
	require.Len(t, jobs.completed, 1)
	assert.Equal(t, storage.JobStatusCancelled, jobs.completed[0].Status)
}

func TestProcessor_DiscoverError(t *testing.T) {
	proc := NewProcessor(config(1), Deps{Directory: directory(), Logger: logging.NewNopLogger()})

	_, err := proc.Process(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "failed to discover files")
}
