// Package storage persists transcript messages, the speaker roster and ingest
// job bookkeeping.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// Sink receives finished messages. Writes are idempotent on Message.ID.
type Sink interface {
	UpsertMessages(ctx context.Context, msgs []fathom.Message) (int, error)
}

// DBTX is the subset of *pgxpool.Pool the repository uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Begin(ctx context.Context) (pgx.Tx, error)
}

// JobStatus is the state of an ingest job.
type JobStatus string

const (
	JobStatusInProgress      JobStatus = "in_progress"
	JobStatusCompleted       JobStatus = "completed"
	JobStatusCompletedErrors JobStatus = "completed_with_errors"
	JobStatusFailed          JobStatus = "failed"
	JobStatusCancelled       JobStatus = "cancelled"
)

// IngestJob tracks one batch run.
type IngestJob struct {
	ID            string
	Status        JobStatus
	SourcePath    string
	TotalFiles    int
	ImportedCount int
	FailedCount   int
	MessageCount  int
	StartedAt     time.Time
	CompletedAt   *time.Time
}

const upsertMessageSQL = `
	INSERT INTO transcript_messages (
		id, recording_id, message_id, url, title, date,
		timestamp_seconds, speaker, organization, message, action_item, watch_link
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		url = EXCLUDED.url,
		title = EXCLUDED.title,
		date = EXCLUDED.date,
		timestamp_seconds = EXCLUDED.timestamp_seconds,
		speaker = EXCLUDED.speaker,
		organization = EXCLUDED.organization,
		message = EXCLUDED.message,
		action_item = EXCLUDED.action_item,
		watch_link = EXCLUDED.watch_link,
		ingested_at = NOW()
`

// Repository is the Postgres store.
type Repository struct {
	db     DBTX
	logger logging.Logger
}

// NewRepository creates a repository over db, usually a *pgxpool.Pool.
func NewRepository(db DBTX, logger logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With(logging.F("component", "transcript_repository")),
	}
}

// upsertBatch queues one upsert per message, keyed by fathom.PrimaryKey.
func upsertBatch(msgs []fathom.Message) *pgx.Batch {
	b := &pgx.Batch{}
	for _, m := range msgs {
		b.Queue(upsertMessageSQL,
			m.ID, m.RecordingID, m.MessageID, m.URL, m.Title, m.Date,
			m.Timestamp, m.Speaker, m.Organization, m.Message, m.ActionItem, m.WatchLink,
		)
	}
	return b
}

// UpsertMessages writes msgs in a single batch round trip and returns the
// number of rows written.
func (r *Repository) UpsertMessages(ctx context.Context, msgs []fathom.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	br := r.db.SendBatch(ctx, upsertBatch(msgs))
	defer br.Close()

	written := 0
	for i := range msgs {
		tag, err := br.Exec()
		if err != nil {
			return written, fmt.Errorf("upsert message %s: %w", msgs[i].ID, err)
		}
		written += int(tag.RowsAffected())
	}

	r.logger.Debug("Messages upserted",
		logging.F("recording_id", msgs[0].RecordingID),
		logging.F("count", written))
	return written, nil
}

// LoadSpeakers returns the roster stored in the speakers table, in the order
// it was saved.
func (r *Repository) LoadSpeakers(ctx context.Context) ([]fathom.Speaker, error) {
	rows, err := r.db.Query(ctx, `SELECT name, email, aliases FROM speakers ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query speakers: %w", err)
	}
	defer rows.Close()

	var speakers []fathom.Speaker
	for rows.Next() {
		var s fathom.Speaker
		if err := rows.Scan(&s.Name, &s.Email, &s.Aliases); err != nil {
			return nil, fmt.Errorf("scan speaker: %w", err)
		}
		speakers = append(speakers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate speakers: %w", err)
	}
	return speakers, nil
}

// ReplaceSpeakers swaps the stored roster for speakers in one transaction.
func (r *Repository) ReplaceSpeakers(ctx context.Context, speakers []fathom.Speaker) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // nolint: errcheck

	if _, err := tx.Exec(ctx, `TRUNCATE speakers RESTART IDENTITY`); err != nil {
		return fmt.Errorf("clear speakers: %w", err)
	}
	for _, s := range speakers {
		aliases := s.Aliases
		if aliases == nil {
			aliases = []string{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO speakers (name, email, aliases) VALUES ($1, $2, $3)`,
			s.Name, s.Email, aliases,
		); err != nil {
			return fmt.Errorf("insert speaker %s: %w", s.Email, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("Speaker roster replaced", logging.F("count", len(speakers)))
	return nil
}

// CreateJob records the start of a batch run.
func (r *Repository) CreateJob(ctx context.Context, job *IngestJob) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ingest_jobs (id, status, source_path, total_files, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Status, job.SourcePath, job.TotalFiles, job.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create ingest job: %w", err)
	}
	r.logger.Debug("Ingest job created", logging.F("job_id", job.ID))
	return nil
}

// CompleteJob stores the final counts and status of a batch run.
func (r *Repository) CompleteJob(ctx context.Context, job *IngestJob) error {
	_, err := r.db.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = $2, imported_count = $3, failed_count = $4,
			message_count = $5, completed_at = $6
		WHERE id = $1`,
		job.ID, job.Status, job.ImportedCount, job.FailedCount, job.MessageCount, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("complete ingest job: %w", err)
	}
	r.logger.Debug("Ingest job completed",
		logging.F("job_id", job.ID),
		logging.F("status", string(job.Status)))
	return nil
}

// RecordError stores a per-file failure of a batch run.
func (r *Repository) RecordError(ctx context.Context, jobID, filePath, code, msg string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ingest_errors (job_id, file_path, error_code, error_msg)
		VALUES ($1, $2, $3, $4)`,
		jobID, filePath, code, msg,
	)
	if err != nil {
		return fmt.Errorf("record ingest error: %w", err)
	}
	return nil
}
