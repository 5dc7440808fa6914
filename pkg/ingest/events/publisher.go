// Package events publishes transcript ingest events to Redis.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// Event types.
const (
	TypeTranscriptIngested = "transcript.ingested"
	TypeJobProgress        = "ingest_job.progress"
	TypeJobCompleted       = "ingest_job.completed"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	Version       string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent stamped with the current time.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    logging.ServiceName,
		Version:   "1.0",
	}
}

// TranscriptIngestedEvent is published once per parsed transcript.
type TranscriptIngestedEvent struct {
	BaseEvent

	RecordingID  string    `json:"recording_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	MessageCount int       `json:"message_count"`
	Speakers     []string  `json:"speakers"`

	// JobID is empty for webhook deliveries.
	JobID      string `json:"job_id,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// IngestJobProgressEvent is published as a batch run advances.
type IngestJobProgressEvent struct {
	BaseEvent

	JobID          string  `json:"job_id"`
	TotalFiles     int     `json:"total_files"`
	ProcessedCount int     `json:"processed_count"`
	FailedCount    int     `json:"failed_count"`
	CurrentFile    string  `json:"current_file,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// IngestJobCompletedEvent is published when a batch run finishes.
type IngestJobCompletedEvent struct {
	BaseEvent

	JobID         string `json:"job_id"`
	SourcePath    string `json:"source_path"`
	TotalFiles    int    `json:"total_files"`
	ImportedCount int    `json:"imported_count"`
	FailedCount   int    `json:"failed_count"`
	MessageCount  int    `json:"message_count"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	Success     bool   `json:"success"`
	FinalStatus string `json:"final_status"`
}

// client is the part of *redis.Client the publisher uses.
type client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// Publisher publishes events to one Redis channel.
type Publisher struct {
	client  client
	channel string
	logger  logging.Logger
}

// NewPublisher creates a publisher on channel.
func NewPublisher(c client, channel string, logger logging.Logger) *Publisher {
	if channel == "" {
		channel = config.DefaultRedisChannel
	}
	return &Publisher{
		client:  c,
		channel: channel,
		logger:  logger.With(logging.F("component", "event_publisher")),
	}
}

// Connect dials Redis, pings it and returns a publisher on the configured
// channel.
func Connect(ctx context.Context, cfg *config.RedisConfig, password string, logger logging.Logger) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewPublisher(rdb, cfg.Channel, logger), nil
}

// TranscriptParams describes one ingested transcript.
type TranscriptParams struct {
	Recording  fathom.Recording
	Messages   []fathom.Message
	JobID      string
	SourcePath string
	OutputPath string
}

// PublishTranscriptIngested announces a parsed transcript.
func (p *Publisher) PublishTranscriptIngested(ctx context.Context, params TranscriptParams) error {
	event := TranscriptIngestedEvent{
		BaseEvent:    NewBaseEvent(TypeTranscriptIngested),
		RecordingID:  params.Recording.ID,
		URL:          params.Recording.URL,
		Title:        params.Recording.Title,
		Date:         params.Recording.Date,
		MessageCount: len(params.Messages),
		Speakers:     speakers(params.Messages),
		JobID:        params.JobID,
		SourcePath:   params.SourcePath,
		OutputPath:   params.OutputPath,
	}
	return p.publish(ctx, event)
}

// JobProgressParams contains parameters for publishing job progress.
type JobProgressParams struct {
	JobID          string
	TotalFiles     int
	ProcessedCount int
	FailedCount    int
	CurrentFile    string
	Elapsed        time.Duration
}

// PublishJobProgress publishes a progress update for a batch run.
func (p *Publisher) PublishJobProgress(ctx context.Context, params JobProgressParams) error {
	return p.publish(ctx, IngestJobProgressEvent{
		BaseEvent:      NewBaseEvent(TypeJobProgress),
		JobID:          params.JobID,
		TotalFiles:     params.TotalFiles,
		ProcessedCount: params.ProcessedCount,
		FailedCount:    params.FailedCount,
		CurrentFile:    params.CurrentFile,
		ElapsedSeconds: params.Elapsed.Seconds(),
	})
}

// JobCompletedParams contains parameters for publishing job completion.
type JobCompletedParams struct {
	JobID         string
	SourcePath    string
	TotalFiles    int
	ImportedCount int
	FailedCount   int
	MessageCount  int
	StartedAt     time.Time
	CompletedAt   time.Time
	FinalStatus   string
}

// PublishJobCompleted publishes a completion event for a batch run.
func (p *Publisher) PublishJobCompleted(ctx context.Context, params JobCompletedParams) error {
	return p.publish(ctx, IngestJobCompletedEvent{
		BaseEvent:       NewBaseEvent(TypeJobCompleted),
		JobID:           params.JobID,
		SourcePath:      params.SourcePath,
		TotalFiles:      params.TotalFiles,
		ImportedCount:   params.ImportedCount,
		FailedCount:     params.FailedCount,
		MessageCount:    params.MessageCount,
		StartedAt:       params.StartedAt,
		CompletedAt:     params.CompletedAt,
		DurationSeconds: params.CompletedAt.Sub(params.StartedAt).Seconds(),
		Success:         params.FailedCount == 0,
		FinalStatus:     params.FinalStatus,
	})
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", p.channel))
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", p.channel),
		logging.F("payload_size", len(data)))
	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// speakers lists distinct speakers in order of first appearance.
func speakers(msgs []fathom.Message) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, m := range msgs {
		if !seen[m.Speaker] {
			seen[m.Speaker] = true
			out = append(out, m.Speaker)
		}
	}
	return out
}
