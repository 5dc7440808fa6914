// Package fathom parses Fathom call transcripts into speaker-attributed,
// timestamped message records.
//
// A standalone export looks like:
//
//	Team Sync - March 3
//	VIEW RECORDING - 25 mins (No highlights): https://fathom.video/calls/209771231
//
//	---
//
//	0:00 - Alice Smith (Acme)
//	  Hello team.
//	  ACTION ITEM: follow up
//
//	0:05 - Bob
//	  - WATCH: https://fathom.video/calls/209771231?timestamp=5 extra text
//
// The header lines yield a TranscriptHeader; every "H:MM - Speaker" line opens
// a message that collects the content lines below it.
package fathom

import "time"

// Column and key names relied on by downstream collaborators.
const (
	// EmbeddingColumn is the Message field used as embedding input.
	EmbeddingColumn = "message"

	// PrimaryKey is the Message field used as the upsert merge key.
	PrimaryKey = "id"
)

// Speaker is one entry of the speaker roster.
type Speaker struct {
	Name    string   `json:"name" yaml:"name"`
	Email   string   `json:"email" yaml:"email"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// TranscriptHeader holds the metadata recovered from the top of an export.
type TranscriptHeader struct {
	Title           string    `json:"title"`
	Date            time.Time `json:"date"`
	RecordingURL    string    `json:"recording_url"`
	DurationMinutes float64   `json:"duration_minutes"`

	// BodyStart is the index of the first body line (the line after "---"),
	// or 0 when the export has no separator.
	BodyStart int `json:"-"`
}

// Recording holds the values shared by every message of one recording.
type Recording struct {
	ID    string
	URL   string
	Title string
	Date  time.Time
}

// Draft is a message as produced by the state machine, before IDs and
// recording constants are attached.
type Draft struct {
	Timestamp    int
	Speaker      string
	Organization *string
	Message      string
	ActionItem   *string
	WatchLink    *string
}

// Message is a finished transcript message.
type Message struct {
	ID           string    `json:"id"`
	RecordingID  string    `json:"recording_id"`
	MessageID    int       `json:"message_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Date         time.Time `json:"date"`
	Timestamp    int       `json:"timestamp"`
	Speaker      string    `json:"speaker"`
	Organization *string   `json:"organization"`
	Message      string    `json:"message"`
	ActionItem   *string   `json:"action_item"`
	WatchLink    *string   `json:"watch_link"`
}
