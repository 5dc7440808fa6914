package fathom

import (
	"iter"
	"regexp"
	"strings"
	"time"
)

// Webhook is the payload Fathom posts when a recording is ready.
type Webhook struct {
	ID         int            `json:"id"`
	Recording  WebhookRecord  `json:"recording"`
	Meeting    Meeting        `json:"meeting"`
	FathomUser FathomUser     `json:"fathom_user"`
	Transcript WebhookContent `json:"transcript"`
}

// WebhookRecord describes the recording a webhook refers to.
type WebhookRecord struct {
	URL               string  `json:"url"`
	DurationInMinutes float64 `json:"duration_in_minutes"`
}

// Meeting is the calendar meeting that was recorded.
type Meeting struct {
	ScheduledStartTime         time.Time        `json:"scheduled_start_time"`
	ScheduledEndTime           *time.Time       `json:"scheduled_end_time"`
	ScheduledDurationInMinutes *int             `json:"scheduled_duration_in_minutes"`
	JoinURL                    string           `json:"join_url"`
	Title                      string           `json:"title"`
	HasExternalInvitees        *bool            `json:"has_external_invitees"`
	ExternalDomains            []ExternalDomain `json:"external_domains"`
	Invitees                   []Invitee        `json:"invitees"`
}

// ExternalDomain is an invitee domain outside the recording user's team.
type ExternalDomain struct {
	DomainName string `json:"domain_name"`
}

// Invitee is one meeting invitee.
type Invitee struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsExternal bool   `json:"is_external"`
}

// FathomUser is the account that owns the recording.
type FathomUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Team  string `json:"team"`
}

// WebhookContent carries the transcript body.
type WebhookContent struct {
	Plaintext string `json:"plaintext"`
}

// RecordingID returns the identifier parsed from the recording URL.
func (w *Webhook) RecordingID() (string, error) {
	return RecordingIDFromURL(w.Recording.URL)
}

// Messages parses the transcript plaintext. Header extraction is skipped:
// title, date and URL come from the payload. An empty directory is an error
// since webhook intake always runs against a roster.
func (w *Webhook) Messages(dir *Directory) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		if dir.Len() == 0 {
			yield(Message{}, &ParseError{Err: ErrNoSpeakers})
			return
		}
		id, err := w.RecordingID()
		if err != nil {
			yield(Message{}, err)
			return
		}
		rec := Recording{
			ID:    id,
			URL:   w.Recording.URL,
			Title: w.Meeting.Title,
			Date:  w.Meeting.ScheduledStartTime,
		}
		lines := strings.Split(w.Transcript.Plaintext, "\n")
		for msg, err := range Assemble(ParseLines(lines, dir), rec) {
			if !yield(msg, err) || err != nil {
				return
			}
		}
	}
}

const fileTimestampLayout = "20060102T150405Z"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName returns the JSONL output name:
// <start time>-<recording id>-<clean title>.jsonl.
func (w *Webhook) FileName() (string, error) {
	id, err := w.RecordingID()
	if err != nil {
		return "", err
	}
	return outputFileName(w.Meeting.ScheduledStartTime, id, w.Meeting.Title), nil
}

func outputFileName(start time.Time, recordingID, title string) string {
	ts := start.UTC().Format(fileTimestampLayout)
	return ts + "-" + recordingID + "-" + CleanFileName(title) + ".jsonl"
}

// CleanFileName collapses every run of characters outside [A-Za-z0-9_-] into a
// single "-" and trims dashes from both ends.
func CleanFileName(s string) string {
	return strings.Trim(unsafeFileChars.ReplaceAllString(s, "-"), "-")
}
