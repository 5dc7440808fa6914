package fathom

import (
	"fmt"
	"iter"
)

// MessageID formats the stable identifier of a message within a recording.
func MessageID(recordingID string, messageID int) string {
	return fmt.Sprintf("%s-%05d", recordingID, messageID)
}

// Assemble numbers drafts from 1 and attaches the recording constants. An
// error from drafts is passed through and ends the sequence.
func Assemble(drafts iter.Seq2[Draft, error], rec Recording) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		n := 0
		for d, err := range drafts {
			if err != nil {
				yield(Message{}, err)
				return
			}
			n++
			msg := Message{
				ID:           MessageID(rec.ID, n),
				RecordingID:  rec.ID,
				MessageID:    n,
				URL:          rec.URL,
				Title:        rec.Title,
				Date:         rec.Date,
				Timestamp:    d.Timestamp,
				Speaker:      d.Speaker,
				Organization: d.Organization,
				Message:      d.Message,
				ActionItem:   d.ActionItem,
				WatchLink:    d.WatchLink,
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
