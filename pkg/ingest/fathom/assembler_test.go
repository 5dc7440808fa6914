package fathom

import (
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftsOf(ds []Draft, tail error) iter.Seq2[Draft, error] {
	return func(yield func(Draft, error) bool) {
		for _, d := range ds {
			if !yield(d, nil) {
				return
			}
		}
		if tail != nil {
			yield(Draft{}, tail)
		}
	}
}

func TestAssemble_NumbersMessages(t *testing.T) {
	rec := Recording{
		ID:    "209771231",
		URL:   "https://fathom.video/calls/209771231",
		Title: "Team Sync",
		Date:  time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
	}

	var drafts []Draft
	for i := range 12 {
		drafts = append(drafts, Draft{Timestamp: i * 10, Speaker: fmt.Sprintf("S%d", i)})
	}

	msgs, err := Collect(Assemble(draftsOf(drafts, nil), rec))
	require.NoError(t, err)
	require.Len(t, msgs, 12)

	for i, m := range msgs {
		assert.Equal(t, i+1, m.MessageID)
		assert.Equal(t, fmt.Sprintf("%s-%05d", rec.ID, m.MessageID), m.ID)
		assert.Equal(t, rec.ID, m.RecordingID)
		assert.Equal(t, rec.URL, m.URL)
		assert.Equal(t, rec.Title, m.Title)
		assert.Equal(t, rec.Date, m.Date)
		assert.Equal(t, drafts[i].Speaker, m.Speaker)
	}
	assert.Equal(t, "209771231-00001", msgs[0].ID)
	assert.Equal(t, "209771231-00012", msgs[11].ID)
}

func TestAssemble_PassesErrorThrough(t *testing.T) {
	boom := errors.New("boom")

	var got []Message
	var gotErr error
	for m, err := range Assemble(draftsOf([]Draft{{Speaker: "A"}}, boom), Recording{ID: "1"}) {
		if err != nil {
			gotErr = err
			continue
		}
		got = append(got, m)
	}

	assert.Len(t, got, 1)
	assert.ErrorIs(t, gotErr, boom)
}

func TestCollect_DiscardsPartialResults(t *testing.T) {
	boom := errors.New("boom")
	msgs, err := Collect(Assemble(draftsOf([]Draft{{}, {}}, boom), Recording{ID: "1"}))
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, msgs)
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, "abc-00042", MessageID("abc", 42))
	assert.Equal(t, "abc-123456", MessageID("abc", 123456))
}
