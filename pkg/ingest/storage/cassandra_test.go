package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

type cqlRecorder struct {
	stmts   []string
	batches [][][]any
	failAt  int
}

func (r *cqlRecorder) exec(_ context.Context, stmt string, _ ...any) error {
	r.stmts = append(r.stmts, stmt)
	return nil
}

func (r *cqlRecorder) batch(_ context.Context, stmt string, rows [][]any) error {
	r.stmts = append(r.stmts, stmt)
	r.batches = append(r.batches, rows)
	if r.failAt > 0 && len(r.batches) == r.failAt {
		return errors.New("write timeout")
	}
	return nil
}

func newRecordedStore(rec *cqlRecorder) *CassandraStore {
	return newCassandraStore(rec.exec, rec.batch, logging.NewNopLogger())
}

// twoRecordings interleaves messages from two recordings.
func twoRecordings() []fathom.Message {
	msgs := sampleMessages()
	other := msgs[0]
	other.ID, other.RecordingID = "5-00001", "5"
	return []fathom.Message{msgs[0], other, msgs[1]}
}

func TestCassandraStore_UpsertMessages(t *testing.T) {
	rec := &cqlRecorder{}
	store := newRecordedStore(rec)

	n, err := store.UpsertMessages(context.Background(), sampleMessages())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, rec.batches, 1)
	rows := rec.batches[0]
	require.Len(t, rows, 2)
	assert.Equal(t, "209771231", rows[0][0])
	assert.Equal(t, 1, rows[0][1])
	assert.Equal(t, "209771231-00001", rows[0][2])
	assert.Equal(t, 2, rows[1][1])
	assert.Contains(t, rec.stmts[0], "INSERT INTO transcript_messages")
}

func TestCassandraStore_UpsertMessages_OneBatchPerRecording(t *testing.T) {
	rec := &cqlRecorder{}
	store := newRecordedStore(rec)

	n, err := store.UpsertMessages(context.Background(), twoRecordings())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, rec.batches, 2)
	require.Len(t, rec.batches[0], 2)
	assert.Equal(t, "209771231", rec.batches[0][1][0])
	require.Len(t, rec.batches[1], 1)
	assert.Equal(t, "5", rec.batches[1][0][0])
}

func TestCassandraStore_UpsertMessages_StopsOnError(t *testing.T) {
	rec := &cqlRecorder{failAt: 2}
	store := newRecordedStore(rec)

	n, err := store.UpsertMessages(context.Background(), twoRecordings())
	assert.Equal(t, 2, n)
	assert.ErrorContains(t, err, "recording 5")
}

func TestCassandraStore_UpsertMessages_Empty(t *testing.T) {
	rec := &cqlRecorder{}
	n, err := newRecordedStore(rec).UpsertMessages(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.batches)
}

func TestCassandraStore_EnsureSchema(t *testing.T) {
	rec := &cqlRecorder{}
	store := newRecordedStore(rec)

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.Len(t, rec.stmts, 1)
	assert.Contains(t, rec.stmts[0], "PRIMARY KEY (recording_id, message_id)")
}

func TestCassandraRowMatchesColumns(t *testing.T) {
	row := cassandraRow(sampleMessages()[0])
	assert.Len(t, row, 12)
}
