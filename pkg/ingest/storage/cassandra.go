package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// Messages are partitioned by recording and clustered by position so a
// recording reads back in transcript order.
const createCassandraTable = `
	CREATE TABLE IF NOT EXISTS transcript_messages (
		recording_id text,
		message_id int,
		id text,
		url text,
		title text,
		date timestamp,
		timestamp_seconds int,
		speaker text,
		organization text,
		message text,
		action_item text,
		watch_link text,
		PRIMARY KEY (recording_id, message_id)
	)
`

const insertCassandraMessage = `
	INSERT INTO transcript_messages (
		recording_id, message_id, id, url, title, date,
		timestamp_seconds, speaker, organization, message, action_item, watch_link
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// ConnectCassandra opens a session against the configured keyspace.
func ConnectCassandra(cfg config.CassandraConfig) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Cassandra: %w", err)
	}
	return session, nil
}

// execFunc runs one CQL statement.
type execFunc func(ctx context.Context, stmt string, args ...any) error

// batchFunc runs stmt once per row in a single unlogged batch.
type batchFunc func(ctx context.Context, stmt string, rows [][]any) error

// CassandraStore writes messages to a Cassandra table. CQL inserts are
// upserts, so rewriting a recording replaces its rows.
type CassandraStore struct {
	exec   execFunc
	batch  batchFunc
	logger logging.Logger
}

// NewCassandraStore creates a store over session.
func NewCassandraStore(session *gocql.Session, logger logging.Logger) *CassandraStore {
	exec := func(ctx context.Context, stmt string, args ...any) error {
		return session.Query(stmt, args...).WithContext(ctx).Exec()
	}
	batch := func(ctx context.Context, stmt string, rows [][]any) error {
		b := session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
		for _, row := range rows {
			b.Query(stmt, row...)
		}
		return session.ExecuteBatch(b)
	}
	return newCassandraStore(exec, batch, logger)
}

func newCassandraStore(exec execFunc, batch batchFunc, logger logging.Logger) *CassandraStore {
	return &CassandraStore{
		exec:   exec,
		batch:  batch,
		logger: logger.With(logging.F("component", "cassandra_store")),
	}
}

// EnsureSchema creates the messages table if needed.
func (s *CassandraStore) EnsureSchema(ctx context.Context) error {
	if err := s.exec(ctx, createCassandraTable); err != nil {
		return fmt.Errorf("create cassandra table: %w", err)
	}
	return nil
}

// UpsertMessages writes msgs with one unlogged batch per recording, so each
// batch touches a single partition. It returns how many rows were written
// before the first failed batch.
func (s *CassandraStore) UpsertMessages(ctx context.Context, msgs []fathom.Message) (int, error) {
	written := 0
	for _, group := range byRecording(msgs) {
		rows := make([][]any, len(group))
		for i, m := range group {
			rows[i] = cassandraRow(m)
		}
		if err := s.batch(ctx, insertCassandraMessage, rows); err != nil {
			return written, fmt.Errorf("insert recording %s: %w", group[0].RecordingID, err)
		}
		written += len(group)
		s.logger.Debug("Messages written to cassandra",
			logging.F("recording_id", group[0].RecordingID),
			logging.F("count", len(group)))
	}
	return written, nil
}

// byRecording splits msgs by recording id, keeping first-seen order.
func byRecording(msgs []fathom.Message) [][]fathom.Message {
	var groups [][]fathom.Message
	index := make(map[string]int)
	for _, m := range msgs {
		i, ok := index[m.RecordingID]
		if !ok {
			i = len(groups)
			index[m.RecordingID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], m)
	}
	return groups
}

// cassandraRow binds m in insertCassandraMessage column order.
func cassandraRow(m fathom.Message) []any {
	return []any{
		m.RecordingID, m.MessageID, m.ID, m.URL, m.Title, m.Date,
		m.Timestamp, m.Speaker, m.Organization, m.Message, m.ActionItem, m.WatchLink,
	}
}
