// Package cmd provides the fathom-etl CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/credentials"
	"github.com/otherjamesbrown/fathom-etl/pkg/db"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/events"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/storage"
	"github.com/otherjamesbrown/fathom-etl/pkg/logging"
)

// SecretStore reads and writes credentials. *credentials.Store implements it.
type SecretStore interface {
	Get(name credentials.Secret) (string, error)
	Lookup(name credentials.Secret) (string, error)
	Set(name credentials.Secret, value string) error
	Delete(name credentials.Secret) error
}

// CommandDeps holds the dependencies shared by fathom-etl commands.
type CommandDeps struct {
	// Config is set by the root command once flags are applied. Commands
	// fall back to LoadConfig when it is nil.
	Config     *config.Config
	LoadConfig func() (*config.Config, error)
	SaveConfig func(*config.Config) error

	Secrets SecretStore
	Logger  logging.Logger

	// OpenBackends connects to every configured store and the event stream.
	OpenBackends func(ctx context.Context, cfg *config.Config, secrets SecretStore, logger logging.Logger) (*Backends, error)

	// ConnectDB opens the Postgres pool used by db commands.
	ConnectDB func(ctx context.Context, cfg *config.Config, secrets SecretStore) (*pgxpool.Pool, error)

	Now func() time.Time
}

// DefaultDeps returns the dependencies for production use.
func DefaultDeps() *CommandDeps {
	return &CommandDeps{
		LoadConfig:   config.LoadConfig,
		SaveConfig:   config.SaveConfig,
		Secrets:      credentials.NewStore(),
		OpenBackends: OpenBackends,
		ConnectDB:    connectToDatabase,
		Now:          time.Now,
	}
}

func (d *CommandDeps) config() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

func (d *CommandDeps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.MustGlobal()
	}
	return d.Logger
}

// Backends are the external systems a run delivers to. Every field is nil
// when the corresponding section is not configured.
type Backends struct {
	Pool       *pgxpool.Pool
	Repository *storage.Repository
	Cassandra  *storage.CassandraStore
	Events     *events.Publisher

	closers []func()
}

// Sinks returns the configured message sinks by name.
func (b *Backends) Sinks() map[string]storage.Sink {
	sinks := make(map[string]storage.Sink)
	if b == nil {
		return sinks
	}
	if b.Repository != nil {
		sinks["postgres"] = b.Repository
	}
	if b.Cassandra != nil {
		sinks["cassandra"] = b.Cassandra
	}
	return sinks
}

// Close releases every connection in reverse order of opening.
func (b *Backends) Close() {
	if b == nil {
		return
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// OpenBackends connects to Postgres, Cassandra and Redis as configured. On
// error, anything already opened is closed.
func OpenBackends(ctx context.Context, cfg *config.Config, secrets SecretStore, logger logging.Logger) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if cfg.Postgres.IsConfigured() {
		pool, err := connectToDatabase(ctx, cfg, secrets)
		if err != nil {
			return nil, err
		}
		b.Pool = pool
		b.closers = append(b.closers, func() { db.Close(pool) })
		b.Repository = storage.NewRepository(pool, logger)
	}

	if cfg.Cassandra.IsConfigured() {
		session, err := storage.ConnectCassandra(*cfg.Cassandra)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, session.Close)
		b.Cassandra = storage.NewCassandraStore(session, logger)
		if err := b.Cassandra.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.IsConfigured() {
		password, err := secrets.Lookup(credentials.RedisPassword)
		if err != nil {
			return nil, err
		}
		pub, err := events.Connect(ctx, cfg.Redis, password, logger)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("Failed to close event publisher", logging.Err(err))
			}
		})
		b.Events = pub
	}
	return b, nil
}

var errDatabaseNotConfigured = errors.New("postgres is not configured (set postgres.host, database and user)")

// connectToDatabase opens a pool from the postgres section and the stored
// password, retrying while the server starts.
func connectToDatabase(ctx context.Context, cfg *config.Config, secrets SecretStore) (*pgxpool.Pool, error) {
	if !cfg.Postgres.IsConfigured() {
		return nil, errDatabaseNotConfigured
	}
	password, err := secrets.Lookup(credentials.PostgresPassword)
	if err != nil {
		return nil, err
	}
	dbCfg, err := db.NewConfig(cfg, password)
	if err != nil {
		return nil, err
	}
	return db.Connect(ctx, dbCfg)
}
