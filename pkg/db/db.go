// Package db connects to the PostgreSQL message store and manages its schema.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/fathom-etl/config"
)

// Config is a connection string plus pool sizing and retry policy.
type Config struct {
	ConnString      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration

	// Attempts and RetryDelay govern Connect while the server is starting.
	Attempts   int
	RetryDelay time.Duration
}

// NewConfig derives pool settings from the postgres section. The pool gets
// one connection per batch worker unless max_conns says otherwise.
func NewConfig(app *config.Config, password string) (*Config, error) {
	pg := app.Postgres
	if !pg.IsConfigured() {
		return nil, errors.New("postgres is not configured (host, database and user are required)")
	}
	maxConns := int32(pg.MaxConns)
	if maxConns <= 0 {
		maxConns = int32(max(app.Concurrency, 1))
	}
	return &Config{
		ConnString:      pg.ConnectionString(password),
		MaxConns:        maxConns,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		Attempts:        3,
		RetryDelay:      2 * time.Second,
	}, nil
}

// Validate checks pool sizing.
func (c *Config) Validate() error {
	switch {
	case c.ConnString == "":
		return errors.New("connection string is required")
	case c.MaxConns < 1:
		return errors.New("max connections must be at least 1")
	case c.MinConns > c.MaxConns:
		return fmt.Errorf("min connections (%d) exceed max connections (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

func (c *Config) poolConfig() (*pgxpool.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	pc, err := pgxpool.ParseConfig(c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	pc.MaxConns, pc.MinConns = c.MaxConns, c.MinConns
	pc.MaxConnLifetime, pc.MaxConnIdleTime = c.MaxConnLifetime, c.MaxConnIdleTime
	if c.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = c.ConnectTimeout
	}
	return pc, nil
}

// Connect opens a pool and pings it, retrying up to cfg.Attempts times. The
// caller closes the pool.
func Connect(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}
	attempts := max(cfg.Attempts, 1)

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
		pool, err := open(ctx, pc)
		if err == nil {
			return pool, nil
		}
		lastErr = err
	}
	if attempts == 1 {
		return nil, lastErr
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", attempts, lastErr)
}

func open(ctx context.Context, pc *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Close closes pool if it is not nil.
func Close(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}
