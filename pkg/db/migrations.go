package db

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the schema migrations shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migrator is the subset of *pgxpool.Pool that migrations need.
type Migrator interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Migration is one .sql file.
type Migration struct {
	Version string
	Name    string
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped"`
}

// MigrationStatusEntry is one migration in a status report.
type MigrationStatusEntry struct {
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	AppliedAt *time.Time `json:"applied_at,omitempty"` // nil when pending
}

// MigrationStatus groups migrations by state. Drift lists versions recorded
// in the database that have no file.
type MigrationStatus struct {
	Applied []MigrationStatusEntry `json:"applied"`
	Pending []MigrationStatusEntry `json:"pending"`
	Drift   []MigrationStatusEntry `json:"drift"`
}

const (
	trackingDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	appliedQuery = "SELECT version, applied_at FROM schema_migrations"
	recordInsert = "INSERT INTO schema_migrations (version) VALUES ($1)"
)

// Migrate applies every pending migration in fsys in version order, up to and
// including target when target is non-empty. It stops at the first failure.
func Migrate(ctx context.Context, db Migrator, fsys fs.FS, target string) (*MigrationResult, error) {
	migrations, applied, err := load(ctx, db, fsys)
	if err != nil {
		return nil, err
	}
	if target != "" {
		if migrations, err = upTo(migrations, target); err != nil {
			return nil, err
		}
	}

	result := &MigrationResult{}
	for _, m := range migrations {
		if _, done := applied[m.Version]; done {
			result.Skipped = append(result.Skipped, m.Version)
			continue
		}
		if err := apply(ctx, db, fsys, m); err != nil {
			return result, fmt.Errorf("migration %s: %w", m.Version, err)
		}
		result.Applied = append(result.Applied, m.Version)
	}
	return result, nil
}

// Status reports which migrations in fsys are applied, pending or drifted.
func Status(ctx context.Context, db Migrator, fsys fs.FS) (*MigrationStatus, error) {
	migrations, applied, err := load(ctx, db, fsys)
	if err != nil {
		return nil, err
	}
	return classify(migrations, applied), nil
}

// load lists the shipped migrations and the versions already recorded,
// creating the tracking table on first use.
func load(ctx context.Context, db Migrator, fsys fs.FS) ([]Migration, map[string]time.Time, error) {
	migrations, err := FindMigrations(fsys)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Exec(ctx, trackingDDL); err != nil {
		return nil, nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return migrations, applied, nil
}

func classify(migrations []Migration, applied map[string]time.Time) *MigrationStatus {
	status := &MigrationStatus{
		Applied: []MigrationStatusEntry{},
		Pending: []MigrationStatusEntry{},
		Drift:   []MigrationStatusEntry{},
	}
	shipped := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		shipped[m.Version] = true
		entry := MigrationStatusEntry{Version: m.Version, Name: m.Name}
		at, ok := applied[m.Version]
		if !ok {
			status.Pending = append(status.Pending, entry)
			continue
		}
		entry.AppliedAt = &at
		status.Applied = append(status.Applied, entry)
	}
	for _, version := range slices.Sorted(maps.Keys(applied)) {
		if shipped[version] {
			continue
		}
		at := applied[version]
		status.Drift = append(status.Drift, MigrationStatusEntry{Version: version, Name: version + ".sql", AppliedAt: &at})
	}
	return status
}

// FindMigrations lists the .sql files at the root of fsys sorted by version.
func FindMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var found []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(path.Ext(e.Name()), ".sql") {
			continue
		}
		found = append(found, Migration{Version: normalizeVersion(e.Name()), Name: e.Name()})
	}
	slices.SortFunc(found, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })
	return found, nil
}

func upTo(migrations []Migration, target string) ([]Migration, error) {
	target = normalizeVersion(target)
	i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == target })
	if i < 0 {
		return nil, fmt.Errorf("target version %s not found in migrations", target)
	}
	return migrations[:i+1], nil
}

// normalizeVersion strips a .sql suffix in any case.
func normalizeVersion(v string) string {
	if ext := path.Ext(v); len(v) > len(ext) && strings.EqualFold(ext, ".sql") {
		return strings.TrimSuffix(v, ext)
	}
	return v
}

func appliedVersions(ctx context.Context, db Migrator) (map[string]time.Time, error) {
	rows, err := db.Query(ctx, appliedQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var (
			version string
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[normalizeVersion(version)] = at
	}
	return applied, rows.Err()
}

// apply runs one migration and records it in the same transaction.
func apply(ctx context.Context, db Migrator, fsys fs.FS, m Migration) error {
	body, err := fs.ReadFile(fsys, m.Name)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("migration file is empty")
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, string(body)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, recordInsert, m.Name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit(ctx)
}
