package database

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const createVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Migration is one numbered schema change, e.g. "001_workflow_items.sql".
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// Migrator applies pending migrations in version order.
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a migrator for db.
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// RunMigrations applies the pending *.sql files in fsys, each in its own
// transaction.
func (m *Migrator) RunMigrations(fsys fs.FS) error {
	_, err := m.Migrate(context.Background(), fsys)
	return err
}

// Migrate applies pending migrations and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, createVersionTable); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	done, err := m.Applied(ctx)
	if err != nil {
		return 0, err
	}
	applied := make(map[int]bool, len(done))
	for _, a := range done {
		applied[a.Version] = true
	}

	ran := 0
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		m.logger.Info("Applying migration", zap.Int("version", mig.Version), zap.String("name", mig.Name))

		if err := m.db.Tx(ctx, func(tx *sql.Tx) error { return apply(ctx, tx, mig) }); err != nil {
			return ran, fmt.Errorf("migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		ran++
	}

	m.logger.Info("Schema up to date", zap.Int("applied", ran), zap.Int("total", len(migrations)))
	return ran, nil
}

func apply(ctx context.Context, tx *sql.Tx, mig Migration) error {
	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", mig.Version, mig.Name)
	return err
}

// Applied lists recorded migrations by version.
func (m *Migrator) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.Version, &a.Name, &a.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LoadMigrations collects the *.sql files under fsys, sorted by the
// numeric prefix of their file name. Duplicate versions are an error.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	var out []Migration
	byVersion := make(map[int]string)

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".sql" {
			return err
		}

		base := strings.TrimSuffix(path.Base(p), ".sql")
		prefix, name, _ := strings.Cut(base, "_")
		version, convErr := strconv.Atoi(prefix)
		if convErr != nil {
			return fmt.Errorf("migration %s: file name must start with a version number", p)
		}
		if other, dup := byVersion[version]; dup {
			return fmt.Errorf("migration version %d used by both %s and %s", version, other, p)
		}
		byVersion[version] = p

		body, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}
