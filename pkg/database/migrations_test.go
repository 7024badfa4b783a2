package database

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"002_add_index.sql": {Data: []byte("CREATE INDEX idx_t_name ON t(name);")},
		"001_create_t.sql":  {Data: []byte("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT);")},
		"README.md":         {Data: []byte("ignored")},
		"nested/003_x.sql":  {Data: []byte("SELECT 1;")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create_t", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 3, migrations[2].Version)
}

func TestLoadMigrations_Invalid(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"initial.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	})
	assert.Error(t, err)
}

func TestMigrator_RunMigrationsIsIdempotent(t *testing.T) {
	logger := zap.NewNop()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 1}, logger)
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"001_create_t.sql": {Data: []byte("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT);")},
	}

	m := NewMigrator(db, logger)
	require.NoError(t, m.RunMigrations(fsys))
	require.NoError(t, m.RunMigrations(fsys))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)

	_, err = db.Exec("INSERT INTO t (name) VALUES ('x')")
	assert.NoError(t, err)
}

func TestMigrator_MigrateReportsApplied(t *testing.T) {
	logger := zap.NewNop()
	db, err := New(Config{Path: MemoryPath}, logger)
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, logger)
	ctx := context.Background()

	ran, err := m.Migrate(ctx, fstest.MapFS{
		"001_create_t.sql": {Data: []byte("CREATE TABLE t (id INTEGER PRIMARY KEY);")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ran)

	ran, err = m.Migrate(ctx, fstest.MapFS{
		"001_create_t.sql": {Data: []byte("CREATE TABLE t (id INTEGER PRIMARY KEY);")},
		"002_broken.sql":   {Data: []byte("CREATE TABLE nope (")},
	})
	assert.Error(t, err)
	assert.Equal(t, 0, ran)

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "create_t", applied[0].Name)
	assert.False(t, applied[0].AppliedAt.IsZero())
}

func TestConfig_DSN(t *testing.T) {
	dsn := Config{Path: "data/w.db", BusyTimeout: 2 * time.Second}.DSN()
	assert.Contains(t, dsn, "file:data/w.db?")
	assert.Contains(t, dsn, "_busy_timeout=2000")
	assert.Contains(t, dsn, "_journal_mode=WAL")

	a, b := Config{Path: MemoryPath}.DSN(), Config{Path: MemoryPath}.DSN()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "mode=memory")
}
