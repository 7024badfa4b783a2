package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

var memorySeq atomic.Int64

// Config holds connection settings for a SQLite file.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a statement waits on a locked database.
	// Defaults to 5s.
	BusyTimeout time.Duration

	// JournalMode defaults to WAL.
	JournalMode string
}

// DSN renders the go-sqlite3 connection string.
func (c Config) DSN() string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")

	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q.Set("_busy_timeout", strconv.FormatInt(busy.Milliseconds(), 10))

	if c.Path == MemoryPath {
		q.Set("mode", "memory")
		q.Set("cache", "shared")
		return fmt.Sprintf("file:memdb%d?%s", memorySeq.Add(1), q.Encode())
	}

	journal := c.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	q.Set("_journal_mode", journal)
	return fmt.Sprintf("file:%s?%s", c.Path, q.Encode())
}

// DB is an open SQLite pool.
type DB struct {
	*sql.DB
	path   string
	logger *zap.Logger
}

// New opens and pings the database. In-memory databases are pinned to a
// single connection so every query sees the same data.
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
	}

	pool, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("path", cfg.Path),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return &DB{DB: pool, path: cfg.Path, logger: logger}, nil
}

// Tx runs fn in a transaction, rolling back on error or panic.
func (db *DB) Tx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Health pings the database.
func (db *DB) Health(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	s := db.Stats()
	db.logger.Debug("Database pool",
		zap.Int("open", s.OpenConnections),
		zap.Int("in_use", s.InUse),
		zap.Int64("wait_count", s.WaitCount))
	return nil
}

// Close closes the pool.
func (db *DB) Close() error {
	db.logger.Info("Closing database connection", zap.String("path", db.path))
	return db.DB.Close()
}
