package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

type txCtxKey struct{}

// DB is the record store's handle on SQLite. It scopes writes to
// transactions carried through the context and retries whole
// transactions the database refused because another writer held the lock.
type DB struct {
	conn   *sql.DB
	logger *zap.Logger

	busyRetries int
	busyBackoff time.Duration
}

// DBOption configures a DB.
type DBOption func(*DB)

// WithBusyRetry sets how many times a locked transaction is retried and
// the base backoff, which doubles per attempt.
func WithBusyRetry(retries int, backoff time.Duration) DBOption {
	return func(db *DB) {
		if retries >= 0 {
			db.busyRetries = retries
		}
		if backoff > 0 {
			db.busyBackoff = backoff
		}
	}
}

// NewDB wraps an open connection pool.
func NewDB(conn *sql.DB, logger *zap.Logger, opts ...DBOption) *DB {
	db := &DB{
		conn:        conn,
		logger:      logger,
		busyRetries: 3,
		busyBackoff: 20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// WithTransaction runs fn inside a transaction. A call made with a
// context that already carries one joins it, so only the outermost call
// commits or retries.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	backoff := db.busyBackoff
	for attempt := 0; ; attempt++ {
		err := db.runTx(ctx, fn)
		if err == nil || !isBusy(err) || attempt >= db.busyRetries {
			return err
		}

		db.logger.Warn("Database busy, retrying transaction",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				db.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func txFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txCtxKey{}).(*sql.Tx)
	return tx, ok
}

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// getExecutor returns the transaction in ctx, or the pool.
func (db *DB) getExecutor(ctx context.Context) querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db.conn
}

var _ port.TransactionManager = (*DB)(nil)

func isDuplicateKey(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// isBusy reports whether SQLite refused the statement because of a lock.
func isBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
