package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/pkg/database"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupDB(t *testing.T) *DB {
	t.Helper()
	logger := zap.NewNop()

	conn, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "records.db"), MaxOpenConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, database.NewMigrator(conn, logger).RunMigrations(Migrations()))
	return NewDB(conn.DB, logger)
}

func record(id, status, assignedTo string) entity.Record {
	return entity.Record{
		entity.ColumnID:         id,
		entity.ColumnStatus:     status,
		entity.ColumnAssignedTo: assignedTo,
		entity.ColumnPayload:    `{"title":"T"}`,
		entity.ColumnHistory:    `[]`,
	}
}

func TestRecordRepository_InsertAndFind(t *testing.T) {
	repo := NewRecordRepository(setupDB(t), zap.NewNop())
	ctx := context.Background()

	id, err := repo.Insert(ctx, "technical", record("t-1", "submitted", ""))
	require.NoError(t, err)
	assert.Equal(t, "t-1", id)

	_, err = repo.Insert(ctx, "technical", record("t-1", "submitted", ""))
	assert.True(t, errors.Is(err, port.ErrDuplicateID))

	// ids are scoped per kind
	_, err = repo.Insert(ctx, "billing", record("t-1", "submitted", ""))
	require.NoError(t, err)

	_, err = repo.Insert(ctx, "technical", entity.Record{entity.ColumnID: "t-2", "bogus": "x"})
	assert.Error(t, err)

	rec, err := repo.FindByID(ctx, "technical", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "technical", rec[entity.ColumnKind])
	assert.Equal(t, `{"title":"T"}`, rec[entity.ColumnPayload])

	_, err = repo.FindByID(ctx, "technical", "missing")
	assert.True(t, errors.Is(err, port.ErrRecordNotFound))
}

func TestRecordRepository_UpdateWhere(t *testing.T) {
	repo := NewRecordRepository(setupDB(t), zap.NewNop())
	ctx := context.Background()

	_, err := repo.Insert(ctx, "technical", record("t-1", "submitted", ""))
	require.NoError(t, err)

	err = repo.UpdateWhere(ctx, "technical", entity.ColumnID, "t-1", entity.Record{
		entity.ColumnStatus:     "assigned",
		entity.ColumnAssignedTo: "eng-1",
	})
	require.NoError(t, err)

	rec, err := repo.FindByID(ctx, "technical", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "assigned", rec[entity.ColumnStatus])
	assert.Equal(t, "eng-1", rec[entity.ColumnAssignedTo])

	err = repo.UpdateWhere(ctx, "technical", entity.ColumnID, "nope", entity.Record{entity.ColumnStatus: "x"})
	assert.True(t, errors.Is(err, port.ErrNoMatch))

	err = repo.UpdateWhere(ctx, "billing", entity.ColumnID, "t-1", entity.Record{entity.ColumnStatus: "x"})
	assert.True(t, errors.Is(err, port.ErrNoMatch))

	assert.NoError(t, repo.UpdateWhere(ctx, "technical", entity.ColumnID, "t-1", entity.Record{}))

	err = repo.UpdateWhere(ctx, "technical", "id; DROP TABLE workflow_items", "t-1", entity.Record{})
	assert.Error(t, err)
}

func TestRecordRepository_FindWhereKeepsInsertionOrder(t *testing.T) {
	repo := NewRecordRepository(setupDB(t), zap.NewNop())
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		_, err := repo.Insert(ctx, "technical", record(id, "submitted", "eng-1"))
		require.NoError(t, err)
	}
	_, err := repo.Insert(ctx, "technical", record("d", "closed", "eng-1"))
	require.NoError(t, err)

	found, err := repo.FindWhere(ctx, "technical", map[string]string{
		entity.ColumnStatus:     "submitted",
		entity.ColumnAssignedTo: "eng-1",
	})
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "c", found[0][entity.ColumnID])
	assert.Equal(t, "a", found[1][entity.ColumnID])
	assert.Equal(t, "b", found[2][entity.ColumnID])

	_, err = repo.FindWhere(ctx, "technical", map[string]string{"nope": "x"})
	assert.Error(t, err)
}

func TestDB_WithTransactionRollsBack(t *testing.T) {
	db := setupDB(t)
	repo := NewRecordRepository(db, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := repo.Insert(txCtx, "technical", record("t-1", "submitted", "")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repo.FindByID(ctx, "technical", "t-1")
	assert.True(t, errors.Is(err, port.ErrRecordNotFound))

	err = db.WithTransaction(ctx, func(txCtx context.Context) error {
		_, err := repo.Insert(txCtx, "technical", record("t-2", "submitted", ""))
		return err
	})
	require.NoError(t, err)

	_, err = repo.FindByID(ctx, "technical", "t-2")
	assert.NoError(t, err)
}

func TestSequenceIssuer(t *testing.T) {
	db := setupDB(t)
	issuer := NewSequenceIssuer(db, zap.NewNop())
	ctx := context.Background()

	first, err := issuer.Next(ctx, "technical")
	require.NoError(t, err)
	assert.Equal(t, "TECHNICAL-000001", first)

	second, err := issuer.Next(ctx, "technical")
	require.NoError(t, err)
	assert.Equal(t, "TECHNICAL-000002", second)

	other, err := issuer.Next(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, "BILLING-000001", other)

	_, err = issuer.Next(ctx, "")
	assert.Error(t, err)
}

func TestSequenceIssuer_ConcurrentIDsAreUnique(t *testing.T) {
	issuer := NewSequenceIssuer(setupDB(t), zap.NewNop())
	ctx := context.Background()

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		ids = make(map[string]bool)
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := issuer.Next(ctx, "order_retail")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 20)
}

func TestDB_NestedTransactionJoinsOuter(t *testing.T) {
	db := setupDB(t)
	repo := NewRecordRepository(db, zap.NewNop())
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(outer context.Context) error {
		if err := db.WithTransaction(outer, func(inner context.Context) error {
			_, err := repo.Insert(inner, "technical", record("n-1", "submitted", ""))
			return err
		}); err != nil {
			return err
		}
		return errors.New("abort outer")
	})
	require.Error(t, err)

	_, err = repo.FindByID(ctx, "technical", "n-1")
	assert.ErrorIs(t, err, port.ErrRecordNotFound)
}

func TestDB_RetriesBusyTransactions(t *testing.T) {
	db := NewDB(nil, zap.NewNop(), WithBusyRetry(2, time.Millisecond))
	assert.Equal(t, 2, db.busyRetries)
	assert.Equal(t, time.Millisecond, db.busyBackoff)

	assert.True(t, isBusy(fmt.Errorf("insert: %w", sqlite3.Error{Code: sqlite3.ErrBusy})))
	assert.True(t, isBusy(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, isBusy(errors.New("boom")))
	assert.False(t, isDuplicateKey(sqlite3.Error{Code: sqlite3.ErrBusy}))
}

func TestDB_BusyRetryStopsOnCancel(t *testing.T) {
	base := setupDB(t)
	db := NewDB(base.conn, zap.NewNop(), WithBusyRetry(5, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := db.WithTransaction(ctx, func(context.Context) error {
		calls++
		cancel()
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
