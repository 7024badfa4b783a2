package sheet

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func newRepo(t *testing.T) (*Repository, port.BlobStorage) {
	t.Helper()
	store := storage.NewLocalFileStorage(t.TempDir(), zap.NewNop())
	return NewRepository(store, "records.xlsx", zap.NewNop()), store
}

func TestRepository_InsertFindUpdate(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, "technical", entity.Record{
		entity.ColumnID:      "t-1",
		entity.ColumnStatus:  "submitted",
		entity.ColumnPayload: `{"title":"Printer"}`,
	})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, "technical", entity.Record{entity.ColumnID: "t-2", entity.ColumnStatus: "submitted"})
	require.NoError(t, err)

	_, err = repo.Insert(ctx, "technical", entity.Record{entity.ColumnID: "t-1"})
	assert.True(t, errors.Is(err, port.ErrDuplicateID))

	rec, err := repo.FindByID(ctx, "technical", "t-1")
	require.NoError(t, err)
	assert.Equal(t, "technical", rec[entity.ColumnKind])
	assert.Equal(t, `{"title":"Printer"}`, rec[entity.ColumnPayload])
	assert.Equal(t, "", rec[entity.ColumnAssignedTo])

	require.NoError(t, repo.UpdateWhere(ctx, "technical", entity.ColumnID, "t-2", entity.Record{
		entity.ColumnStatus:     "assigned",
		entity.ColumnAssignedTo: "eng-1",
	}))

	assigned, err := repo.FindWhere(ctx, "technical", map[string]string{entity.ColumnAssignedTo: "eng-1"})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, "t-2", assigned[0][entity.ColumnID])
	assert.Equal(t, "assigned", assigned[0][entity.ColumnStatus])

	err = repo.UpdateWhere(ctx, "technical", entity.ColumnID, "missing", entity.Record{entity.ColumnStatus: "x"})
	assert.True(t, errors.Is(err, port.ErrNoMatch))

	_, err = repo.FindByID(ctx, "billing", "t-1")
	assert.True(t, errors.Is(err, port.ErrRecordNotFound))
}

func TestRepository_PersistsAcrossInstances(t *testing.T) {
	repo, store := newRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, "order_retail", entity.Record{entity.ColumnID: "o-1", entity.ColumnStatus: "submitted"})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, "billing", entity.Record{entity.ColumnID: "b-1", entity.ColumnStatus: "submitted"})
	require.NoError(t, err)

	reopened := NewRepository(store, "records.xlsx", zap.NewNop())
	rec, err := reopened.FindByID(ctx, "order_retail", "o-1")
	require.NoError(t, err)
	assert.Equal(t, "submitted", rec[entity.ColumnStatus])

	data, err := store.Read(ctx, "records.xlsx")
	require.NoError(t, err)
	f, err := excelize.OpenReader(strings.NewReader(string(data)))
	require.NoError(t, err)
	defer f.Close()
	assert.ElementsMatch(t, []string{"order_retail", "billing"}, f.GetSheetList())

	header, err := f.GetRows("billing")
	require.NoError(t, err)
	assert.Equal(t, entity.Columns, header[0])
}

func TestRepository_RejectsBadInput(t *testing.T) {
	repo, _ := newRepo(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, "technical", entity.Record{entity.ColumnStatus: "submitted"})
	assert.Error(t, err)

	_, err = repo.Insert(ctx, "technical", entity.Record{entity.ColumnID: "t-1", "color": "red"})
	assert.Error(t, err)

	_, err = repo.Insert(ctx, "technical", entity.Record{
		entity.ColumnID:      "t-1",
		entity.ColumnHistory: strings.Repeat("x", excelize.TotalCellChars+1),
	})
	assert.Error(t, err)

	_, err = repo.FindWhere(ctx, "technical", map[string]string{"color": "red"})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = repo.FindWhere(cancelled, "technical", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
