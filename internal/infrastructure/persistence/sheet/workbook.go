// Package sheet stores workflow records in an xlsx workbook, one sheet per kind.
// Row 1 of every sheet holds the column header.
package sheet

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const defaultSheet = "Sheet1"

// Repository implements port.RecordRepository on a workbook kept in blob storage.
// Every call loads the workbook, and writes save it back whole.
type Repository struct {
	storage port.BlobStorage
	name    string
	logger  *zap.Logger

	mu sync.Mutex
}

// NewRepository creates a workbook repository stored under name
func NewRepository(storage port.BlobStorage, name string, logger *zap.Logger) *Repository {
	return &Repository{
		storage: storage,
		name:    name,
		logger:  logger,
	}
}

// Insert appends a record to the kind's sheet
func (r *Repository) Insert(ctx context.Context, kind string, rec entity.Record) (string, error) {
	id := rec[entity.ColumnID]
	if id == "" {
		return "", fmt.Errorf("insert %s: record has no id", kind)
	}
	for col, v := range rec {
		if !entity.IsColumn(col) {
			return "", fmt.Errorf("insert %s: unknown column %q", kind, col)
		}
		if err := checkCellLength(col, v); err != nil {
			return "", fmt.Errorf("insert %s %s: %w", kind, id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.open(ctx)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := ensureSheet(f, kind); err != nil {
		return "", err
	}

	table, err := readTable(f, kind)
	if err != nil {
		return "", err
	}
	if table.indexOf(entity.ColumnID, id) >= 0 {
		return "", fmt.Errorf("insert %s %s: %w", kind, id, port.ErrDuplicateID)
	}

	row := make([]interface{}, len(entity.Columns))
	for i, col := range entity.Columns {
		if col == entity.ColumnKind {
			row[i] = kind
			continue
		}
		row[i] = rec[col]
	}

	cell, err := excelize.CoordinatesToCellName(1, len(table.rows)+2)
	if err != nil {
		return "", err
	}
	if err := f.SetSheetRow(kind, cell, &row); err != nil {
		return "", fmt.Errorf("failed to write row: %w", err)
	}

	if err := r.save(ctx, f); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateWhere rewrites patched cells of every matching row
func (r *Repository) UpdateWhere(ctx context.Context, kind, field, value string, patch entity.Record) error {
	if !entity.IsColumn(field) {
		return fmt.Errorf("update %s: unknown column %q", kind, field)
	}
	for col, v := range patch {
		if !entity.IsColumn(col) {
			return fmt.Errorf("update %s: unknown column %q", kind, col)
		}
		if err := checkCellLength(col, v); err != nil {
			return fmt.Errorf("update %s: %w", kind, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := readTable(f, kind)
	if err != nil {
		return err
	}

	matched := 0
	for i, row := range table.rows {
		if table.value(row, field) != value {
			continue
		}
		matched++
		for col, v := range patch {
			if col == entity.ColumnID || col == entity.ColumnKind {
				continue
			}
			idx, ok := table.header[col]
			if !ok {
				return fmt.Errorf("update %s: sheet has no column %q", kind, col)
			}
			cell, err := excelize.CoordinatesToCellName(idx+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(kind, cell, v); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}
	if matched == 0 {
		return port.ErrNoMatch
	}

	return r.save(ctx, f)
}

// FindWhere returns matching records in row order
func (r *Repository) FindWhere(ctx context.Context, kind string, predicate map[string]string) ([]entity.Record, error) {
	for field := range predicate {
		if !entity.IsColumn(field) {
			return nil, fmt.Errorf("find %s: unknown column %q", kind, field)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := readTable(f, kind)
	if err != nil {
		return nil, err
	}

	var out []entity.Record
	for _, row := range table.rows {
		rec := table.record(row)
		if matches(rec, predicate) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FindByID returns one record or port.ErrRecordNotFound
func (r *Repository) FindByID(ctx context.Context, kind, id string) (entity.Record, error) {
	found, err := r.FindWhere(ctx, kind, map[string]string{entity.ColumnID: id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, port.ErrRecordNotFound
	}
	return found[0], nil
}

// open loads the workbook from storage or starts an empty one
func (r *Repository) open(ctx context.Context) (*excelize.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.storage.Exists(ctx, r.name) {
		return excelize.NewFile(), nil
	}

	data, err := r.storage.Read(ctx, r.name)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		r.logger.Error("Failed to open workbook", zap.String("name", r.name), zap.Error(err))
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return f, nil
}

func (r *Repository) save(ctx context.Context, f *excelize.File) error {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to encode workbook: %w", err)
	}
	if err := r.storage.Save(ctx, r.name, buf.Bytes()); err != nil {
		r.logger.Error("Failed to save workbook", zap.String("name", r.name), zap.Error(err))
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// ensureSheet creates the kind's sheet with its header row
func ensureSheet(f *excelize.File, kind string) error {
	idx, err := f.GetSheetIndex(kind)
	if err != nil {
		return fmt.Errorf("invalid sheet name %q: %w", kind, err)
	}
	if idx >= 0 {
		return nil
	}

	idx, err = f.NewSheet(kind)
	if err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", kind, err)
	}
	header := make([]interface{}, len(entity.Columns))
	for i, col := range entity.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(kind, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if kind != defaultSheet {
		if i, _ := f.GetSheetIndex(defaultSheet); i >= 0 {
			f.SetActiveSheet(idx)
			if err := f.DeleteSheet(defaultSheet); err != nil {
				return fmt.Errorf("failed to drop default sheet: %w", err)
			}
		}
	}
	return nil
}

// table is a sheet read into memory
type table struct {
	header map[string]int
	rows   [][]string
}

func readTable(f *excelize.File, kind string) (*table, error) {
	t := &table{header: make(map[string]int)}

	idx, err := f.GetSheetIndex(kind)
	if err != nil {
		return nil, fmt.Errorf("invalid sheet name %q: %w", kind, err)
	}
	if idx < 0 {
		return t, nil
	}

	rows, err := f.GetRows(kind)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", kind, err)
	}
	if len(rows) == 0 {
		return t, nil
	}
	for i, name := range rows[0] {
		t.header[name] = i
	}
	t.rows = rows[1:]
	return t, nil
}

// value reads a column of a row; GetRows trims trailing empty cells
func (t *table) value(row []string, col string) string {
	idx, ok := t.header[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func (t *table) indexOf(col, value string) int {
	for i, row := range t.rows {
		if t.value(row, col) == value {
			return i
		}
	}
	return -1
}

func (t *table) record(row []string) entity.Record {
	rec := make(entity.Record, len(t.header))
	for col := range t.header {
		rec[col] = t.value(row, col)
	}
	return rec
}

func matches(rec entity.Record, predicate map[string]string) bool {
	for k, v := range predicate {
		if rec[k] != v {
			return false
		}
	}
	return true
}

func checkCellLength(col, v string) error {
	if utf8.RuneCountInString(v) > excelize.TotalCellChars {
		return fmt.Errorf("column %s exceeds %d characters", col, excelize.TotalCellChars)
	}
	return nil
}

var _ port.RecordRepository = (*Repository)(nil)
