package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"go.uber.org/zap"
)

const itemsTable = "workflow_items"

// RecordRepository implements port.RecordRepository on a single table keyed by (kind, id)
type RecordRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *DB, logger *zap.Logger) *RecordRepository {
	return &RecordRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a new record. Unknown columns are rejected.
func (r *RecordRepository) Insert(ctx context.Context, kind string, rec entity.Record) (string, error) {
	id := rec[entity.ColumnID]
	if id == "" {
		return "", fmt.Errorf("insert %s: record has no id", kind)
	}
	if err := checkColumns(rec); err != nil {
		return "", fmt.Errorf("insert %s: %w", kind, err)
	}

	args := make([]interface{}, 0, len(entity.Columns))
	for _, col := range entity.Columns {
		if col == entity.ColumnKind {
			args = append(args, kind)
			continue
		}
		args = append(args, rec[col])
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		itemsTable,
		strings.Join(entity.Columns, ", "),
		placeholders(len(entity.Columns)),
	)

	if _, err := r.db.getExecutor(ctx).ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return "", fmt.Errorf("insert %s %s: %w", kind, id, port.ErrDuplicateID)
		}
		r.logger.Error("Failed to insert record", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return "", fmt.Errorf("failed to insert record: %w", err)
	}

	return id, nil
}

// UpdateWhere applies patch to every record of kind whose field equals value
func (r *RecordRepository) UpdateWhere(ctx context.Context, kind, field, value string, patch entity.Record) error {
	if !entity.IsColumn(field) {
		return fmt.Errorf("update %s: unknown column %q", kind, field)
	}
	if err := checkColumns(patch); err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}

	cols := make([]string, 0, len(patch))
	for col := range patch {
		if col == entity.ColumnKind || col == entity.ColumnID {
			continue
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	if len(cols) == 0 {
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE kind = ? AND %s = ?", itemsTable, field)
		if err := r.db.getExecutor(ctx).QueryRowContext(ctx, query, kind, value).Scan(&n); err != nil {
			return fmt.Errorf("failed to count records: %w", err)
		}
		if n == 0 {
			return port.ErrNoMatch
		}
		return nil
	}

	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+2)
	for i, col := range cols {
		sets[i] = col + " = ?"
		args = append(args, patch[col])
	}
	args = append(args, kind, value)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE kind = ? AND %s = ?", itemsTable, strings.Join(sets, ", "), field)
	result, err := r.db.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update records",
			zap.String("kind", kind),
			zap.String("field", field),
			zap.String("value", value),
			zap.Error(err))
		return fmt.Errorf("failed to update records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return port.ErrNoMatch
	}
	return nil
}

// FindWhere returns the records of kind matching every predicate column, in insertion order
func (r *RecordRepository) FindWhere(ctx context.Context, kind string, predicate map[string]string) ([]entity.Record, error) {
	fields := make([]string, 0, len(predicate))
	for field := range predicate {
		if !entity.IsColumn(field) {
			return nil, fmt.Errorf("find %s: unknown column %q", kind, field)
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	where := []string{"kind = ?"}
	args := []interface{}{kind}
	for _, field := range fields {
		where = append(where, field+" = ?")
		args = append(args, predicate[field])
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY rowid ASC",
		strings.Join(entity.Columns, ", "),
		itemsTable,
		strings.Join(where, " AND "),
	)

	rows, err := r.db.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query records", zap.String("kind", kind), zap.Error(err))
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []entity.Record
	for rows.Next() {
		values := make([]string, len(entity.Columns))
		dest := make([]interface{}, len(values))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		rec := make(entity.Record, len(values))
		for i, col := range entity.Columns {
			rec[col] = values[i]
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// FindByID returns a single record or port.ErrRecordNotFound
func (r *RecordRepository) FindByID(ctx context.Context, kind, id string) (entity.Record, error) {
	records, err := r.FindWhere(ctx, kind, map[string]string{entity.ColumnID: id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, port.ErrRecordNotFound
	}
	return records[0], nil
}

func checkColumns(rec entity.Record) error {
	var unknown []string
	for col := range rec {
		if !entity.IsColumn(col) {
			unknown = append(unknown, col)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.New("unknown columns: " + strings.Join(unknown, ", "))
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Verify interface compliance
var _ port.RecordRepository = (*RecordRepository)(nil)
