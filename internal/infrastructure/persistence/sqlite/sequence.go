package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/record-workflow/internal/application/port"
	"go.uber.org/zap"
)

// SequenceIssuer hands out per-kind sequential ids such as TECHNICAL-000042
type SequenceIssuer struct {
	db     *DB
	logger *zap.Logger
}

// NewSequenceIssuer creates an issuer backed by the id_sequences table
func NewSequenceIssuer(db *DB, logger *zap.Logger) *SequenceIssuer {
	return &SequenceIssuer{db: db, logger: logger}
}

// Next increments and returns the kind's counter in a single statement
func (s *SequenceIssuer) Next(ctx context.Context, kind string) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("sequence: kind is required")
	}

	query := `
		INSERT INTO id_sequences (kind, value) VALUES (?, 1)
		ON CONFLICT(kind) DO UPDATE SET value = value + 1
		RETURNING value
	`

	var n int64
	if err := s.db.getExecutor(ctx).QueryRowContext(ctx, query, kind).Scan(&n); err != nil {
		s.logger.Error("Failed to advance id sequence", zap.String("kind", kind), zap.Error(err))
		return "", fmt.Errorf("failed to advance id sequence: %w", err)
	}

	return fmt.Sprintf("%s-%06d", strings.ToUpper(kind), n), nil
}

var _ port.IDIssuer = (*SequenceIssuer)(nil)
