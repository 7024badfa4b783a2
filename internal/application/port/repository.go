package port

import (
	"context"
	"errors"

	"github.com/garyjia/record-workflow/internal/domain/entity"
)

// ErrRecordNotFound is returned by FindByID when no record matches
var ErrRecordNotFound = errors.New("record not found")

// ErrNoMatch is returned by UpdateWhere when no record matched the filter
var ErrNoMatch = errors.New("no record matched")

// ErrDuplicateID is returned by Insert when the kind already holds the id
var ErrDuplicateID = errors.New("duplicate record id")

// RecordRepository is the kind-scoped store of flat item records
type RecordRepository interface {
	// Insert stores a new record and returns its id
	Insert(ctx context.Context, kind string, rec entity.Record) (string, error)

	// UpdateWhere applies patch to every record whose field equals value
	UpdateWhere(ctx context.Context, kind, field, value string, patch entity.Record) error

	// FindWhere returns records matching every predicate column, oldest first
	FindWhere(ctx context.Context, kind string, predicate map[string]string) ([]entity.Record, error)

	// FindByID returns one record or ErrRecordNotFound
	FindByID(ctx context.Context, kind, id string) (entity.Record, error)
}

// IDIssuer hands out unique item identifiers
type IDIssuer interface {
	Next(ctx context.Context, kind string) (string, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
