package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/entity"
)

// Store is an in-memory record repository for tests and local runs.
// Records keep insertion order per kind.
type Store struct {
	mu    sync.Mutex
	kinds map[string][]entity.Record
}

var _ port.RecordRepository = (*Store)(nil)

func NewStore() *Store {
	return &Store{kinds: make(map[string][]entity.Record)}
}

func (s *Store) Insert(ctx context.Context, kind string, rec entity.Record) (string, error) {
	id := rec[entity.ColumnID]
	if id == "" {
		return "", fmt.Errorf("insert %s: record has no id", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.kinds[kind] {
		if existing[entity.ColumnID] == id {
			return "", fmt.Errorf("insert %s %s: %w", kind, id, port.ErrDuplicateID)
		}
	}
	s.kinds[kind] = append(s.kinds[kind], copyRecord(rec))
	return id, nil
}

func (s *Store) UpdateWhere(ctx context.Context, kind, field, value string, patch entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := 0
	for _, rec := range s.kinds[kind] {
		if rec[field] != value {
			continue
		}
		for k, v := range patch {
			rec[k] = v
		}
		matched++
	}
	if matched == 0 {
		return port.ErrNoMatch
	}
	return nil
}

func (s *Store) FindWhere(ctx context.Context, kind string, predicate map[string]string) ([]entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.Record
	for _, rec := range s.kinds[kind] {
		if matches(rec, predicate) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, kind, id string) (entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.kinds[kind] {
		if rec[entity.ColumnID] == id {
			return copyRecord(rec), nil
		}
	}
	return nil, port.ErrRecordNotFound
}

// Count returns the number of records of a kind
func (s *Store) Count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.kinds[kind])
}

func matches(rec entity.Record, predicate map[string]string) bool {
	for k, v := range predicate {
		if rec[k] != v {
			return false
		}
	}
	return true
}

func copyRecord(rec entity.Record) entity.Record {
	out := make(entity.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
