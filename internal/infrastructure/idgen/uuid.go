// Package idgen issues item identifiers that need no shared state.
package idgen

import (
	"context"
	"fmt"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/google/uuid"
)

// UUIDIssuer issues ids of the form <kind>-<uuid v7>, which sort by creation time
type UUIDIssuer struct{}

var _ port.IDIssuer = UUIDIssuer{}

func (UUIDIssuer) Next(ctx context.Context, kind string) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("idgen: kind is required")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return kind + "-" + id.String(), nil
}
