package workflow

import "errors"

var (
	// ErrUnknownState is returned when a state is not part of the table
	ErrUnknownState = errors.New("unknown state")

	// ErrInvalidTable is returned when a transition table fails validation at build time
	ErrInvalidTable = errors.New("invalid transition table")
)
