package workflow

import (
	"context"

	"github.com/garyjia/record-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/record-workflow/internal/domain/workflow"
)

// WorkflowService runs the submission and transition pipeline for every registered kind
type WorkflowService interface {
	// Submit validates the payload, issues an id and stores the item in its start state
	Submit(ctx context.Context, req SubmitRequest, actor entity.Actor) (*Result, error)

	// Assign moves the item to its assigned state. A nil assignee is resolved
	// through the kind's routing table.
	Assign(ctx context.Context, kind, id string, assignee *entity.Actor, by entity.Actor) (*Result, error)

	// UpdateStatus moves the item to target if the table allows it
	UpdateStatus(ctx context.Context, kind, id string, target domainwf.State, opts TransitionOptions) (*Result, error)

	// Resolve records a resolution and moves the item to the kind's resolution state
	Resolve(ctx context.Context, kind, id string, resolution map[string]any, actor entity.Actor) (*Result, error)

	// GetByID returns a snapshot of the item
	GetByID(ctx context.Context, kind, id string) (*entity.WorkflowItem, error)

	// ListByStatus returns items of a kind in a status
	ListByStatus(ctx context.Context, kind string, status domainwf.State, filter ListFilter, by entity.Actor) ([]*entity.WorkflowItem, error)

	// ListAssignedTo returns items of a kind assigned to identity
	ListAssignedTo(ctx context.Context, kind, identity string, filter ListFilter, by entity.Actor) ([]*entity.WorkflowItem, error)
}

// SubmitRequest is the input of Submit
type SubmitRequest struct {
	Kind    string
	Payload map[string]any
}

// TransitionOptions carries the actor and optional notes of a status update
type TransitionOptions struct {
	Actor entity.Actor
	Notes string
}

// ListFilter narrows list results. Payload filters match string forms of payload fields.
type ListFilter struct {
	Payload map[string]string
	Limit   int
	Offset  int
}

// Result is returned by every mutating operation
type Result struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Status     domainwf.State `json:"status"`
	Previous   domainwf.State `json:"previous_status,omitempty"`
	AssignedTo *entity.Actor  `json:"assigned_to,omitempty"`
	Resolution map[string]any `json:"resolution,omitempty"`
	Message    string         `json:"message"`
}
