package entity

import (
	"fmt"
	"time"
)

// WorkflowItem is a record moving through a kind's transition table
type WorkflowItem struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload"`
	SubmittedBy Actor          `json:"submitted_by"`
	AssignedTo  *Actor         `json:"assigned_to,omitempty"`
	Resolution  map[string]any `json:"resolution,omitempty"`
	History     History        `json:"history"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Clone returns a deep copy so snapshots can be handed out safely
func (w *WorkflowItem) Clone() *WorkflowItem {
	if w == nil {
		return nil
	}
	out := *w
	out.Payload = CloneMap(w.Payload)
	out.Resolution = CloneMap(w.Resolution)
	out.History = w.History.clone()
	if w.AssignedTo != nil {
		assignee := *w.AssignedTo
		out.AssignedTo = &assignee
	}
	return &out
}

// IsAssignedTo reports whether identity is the current assignee
func (w *WorkflowItem) IsAssignedTo(identity string) bool {
	return w != nil && w.AssignedTo != nil && identity != "" && w.AssignedTo.ID == identity
}

// PayloadString returns a payload field rendered as a string
func (w *WorkflowItem) PayloadString(key string) string {
	if w == nil || w.Payload == nil {
		return ""
	}
	v, ok := w.Payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// CheckAuditInvariant verifies the history is non-empty and ends at the current status
func (w *WorkflowItem) CheckAuditInvariant() error {
	last, ok := w.History.Last()
	if !ok {
		return fmt.Errorf("item %s has empty history", w.ID)
	}
	if last.Status != w.Status {
		return fmt.Errorf("item %s history ends at %q but status is %q", w.ID, last.Status, w.Status)
	}
	return nil
}

// CloneMap deep-copies a JSON-like map
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
