package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the flat form of an item as stored by a repository
type Record map[string]string

// ToRecord flattens an item into storage columns
func ToRecord(item *WorkflowItem) (Record, error) {
	submitted, err := json.Marshal(item.SubmittedBy)
	if err != nil {
		return nil, fmt.Errorf("marshal submitted_by: %w", err)
	}
	payload, err := marshalMap(item.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	resolution, err := marshalMap(item.Resolution)
	if err != nil {
		return nil, fmt.Errorf("marshal resolution: %w", err)
	}
	history, err := json.Marshal(item.History)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}

	rec := Record{
		ColumnID:          item.ID,
		ColumnKind:        item.Kind,
		ColumnStatus:      item.Status,
		ColumnSubmittedBy: string(submitted),
		ColumnPayload:     payload,
		ColumnResolution:  resolution,
		ColumnHistory:     string(history),
		ColumnCreatedAt:   formatTime(item.CreatedAt),
		ColumnUpdatedAt:   formatTime(item.LastUpdated),
	}

	if item.AssignedTo != nil {
		assignee, err := json.Marshal(item.AssignedTo)
		if err != nil {
			return nil, fmt.Errorf("marshal assignee: %w", err)
		}
		rec[ColumnAssignedTo] = item.AssignedTo.ID
		rec[ColumnAssignee] = string(assignee)
	} else {
		rec[ColumnAssignedTo] = ""
		rec[ColumnAssignee] = ""
	}

	return rec, nil
}

// FromRecord rebuilds an item from storage columns
func FromRecord(rec Record) (*WorkflowItem, error) {
	item := &WorkflowItem{
		ID:     rec[ColumnID],
		Kind:   rec[ColumnKind],
		Status: rec[ColumnStatus],
	}

	if err := unmarshalColumn(rec, ColumnSubmittedBy, &item.SubmittedBy); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(rec, ColumnPayload, &item.Payload); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(rec, ColumnResolution, &item.Resolution); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(rec, ColumnHistory, &item.History); err != nil {
		return nil, err
	}
	if rec[ColumnAssignee] != "" {
		var assignee Actor
		if err := unmarshalColumn(rec, ColumnAssignee, &assignee); err != nil {
			return nil, err
		}
		item.AssignedTo = &assignee
	} else if id := rec[ColumnAssignedTo]; id != "" {
		item.AssignedTo = &Actor{ID: id}
	}

	var err error
	if item.CreatedAt, err = parseTime(rec[ColumnCreatedAt]); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ColumnCreatedAt, err)
	}
	if item.LastUpdated, err = parseTime(rec[ColumnUpdatedAt]); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ColumnUpdatedAt, err)
	}

	return item, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalColumn(rec Record, column string, dst any) error {
	raw := rec[column]
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", column, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
