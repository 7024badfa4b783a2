package event

import (
	"testing"

	"github.com/garyjia/record-workflow/internal/domain/entity"
)

func TestType_IsValid(t *testing.T) {
	for _, typ := range AllTypes() {
		if !typ.IsValid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if Type("item.deleted").IsValid() {
		t.Error("unknown type should not be valid")
	}
	if Type("").IsValid() {
		t.Error("empty type should not be valid")
	}
}

func TestNewEvent_SnapshotsItem(t *testing.T) {
	item := &entity.WorkflowItem{
		ID:      "technical-1",
		Kind:    "technical",
		Status:  "assigned",
		Payload: map[string]any{"title": "Login broken"},
	}

	e := NewEvent(TypeItemAssigned, item, "submitted", entity.Actor{ID: "admin"})

	if e.ID == "" || e.CorrelationID != e.ID {
		t.Errorf("unexpected ids: id=%q correlation=%q", e.ID, e.CorrelationID)
	}
	if e.ItemID != "technical-1" || e.Kind != "technical" {
		t.Errorf("item reference not copied: %+v", e)
	}
	if e.CurrentStatus() != "assigned" || e.PreviousStatus != "submitted" {
		t.Errorf("status = %s previous = %s", e.CurrentStatus(), e.PreviousStatus)
	}

	item.Payload["title"] = "changed"
	if e.Item.Payload["title"] != "Login broken" {
		t.Error("event shares payload with the live item")
	}
}

func TestEvent_WithPayloadIsImmutable(t *testing.T) {
	e := NewEvent(TypeItemSubmitted, &entity.WorkflowItem{ID: "x"}, "", entity.Actor{})
	e2 := e.WithPayload("channel", "lark")

	if e.GetPayloadString("channel") != "" {
		t.Error("original event was modified")
	}
	if e2.GetPayloadString("channel") != "lark" {
		t.Errorf("GetPayloadString() = %q, want lark", e2.GetPayloadString("channel"))
	}
	if e2.ID != e.ID {
		t.Error("WithPayload should keep the event id")
	}
}

func TestEvent_WithCorrelation(t *testing.T) {
	e := NewEvent(TypeItemSubmitted, &entity.WorkflowItem{ID: "x"}, "", entity.Actor{})
	linked := e.WithCorrelation("chain-1")
	if linked.CorrelationID != "chain-1" || e.CorrelationID == "chain-1" {
		t.Error("WithCorrelation should copy the event")
	}
}
