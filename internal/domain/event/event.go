package event

import (
	"time"

	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/google/uuid"
)

// Event is emitted once per committed transition of a workflow item
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	Kind           string                 `json:"kind"`
	ItemID         string                 `json:"item_id"`
	PreviousStatus string                 `json:"previous_status,omitempty"`
	Actor          entity.Actor           `json:"actor"`
	Item           *entity.WorkflowItem   `json:"item"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	CorrelationID  string                 `json:"correlation_id"`
}

// NewEvent creates an event carrying a snapshot of the item after the transition
func NewEvent(eventType Type, item *entity.WorkflowItem, previous string, actor entity.Actor) *Event {
	id := uuid.NewString()
	e := &Event{
		ID:             id,
		Type:           eventType,
		PreviousStatus: previous,
		Actor:          actor,
		Item:           item.Clone(),
		Timestamp:      time.Now(),
		CorrelationID:  id,
	}
	if item != nil {
		e.Kind = item.Kind
		e.ItemID = item.ID
	}
	return e
}

// WithCorrelation returns a copy of the event linked to an existing correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	out := *e
	out.CorrelationID = correlationID
	return &out
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	out := *e
	out.Payload = newPayload
	return &out
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// CurrentStatus returns the item status carried by the event
func (e *Event) CurrentStatus() string {
	if e.Item == nil {
		return ""
	}
	return e.Item.Status
}
