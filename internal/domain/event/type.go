package event

// Type identifies the type of domain event
type Type string

const (
	TypeItemSubmitted     Type = "item.submitted"
	TypeItemAssigned      Type = "item.assigned"
	TypeItemStatusChanged Type = "item.status_changed"
	TypeItemResolved      Type = "item.resolved"
	TypeItemAutoApproved  Type = "item.auto_approved"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeItemSubmitted,
		TypeItemAssigned,
		TypeItemStatusChanged,
		TypeItemResolved,
		TypeItemAutoApproved:
		return true
	default:
		return false
	}
}

// AllTypes lists every transition event type
func AllTypes() []Type {
	return []Type{
		TypeItemSubmitted,
		TypeItemAssigned,
		TypeItemStatusChanged,
		TypeItemResolved,
		TypeItemAutoApproved,
	}
}
