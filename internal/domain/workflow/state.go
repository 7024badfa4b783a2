package workflow

// State is a named lifecycle state of a workflow item
type State string

// Shared state names used by the built-in kinds. Tables are free to define others.
const (
	StateSubmitted State = "submitted"
	StateValidated State = "validated"
	StateAssigned  State = "assigned"
	StateInReview  State = "in_review"
	StateResolved  State = "resolved"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateClosed    State = "closed"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid reports whether the state has a usable name
func (s State) IsValid() bool {
	return s != ""
}

// ParseState converts a raw status value into a State
func ParseState(raw string) State {
	return State(raw)
}
