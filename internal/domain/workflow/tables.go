package workflow

// NewDisputeMachine builds the table shared by all dispute kinds.
//
//	submitted -> assigned
//	assigned  -> in_review | submitted
//	in_review -> resolved | assigned
//	resolved  -> closed | in_review
//	closed    (terminal)
func NewDisputeMachine() StateMachine {
	b := NewBuilder("dispute")

	b.Configure(StateSubmitted).Permit(StateAssigned)
	b.Configure(StateAssigned).Permit(StateInReview, StateSubmitted)
	b.Configure(StateInReview).Permit(StateResolved, StateAssigned)
	b.Configure(StateResolved).Permit(StateClosed, StateInReview)
	b.Configure(StateClosed)

	return MustBuild(b, StateSubmitted)
}

// NewOrderMachine builds the order table. Orders are validated before routing;
// validated orders go straight to approved when auto-approval applies.
//
//	submitted -> validated
//	validated -> approved | assigned | submitted
//	assigned  -> in_review | validated
//	in_review -> approved | rejected | assigned
//	approved  -> closed
//	rejected  -> closed
//	closed    (terminal)
func NewOrderMachine() StateMachine {
	b := NewBuilder("order")

	b.Configure(StateSubmitted).Permit(StateValidated)
	b.Configure(StateValidated).Permit(StateApproved, StateAssigned, StateSubmitted)
	b.Configure(StateAssigned).Permit(StateInReview, StateValidated)
	b.Configure(StateInReview).Permit(StateApproved, StateRejected, StateAssigned)
	b.Configure(StateApproved).Permit(StateClosed)
	b.Configure(StateRejected).Permit(StateClosed)
	b.Configure(StateClosed)

	return MustBuild(b, StateSubmitted)
}
