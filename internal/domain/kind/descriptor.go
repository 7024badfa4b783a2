package kind

import (
	"fmt"

	"github.com/garyjia/record-workflow/internal/domain/apperror"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/garyjia/record-workflow/internal/domain/workflow"
)

// Descriptor carries everything the engine needs to run one kind
type Descriptor struct {
	Name    string
	Family  string
	Machine workflow.StateMachine

	Schema           Schema
	ResolutionSchema Schema
	Routing          Routing
	// Watchers are contacts notified of every transition of this kind
	Watchers []string

	// AssignState is entered by assign
	AssignState workflow.State
	// ResolveTarget picks the state entered by resolve
	ResolveTarget func(resolution map[string]any) workflow.State
	// ResolutionStates can only be entered once a resolution is recorded
	ResolutionStates []workflow.State

	// RoutingState triggers auto-approval when entered from the start state
	RoutingState workflow.State
	// ApproveState is the auto-approval target
	ApproveState workflow.State
	// AutoApprove is the eligibility predicate; nil disables auto-approval
	AutoApprove Predicate
}

// Validate checks the descriptor is internally consistent
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("kind: empty name")
	}
	if d.Machine == nil {
		return fmt.Errorf("kind %s: no state machine", d.Name)
	}
	if d.ResolveTarget == nil {
		return fmt.Errorf("kind %s: no resolve target", d.Name)
	}
	known := make(map[workflow.State]bool)
	for _, s := range d.Machine.States() {
		known[s] = true
	}
	if !known[d.AssignState] {
		return fmt.Errorf("kind %s: assign state %q not in table", d.Name, d.AssignState)
	}
	if d.AutoApprove != nil {
		ok, err := d.Machine.CanTransition(d.RoutingState, d.ApproveState)
		if err != nil || !ok {
			return fmt.Errorf("kind %s: auto-approval %s -> %s not in table", d.Name, d.RoutingState, d.ApproveState)
		}
	}
	return nil
}

// EligibleForAutoApproval reports whether an item that just moved from
// previous into its current state should be approved automatically
func (d *Descriptor) EligibleForAutoApproval(previous workflow.State, item *entity.WorkflowItem) bool {
	if d.AutoApprove == nil || d.RoutingState == "" {
		return false
	}
	if previous != d.Machine.Start() || workflow.State(item.Status) != d.RoutingState {
		return false
	}
	return d.AutoApprove(item)
}

// IsResolutionState reports whether entering s requires a resolution
func (d *Descriptor) IsResolutionState(s workflow.State) bool {
	for _, target := range d.ResolutionStates {
		if target == s {
			return true
		}
	}
	return false
}

// CheckGuards enforces per-state preconditions on the mutated item before it is persisted
func (d *Descriptor) CheckGuards(item *entity.WorkflowItem, target workflow.State) error {
	if target == d.AssignState && item.AssignedTo == nil {
		return apperror.Validation(apperror.FieldError{Field: "assignee", Message: "is required to enter " + target.String()})
	}
	if d.IsResolutionState(target) && len(item.Resolution) == 0 {
		return apperror.Validation(apperror.FieldError{Field: "resolution", Message: "is required to enter " + target.String()})
	}
	return nil
}
