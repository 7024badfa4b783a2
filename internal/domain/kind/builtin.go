package kind

import (
	"github.com/garyjia/record-workflow/internal/domain/workflow"
)

// Families of built-in kinds
const (
	FamilyDispute = "dispute"
	FamilyOrder   = "order"
)

// Built-in kind names
const (
	KindRegistration   = "registration"
	KindTechnical      = "technical"
	KindBilling        = "billing"
	KindOrderRetail    = "order_retail"
	KindOrderWholesale = "order_wholesale"
)

// Payload field names shared by the built-in schemas
const (
	FieldPriority         = "priority"
	FieldVolume           = "volume"
	FieldVerifiedCustomer = "verified_customer"
	FieldDecision         = "decision"
	FieldSummary          = "summary"
)

// Decision values for order resolutions
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// DisputeKinds lists the built-in dispute kinds
var DisputeKinds = []string{KindRegistration, KindTechnical, KindBilling}

// OrderKinds lists the built-in order kinds
var OrderKinds = []string{KindOrderRetail, KindOrderWholesale}

// Priorities accepted by dispute payloads, lowest first
var Priorities = []string{"low", "medium", "high", "critical"}

// DisputeSchema is the payload schema of dispute kinds
func DisputeSchema() Schema {
	return Schema{
		{Name: "title", Type: FieldString, Required: true, MaxLen: 200, Aliases: []string{"subject"}},
		{Name: "description", Type: FieldString, Required: true, MaxLen: 5000, Aliases: []string{"details", "message"}},
		{Name: FieldPriority, Type: FieldEnum, Required: true, Enum: Priorities, Aliases: []string{"urgency"}},
		{Name: "contact_email", Type: FieldEmail, MaxLen: 254, Aliases: []string{"email"}},
		{Name: "contact_phone", Type: FieldPhone, MaxLen: 20, Aliases: []string{"phone", "mobile"}},
		{Name: "reference", Type: FieldString, MaxLen: 100, Aliases: []string{"ref", "account"}},
	}
}

// DisputeResolutionSchema is the resolution schema of dispute kinds
func DisputeResolutionSchema() Schema {
	return Schema{
		{Name: FieldSummary, Type: FieldString, Required: true, MaxLen: 2000},
		{Name: "root_cause", Type: FieldString, MaxLen: 2000},
	}
}

// OrderSchema is the payload schema of order kinds
func OrderSchema() Schema {
	return Schema{
		{Name: "customer_name", Type: FieldString, Required: true, MaxLen: 120, Aliases: []string{"name"}},
		{Name: "customer_email", Type: FieldEmail, Required: true, MaxLen: 254, Aliases: []string{"email"}},
		{Name: "customer_phone", Type: FieldPhone, MaxLen: 20, Aliases: []string{"phone"}},
		{Name: "delivery_address", Type: FieldString, Required: true, MaxLen: 500, Aliases: []string{"address"}},
		{Name: FieldVolume, Type: FieldNumber, Required: true, Min: floatPtr(1), Aliases: []string{"quantity", "qty"}},
		{Name: FieldVerifiedCustomer, Type: FieldBool, Aliases: []string{"verified"}},
		{Name: "notes", Type: FieldString, MaxLen: 2000},
	}
}

// OrderResolutionSchema is the resolution schema of order kinds
func OrderResolutionSchema() Schema {
	return Schema{
		{Name: FieldDecision, Type: FieldEnum, Required: true, Enum: []string{DecisionApprove, DecisionReject}},
		{Name: FieldSummary, Type: FieldString, MaxLen: 2000},
	}
}

// NewDisputeKind builds a dispute descriptor
func NewDisputeKind(name string, routing Routing, watchers []string) *Descriptor {
	return &Descriptor{
		Name:             name,
		Family:           FamilyDispute,
		Machine:          workflow.NewDisputeMachine(),
		Schema:           DisputeSchema(),
		ResolutionSchema: DisputeResolutionSchema(),
		Routing:          routing,
		Watchers:         watchers,
		AssignState:      workflow.StateAssigned,
		ResolveTarget: func(map[string]any) workflow.State {
			return workflow.StateResolved
		},
		ResolutionStates: []workflow.State{workflow.StateResolved},
	}
}

// NewOrderKind builds an order descriptor. A nil autoApprove disables auto-approval.
func NewOrderKind(name string, routing Routing, watchers []string, autoApprove Predicate) *Descriptor {
	return &Descriptor{
		Name:             name,
		Family:           FamilyOrder,
		Machine:          workflow.NewOrderMachine(),
		Schema:           OrderSchema(),
		ResolutionSchema: OrderResolutionSchema(),
		Routing:          routing,
		Watchers:         watchers,
		AssignState:      workflow.StateAssigned,
		ResolveTarget: func(resolution map[string]any) workflow.State {
			if d, _ := resolution[FieldDecision].(string); d == DecisionReject {
				return workflow.StateRejected
			}
			return workflow.StateApproved
		},
		ResolutionStates: []workflow.State{workflow.StateApproved, workflow.StateRejected},
		RoutingState:     workflow.StateValidated,
		ApproveState:     workflow.StateApproved,
		AutoApprove:      autoApprove,
	}
}

// VerifiedSmallOrder is the default auto-approval rule: volume below max and a verified customer
func VerifiedSmallOrder(maxVolume float64) Predicate {
	return AllOf(NumberBelow(FieldVolume, maxVolume), FlagSet(FieldVerifiedCustomer))
}
