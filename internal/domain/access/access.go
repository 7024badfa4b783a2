package access

import (
	"strings"

	"github.com/garyjia/record-workflow/internal/domain/entity"
)

// Operation names a guarded workflow operation
type Operation string

const (
	OpSubmit       Operation = "submit"
	OpAssign       Operation = "assign"
	OpUpdateStatus Operation = "update_status"
	OpResolve      Operation = "resolve"
	OpViewAll      Operation = "view_all"
	OpViewAssigned Operation = "view_assigned"
)

// Sentinel roles with special meaning in a permission table
const (
	// RoleAny allows every actor
	RoleAny = "any"
	// RoleAssignedActor allows the actor currently assigned to the item
	RoleAssignedActor = "assigned_actor"
)

// Table maps an operation to the roles allowed to perform it
type Table map[Operation][]string

// Operations lists every guarded operation
func Operations() []Operation {
	return []Operation{OpSubmit, OpAssign, OpUpdateStatus, OpResolve, OpViewAll, OpViewAssigned}
}

// DefaultTable is the deployment default used when no policy file is configured
func DefaultTable() Table {
	return Table{
		OpSubmit:       {RoleAny},
		OpAssign:       {entity.RoleAdmin, entity.RoleManager, entity.RoleSystem},
		OpUpdateStatus: {entity.RoleAdmin, entity.RoleManager, RoleAssignedActor},
		OpResolve:      {entity.RoleAdmin, entity.RoleManager, RoleAssignedActor},
		OpViewAll:      {entity.RoleAdmin, entity.RoleManager},
		OpViewAssigned: {entity.RoleAdmin, entity.RoleManager, RoleAssignedActor},
	}
}

type rule struct {
	any      bool
	assigned bool
	roles    map[string]struct{}
}

// Policy evaluates a permission table. It is immutable and safe for concurrent use.
type Policy struct {
	rules map[Operation]rule
}

// NewPolicy compiles a table. Role names are trimmed and lower-cased.
func NewPolicy(t Table) *Policy {
	p := &Policy{rules: make(map[Operation]rule, len(t))}
	for op, roles := range t {
		r := rule{roles: make(map[string]struct{}, len(roles))}
		for _, role := range roles {
			switch normalize(role) {
			case RoleAny:
				r.any = true
			case RoleAssignedActor:
				r.assigned = true
			case "":
			default:
				r.roles[normalize(role)] = struct{}{}
			}
		}
		p.rules[Operation(normalize(string(op)))] = r
	}
	return p
}

// IsAllowed decides whether actor may perform op on item (item may be nil).
// Order: "any" wins, then the actor's role, then the assigned-actor override.
// Unknown operations are denied.
func (p *Policy) IsAllowed(actor entity.Actor, op Operation, item *entity.WorkflowItem) bool {
	r, ok := p.rules[op]
	if !ok {
		return false
	}
	if r.any {
		return true
	}
	if _, ok := r.roles[normalize(actor.Role)]; ok {
		return true
	}
	if r.assigned && item.IsAssignedTo(actor.ID) {
		return true
	}
	return false
}

// Roles returns the normalized roles allowed for op, sentinels included
func (p *Policy) Roles(op Operation) []string {
	r, ok := p.rules[op]
	if !ok {
		return nil
	}
	var out []string
	if r.any {
		out = append(out, RoleAny)
	}
	for role := range r.roles {
		out = append(out, role)
	}
	if r.assigned {
		out = append(out, RoleAssignedActor)
	}
	return out
}

func normalize(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
