package kind

import (
	"strings"

	"github.com/garyjia/record-workflow/internal/domain/entity"
)

// Routing picks a default assignee when assign is called without one
type Routing struct {
	// Field is the payload field used to select a pool, e.g. "priority"
	Field string
	// Pools maps a field value to its assignee
	Pools map[string]entity.Actor
	// Default is used when no pool matches
	Default *entity.Actor
}

// Route returns the assignee for the item, or false when the table has no answer
func (r Routing) Route(item *entity.WorkflowItem) (entity.Actor, bool) {
	if r.Field != "" && len(r.Pools) > 0 {
		value := strings.ToLower(item.PayloadString(r.Field))
		if a, ok := r.Pools[value]; ok && !a.IsZero() {
			return a, true
		}
	}
	if r.Default != nil && !r.Default.IsZero() {
		return *r.Default, true
	}
	return entity.Actor{}, false
}
