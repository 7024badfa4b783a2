package kind

import "github.com/garyjia/record-workflow/internal/domain/entity"

// Predicate decides eligibility of an item, e.g. for auto-approval
type Predicate func(item *entity.WorkflowItem) bool

// NumberBelow holds when the numeric payload field is present and strictly below max
func NumberBelow(field string, max float64) Predicate {
	return func(item *entity.WorkflowItem) bool {
		if item == nil {
			return false
		}
		n, ok := toFloat(item.Payload[field])
		return ok && n < max
	}
}

// FlagSet holds when the payload field is the boolean true
func FlagSet(field string) Predicate {
	return func(item *entity.WorkflowItem) bool {
		if item == nil {
			return false
		}
		b, ok := item.Payload[field].(bool)
		return ok && b
	}
}

// AllOf holds when every predicate holds. With no predicates it never holds.
func AllOf(preds ...Predicate) Predicate {
	return func(item *entity.WorkflowItem) bool {
		if len(preds) == 0 {
			return false
		}
		for _, p := range preds {
			if p == nil || !p(item) {
				return false
			}
		}
		return true
	}
}
