package dispatcher

import (
	"context"

	"github.com/garyjia/record-workflow/internal/domain/event"
)

// Handler reacts to one transition event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo is a registered handler and the event type it listens to
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// ForKinds wraps h so it only sees events of the listed kinds.
// With no kinds, h is returned unchanged.
func ForKinds(h Handler, kinds ...string) Handler {
	if len(kinds) == 0 {
		return h
	}
	allowed := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		allowed[k] = struct{}{}
	}
	return func(ctx context.Context, evt *event.Event) error {
		if _, ok := allowed[evt.Kind]; !ok {
			return nil
		}
		return h(ctx, evt)
	}
}
