package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo names a subscription. Handler is nil in ListHandlers results.
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}

// AllEvents is the subscription key for handlers that receive every event type
const AllEvents event.Type = "*"

// DeliveryError reports every subscriber that failed for one event.
// errors.Is and errors.As see through to each handler's error.
type DeliveryError struct {
	EventID  string
	Failures map[string]error // by handler name
}

func (e *DeliveryError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for name, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return fmt.Sprintf("event %s: %d handler(s) failed: %s", e.EventID, len(e.Failures), strings.Join(parts, "; "))
}

func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}
