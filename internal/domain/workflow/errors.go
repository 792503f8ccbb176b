package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a status edge is not in the graph
	// for the entity, or the actor's role may not trigger it
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a status is not defined in the graph
	ErrInvalidState = errors.New("invalid state")

	// ErrUnknownEntity is returned when no graph is registered for an entity type
	ErrUnknownEntity = errors.New("unknown entity type")
)
