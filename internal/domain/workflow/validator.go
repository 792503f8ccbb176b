package workflow

import (
	"fmt"

	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

// Validator answers whether a transition is legal for an entity type and role.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	graphs map[entity.EntityType]*Graph
}

// NewValidator creates a validator over the given graphs
func NewValidator(graphs ...*Graph) *Validator {
	v := &Validator{graphs: make(map[entity.EntityType]*Graph, len(graphs))}
	for _, g := range graphs {
		v.graphs[g.EntityType()] = g
	}
	return v
}

// Graph returns the graph registered for an entity type
func (v *Validator) Graph(entityType entity.EntityType) (*Graph, error) {
	g, ok := v.graphs[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidTransition, ErrUnknownEntity, entityType)
	}
	return g, nil
}

// Check validates an edge; see Graph.Check
func (v *Validator) Check(entityType entity.EntityType, from, to string, role entity.Role) (bool, error) {
	g, err := v.Graph(entityType)
	if err != nil {
		return false, err
	}
	return g.Check(State(from), State(to), role)
}

// CanTransition is the pure predicate form of Check
func (v *Validator) CanTransition(entityType entity.EntityType, from, to string, role entity.Role) bool {
	_, err := v.Check(entityType, from, to, role)
	return err == nil
}

// Permitted lists the statuses a role may move an entity to from its current status
func (v *Validator) Permitted(entityType entity.EntityType, from string, role entity.Role) []string {
	g, err := v.Graph(entityType)
	if err != nil {
		return nil
	}
	states := g.Permitted(State(from), role)
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.String()
	}
	return out
}
