package workflow

import (
	"fmt"
	"sort"

	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

// Graph is the immutable legal-edge table of one entity type
type Graph struct {
	entityType    entity.EntityType
	states        map[State]bool
	terminal      map[State]bool
	edges         map[State]map[State]map[entity.Role]bool
	reachableBy   map[State]map[entity.Role]bool
	requireChange bool
}

// EntityType returns the entity type the graph describes
func (g *Graph) EntityType() entity.EntityType {
	return g.entityType
}

// IsValid returns true if the state belongs to the graph
func (g *Graph) IsValid(s State) bool {
	return g.states[s]
}

// IsTerminal returns true if the state has no outgoing edges
func (g *Graph) IsTerminal(s State) bool {
	return g.terminal[s]
}

// Check validates a requested transition. It returns noop=true when the
// target equals the current state and the graph treats that as idempotent.
func (g *Graph) Check(from, to State, role entity.Role) (noop bool, err error) {
	if !g.states[from] {
		return false, fmt.Errorf("%w: %w: %s is not a %s status", ErrInvalidTransition, ErrInvalidState, from, g.entityType)
	}
	if !g.states[to] {
		return false, fmt.Errorf("%w: %w: %s is not a %s status", ErrInvalidTransition, ErrInvalidState, to, g.entityType)
	}
	if !role.IsValid() {
		return false, fmt.Errorf("%w: unknown role %q", ErrInvalidTransition, role)
	}

	if from == to {
		if g.requireChange {
			return false, fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, g.entityType, from)
		}
		// A replay is only honoured for roles that could have reached the state.
		if g.reachableBy[to][role] || g.isInitialFor(to) {
			return true, nil
		}
		return false, fmt.Errorf("%w: %s may not drive %s to %s", ErrInvalidTransition, role, g.entityType, to)
	}

	if g.edges[from][to][role] {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s %s -> %s not permitted for %s", ErrInvalidTransition, g.entityType, from, to, role)
}

// isInitialFor is true for states nothing transitions into (creation states)
func (g *Graph) isInitialFor(s State) bool {
	return len(g.reachableBy[s]) == 0
}

// CanTransition reports whether Check would succeed
func (g *Graph) CanTransition(from, to State, role entity.Role) bool {
	_, err := g.Check(from, to, role)
	return err == nil
}

// Permitted returns the target states the role may move to from a state, sorted
func (g *Graph) Permitted(from State, role entity.Role) []State {
	targets := make([]State, 0)
	for to, roles := range g.edges[from] {
		if roles[role] {
			targets = append(targets, to)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	return targets
}
