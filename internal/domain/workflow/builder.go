package workflow

import (
	"fmt"

	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

// GraphBuilder builds the status graph of one entity type
type GraphBuilder interface {
	// Configure returns the edge configuration for a source state
	Configure(from State) StateConfiguration

	// Terminal marks states that have no outgoing edges
	Terminal(states ...State) GraphBuilder

	// RequireChange makes same-status requests fail instead of being no-ops.
	// Used where the status carries side data that must be re-validated.
	RequireChange() GraphBuilder

	// Build freezes the configuration into an immutable Graph
	Build() *Graph
}

// StateConfiguration configures outgoing edges of a single state
type StateConfiguration interface {
	// Permit allows the listed roles to move the entity to the target state
	Permit(to State, roles ...entity.Role) StateConfiguration
}

type stateConfig struct {
	builder *graphBuilder
	from    State
}

type graphBuilder struct {
	entityType    entity.EntityType
	states        map[State]bool
	terminal      map[State]bool
	edges         map[State]map[State]map[entity.Role]bool
	requireChange bool
}

// NewBuilder creates a builder for the given entity type over a closed set of states
func NewBuilder(entityType entity.EntityType, states ...State) GraphBuilder {
	b := &graphBuilder{
		entityType: entityType,
		states:     make(map[State]bool, len(states)),
		terminal:   make(map[State]bool),
		edges:      make(map[State]map[State]map[entity.Role]bool),
	}
	for _, s := range states {
		b.states[s] = true
	}
	return b
}

func (b *graphBuilder) mustKnow(s State) {
	if !b.states[s] {
		panic(fmt.Sprintf("invalid state %s for %s", s, b.entityType))
	}
}

// Configure returns the edge configuration for a source state
func (b *graphBuilder) Configure(from State) StateConfiguration {
	b.mustKnow(from)
	if _, ok := b.edges[from]; !ok {
		b.edges[from] = make(map[State]map[entity.Role]bool)
	}
	return &stateConfig{builder: b, from: from}
}

// Terminal marks states that have no outgoing edges
func (b *graphBuilder) Terminal(states ...State) GraphBuilder {
	for _, s := range states {
		b.mustKnow(s)
		b.terminal[s] = true
	}
	return b
}

// RequireChange makes same-status requests fail instead of being no-ops
func (b *graphBuilder) RequireChange() GraphBuilder {
	b.requireChange = true
	return b
}

// Permit allows the listed roles to move the entity to the target state
func (c *stateConfig) Permit(to State, roles ...entity.Role) StateConfiguration {
	c.builder.mustKnow(to)
	if c.builder.terminal[c.from] {
		panic(fmt.Sprintf("terminal state %s of %s cannot have outgoing edges", c.from, c.builder.entityType))
	}
	if to == c.from {
		panic(fmt.Sprintf("self edge on %s of %s", c.from, c.builder.entityType))
	}
	targets := c.builder.edges[c.from]
	if targets[to] == nil {
		targets[to] = make(map[entity.Role]bool)
	}
	for _, r := range roles {
		if !r.IsValid() {
			panic(fmt.Sprintf("invalid role %q", r))
		}
		targets[to][r] = true
	}
	return c
}

// Build freezes the configuration into an immutable Graph
func (b *graphBuilder) Build() *Graph {
	g := &Graph{
		entityType:    b.entityType,
		states:        make(map[State]bool, len(b.states)),
		terminal:      make(map[State]bool, len(b.terminal)),
		edges:         make(map[State]map[State]map[entity.Role]bool, len(b.edges)),
		reachableBy:   make(map[State]map[entity.Role]bool),
		requireChange: b.requireChange,
	}
	for s := range b.states {
		g.states[s] = true
	}
	for s := range b.terminal {
		g.terminal[s] = true
	}
	for from, targets := range b.edges {
		copied := make(map[State]map[entity.Role]bool, len(targets))
		for to, roles := range targets {
			rc := make(map[entity.Role]bool, len(roles))
			for r := range roles {
				rc[r] = true
				if g.reachableBy[to] == nil {
					g.reachableBy[to] = make(map[entity.Role]bool)
				}
				g.reachableBy[to][r] = true
			}
			copied[to] = rc
		}
		g.edges[from] = copied
	}
	return g
}
