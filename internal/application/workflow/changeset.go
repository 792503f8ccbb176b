package workflow

import (
	"context"

	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// Write is one staged repository call, run inside the commit transaction
type Write func(ctx context.Context) error

// Changeset collects the writes and events a plan produces.
// An empty changeset commits nothing.
type Changeset struct {
	writes []Write
	events []*event.Event
}

// NewChangeset creates an empty changeset
func NewChangeset() *Changeset {
	return &Changeset{}
}

// Stage appends a write
func (c *Changeset) Stage(w Write) {
	c.writes = append(c.writes, w)
}

// Emit appends an event to publish after a successful commit
func (c *Changeset) Emit(e *event.Event) {
	c.events = append(c.events, e)
}

// Empty reports whether the plan staged no writes
func (c *Changeset) Empty() bool {
	return len(c.writes) == 0
}

// Events returns the staged events
func (c *Changeset) Events() []*event.Event {
	return c.events
}
