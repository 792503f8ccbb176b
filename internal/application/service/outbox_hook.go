package service

import (
	"context"
	"sync"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// OutboxHook appends committed workflow events to the outbox. Appends never
// fail the caller: a failed append is logged and parked in a bounded buffer
// until Flush succeeds.
type OutboxHook struct {
	repo     port.OutboxRepository
	logger   Logger
	capacity int

	mu      sync.Mutex
	pending []*entity.OutboxEvent
	dropped int
}

// NewOutboxHook creates an outbox hook buffering at most capacity failed appends
func NewOutboxHook(repo port.OutboxRepository, capacity int, logger Logger) *OutboxHook {
	if capacity <= 0 {
		capacity = 1000
	}
	return &OutboxHook{
		repo:     repo,
		logger:   logger,
		capacity: capacity,
	}
}

// Publish appends events. The request context's cancellation is ignored so a
// client disconnect after commit does not lose the event.
func (h *OutboxHook) Publish(ctx context.Context, events []*event.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, evt := range events {
		rec := evt.ToOutbox()
		if err := h.repo.Append(ctx, rec); err != nil {
			h.logger.Error("Outbox append failed, buffering",
				"event_id", rec.ID,
				"event_type", rec.Type,
				"entity_id", rec.EntityID,
				"error", err,
			)
			h.park(rec)
		}
	}
}

func (h *OutboxHook) park(rec *entity.OutboxEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) >= h.capacity {
		lost := h.pending[0]
		h.pending = h.pending[1:]
		h.dropped++
		h.logger.Error("Outbox buffer full, dropping oldest event",
			"event_id", lost.ID,
			"event_type", lost.Type,
			"dropped_total", h.dropped,
		)
	}
	h.pending = append(h.pending, rec)
}

// Flush retries buffered appends in order, stopping at the first failure.
// It returns how many events were written.
func (h *OutboxHook) Flush(ctx context.Context) (int, error) {
	h.mu.Lock()
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	for i, rec := range batch {
		if err := h.repo.Append(ctx, rec); err != nil {
			h.mu.Lock()
			// Keep order: unflushed events go back in front of anything parked meanwhile
			h.pending = append(append([]*entity.OutboxEvent(nil), batch[i:]...), h.pending...)
			if over := len(h.pending) - h.capacity; over > 0 {
				h.pending = h.pending[over:]
				h.dropped += over
			}
			h.mu.Unlock()
			return i, err
		}
	}
	if len(batch) > 0 {
		h.logger.Info("Flushed buffered outbox events", "count", len(batch))
	}
	return len(batch), nil
}

// Buffered returns the number of parked events
func (h *OutboxHook) Buffered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Dropped returns how many events were discarded because the buffer was full
func (h *OutboxHook) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
