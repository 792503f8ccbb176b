package memory

import (
	"context"
	"time"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

type outboxRepo struct{ s *Store }

// Append is idempotent on event id
func (r *outboxRepo) Append(ctx context.Context, e *entity.OutboxEvent) error {
	return r.s.write(ctx, func() (func(), error) {
		if _, ok := r.s.events[e.ID]; ok {
			return nil, nil
		}
		rec := e.Clone()
		if rec.DeliveryStatus == "" {
			rec.DeliveryStatus = entity.DeliveryStatusPending
		}
		if rec.NextAttemptAt.IsZero() {
			rec.NextAttemptAt = rec.OccurredAt
		}
		r.s.events[rec.ID] = rec
		r.s.eventOrder = append(r.s.eventOrder, rec.ID)
		n := len(r.s.eventOrder)
		return func() {
			delete(r.s.events, rec.ID)
			r.s.eventOrder = r.s.eventOrder[:n-1]
		}, nil
	})
}

func (r *outboxRepo) GetByID(ctx context.Context, id string) (*entity.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *outboxRepo) List(ctx context.Context, filter port.EventFilter) ([]*entity.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.OutboxEvent
	for _, id := range r.s.eventOrder {
		e := r.s.events[id]
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && e.EntityID != filter.EntityID {
			continue
		}
		out = append(out, e.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) ListPending(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*entity.OutboxEvent
	for _, id := range r.s.eventOrder {
		e := r.s.events[id]
		due := e.DeliveryStatus == entity.DeliveryStatusPending || e.DeliveryStatus == entity.DeliveryStatusFailed
		if !due || e.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, e.Clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxRepo) mark(ctx context.Context, id string, fn func(e *entity.OutboxEvent)) error {
	return r.s.write(ctx, func() (func(), error) {
		prev, ok := r.s.events[id]
		if !ok {
			return nil, port.ErrNotFound
		}
		next := prev.Clone()
		next.Attempts++
		fn(next)
		r.s.events[id] = next
		return restore(r.s.events, id, prev, true), nil
	})
}

func (r *outboxRepo) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return r.mark(ctx, id, func(e *entity.OutboxEvent) {
		e.DeliveryStatus = entity.DeliveryStatusDelivered
		e.LastError = ""
		e.DeliveredAt = &at
	})
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id string, errMsg string, nextAttempt time.Time, dead bool) error {
	return r.mark(ctx, id, func(e *entity.OutboxEvent) {
		e.DeliveryStatus = entity.DeliveryStatusFailed
		if dead {
			e.DeliveryStatus = entity.DeliveryStatusDead
		}
		e.LastError = errMsg
		e.NextAttemptAt = nextAttempt
	})
}
