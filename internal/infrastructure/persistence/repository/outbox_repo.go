package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/sqlite"
)

// OutboxRepository implements port.OutboxRepository
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sql.DB, logger *zap.Logger) port.OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

const outboxColumns = `id, type, entity_type, entity_id, from_status, to_status, actor_role, actor_id,
	payload, correlation_id, occurred_at, delivery_status, attempts, last_error, next_attempt_at, delivered_at`

// Append stores a new event. Re-appending an id already stored is a no-op so
// buffered events can be flushed more than once.
func (r *OutboxRepository) Append(ctx context.Context, e *entity.OutboxEvent) error {
	payload, err := encodeJSON(e.Payload)
	if err != nil {
		return err
	}
	status := e.DeliveryStatus
	if status == "" {
		status = entity.DeliveryStatusPending
	}
	next := e.NextAttemptAt
	if next.IsZero() {
		next = e.OccurredAt
	}

	query := `INSERT INTO outbox_events (` + outboxColumns + `) VALUES (` + placeholders(16) + `) ON CONFLICT(id) DO NOTHING`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		e.ID, e.Type, string(e.EntityType), e.EntityID, e.FromStatus, e.ToStatus, string(e.ActorRole), e.ActorID,
		payload, e.CorrelationID, e.OccurredAt.UTC(), status, e.Attempts, e.LastError, next.UTC(), nullTime(e.DeliveredAt),
	)
	if err != nil {
		r.logger.Error("Failed to append outbox event", zap.String("event_id", e.ID), zap.String("type", e.Type), zap.Error(err))
		return fmt.Errorf("failed to append outbox event: %w", sqlite.MapError(err))
	}
	return nil
}

func scanOutbox(s scanner) (*entity.OutboxEvent, error) {
	var e entity.OutboxEvent
	var entityType, role, payload string
	var delivered sql.NullTime

	if err := s.Scan(
		&e.ID, &e.Type, &entityType, &e.EntityID, &e.FromStatus, &e.ToStatus, &role, &e.ActorID,
		&payload, &e.CorrelationID, &e.OccurredAt, &e.DeliveryStatus, &e.Attempts, &e.LastError, &e.NextAttemptAt, &delivered,
	); err != nil {
		return nil, err
	}
	e.EntityType = entity.EntityType(entityType)
	e.ActorRole = entity.Role(role)
	e.DeliveredAt = timePtr(delivered)
	if err := decodeJSON(payload, &e.Payload); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *OutboxRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.OutboxEvent, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query outbox", zap.Error(err))
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []*entity.OutboxEvent
	for rows.Next() {
		e, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetByID retrieves an event by ID
func (r *OutboxRepository) GetByID(ctx context.Context, id string) (*entity.OutboxEvent, error) {
	e, err := scanOutbox(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox_events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox event: %w", err)
	}
	return e, nil
}

// List returns events in occurrence order, optionally for one entity
func (r *OutboxRepository) List(ctx context.Context, filter port.EventFilter) ([]*entity.OutboxEvent, error) {
	var where []string
	var args []interface{}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	query := `SELECT ` + outboxColumns + ` FROM outbox_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return r.query(ctx, query, args...)
}

// ListPending returns due PENDING or FAILED events
func (r *OutboxRepository) ListPending(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events
		WHERE delivery_status IN (?, ?) AND next_attempt_at <= ?
		ORDER BY occurred_at, id LIMIT ?`
	return r.query(ctx, query, entity.DeliveryStatusPending, entity.DeliveryStatusFailed, now.UTC(), limit)
}

// MarkDelivered records a successful delivery
func (r *OutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox_events SET delivery_status = ?, attempts = attempts + 1, last_error = '', delivered_at = ? WHERE id = ?`,
		entity.DeliveryStatusDelivered, at.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark outbox event delivered", zap.String("event_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt; dead events are never retried
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, errMsg string, nextAttempt time.Time, dead bool) error {
	status := entity.DeliveryStatusFailed
	if dead {
		status = entity.DeliveryStatusDead
	}
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE outbox_events SET delivery_status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ? WHERE id = ?`,
		status, errMsg, nextAttempt.UTC(), id)
	if err != nil {
		r.logger.Error("Failed to mark outbox event failed", zap.String("event_id", id), zap.Error(err))
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return nil
}
