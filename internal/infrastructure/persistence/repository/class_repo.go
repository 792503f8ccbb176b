package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/sqlite"
)

// ClassRepository implements port.ClassRepository
type ClassRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClassRepository creates a new class repository
func NewClassRepository(db *sql.DB, logger *zap.Logger) port.ClassRepository {
	return &ClassRepository{
		db:     db,
		logger: logger,
	}
}

const classColumns = `id, requirement_id, tutor_id, subject, schedule_days, schedule_start, schedule_end,
	mode, status, start_date, next_session, end_date, cancel_reason, cancelled_by,
	created_at, updated_at, version`

// Create inserts a class at version 1
func (r *ClassRepository) Create(ctx context.Context, c *entity.Class) error {
	days, err := encodeJSON(c.Schedule.Days)
	if err != nil {
		return err
	}

	query := `INSERT INTO classes (` + classColumns + `) VALUES (` + placeholders(17) + `)`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		c.ID, c.RequirementID, c.TutorID, c.Subject, days, c.Schedule.StartTime, c.Schedule.EndTime,
		c.Mode, c.Status, c.StartDate.UTC(), nullTime(c.NextSession), nullTime(c.EndDate), c.CancelReason, string(c.CancelledBy),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(), 1,
	)
	if err != nil {
		r.logger.Error("Failed to create class", zap.String("requirement_id", c.RequirementID), zap.Error(err))
		return fmt.Errorf("failed to create class: %w", sqlite.MapError(err))
	}
	c.Version = 1
	return nil
}

func scanClass(s scanner) (*entity.Class, error) {
	var c entity.Class
	var days, cancelledBy string
	var next, end sql.NullTime

	if err := s.Scan(
		&c.ID, &c.RequirementID, &c.TutorID, &c.Subject, &days, &c.Schedule.StartTime, &c.Schedule.EndTime,
		&c.Mode, &c.Status, &c.StartDate, &next, &end, &c.CancelReason, &cancelledBy,
		&c.CreatedAt, &c.UpdatedAt, &c.Version,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(days, &c.Schedule.Days); err != nil {
		return nil, err
	}
	c.NextSession = timePtr(next)
	c.EndDate = timePtr(end)
	c.CancelledBy = entity.Role(cancelledBy)
	return &c, nil
}

func (r *ClassRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Class, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list classes", zap.Error(err))
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	defer rows.Close()

	var out []*entity.Class
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID retrieves a class by ID
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*entity.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = ?`
	c, err := scanClass(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get class", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get class: %w", err)
	}
	return c, nil
}

// ListByRequirement returns the classes of a requirement
func (r *ClassRepository) ListByRequirement(ctx context.Context, requirementID string) ([]*entity.Class, error) {
	return r.query(ctx, `SELECT `+classColumns+` FROM classes WHERE requirement_id = ? ORDER BY start_date, id`, requirementID)
}

// ListByStatus returns up to limit classes in the given statuses, earliest start first
func (r *ClassRepository) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*entity.Class, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]interface{}, 0, len(statuses)+1)
	for _, s := range statuses {
		args = append(args, s)
	}
	query := `SELECT ` + classColumns + ` FROM classes WHERE status IN (` + placeholders(len(statuses)) + `) ORDER BY start_date, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(ctx, query, args...)
}

// Update writes the class if its stored version still equals c.Version
func (r *ClassRepository) Update(ctx context.Context, c *entity.Class) error {
	days, err := encodeJSON(c.Schedule.Days)
	if err != nil {
		return err
	}

	query := `
		UPDATE classes SET
			subject = ?, schedule_days = ?, schedule_start = ?, schedule_end = ?, mode = ?,
			status = ?, start_date = ?, next_session = ?, end_date = ?, cancel_reason = ?,
			cancelled_by = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, query,
		c.Subject, days, c.Schedule.StartTime, c.Schedule.EndTime, c.Mode,
		c.Status, c.StartDate.UTC(), nullTime(c.NextSession), nullTime(c.EndDate), c.CancelReason,
		string(c.CancelledBy), c.UpdatedAt.UTC(),
		c.ID, c.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update class", zap.String("id", c.ID), zap.Error(err))
		return fmt.Errorf("failed to update class: %w", sqlite.MapError(err))
	}
	if err := checkSwap(ctx, exec, "classes", c.ID, res); err != nil {
		return err
	}
	c.Version++
	return nil
}
