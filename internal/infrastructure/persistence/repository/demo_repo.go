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

// DemoRepository implements port.DemoRepository
type DemoRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDemoRepository creates a new demo session repository
func NewDemoRepository(db *sql.DB, logger *zap.Logger) port.DemoRepository {
	return &DemoRepository{
		db:     db,
		logger: logger,
	}
}

const demoColumns = `id, requirement_id, tutor_id, subjects, start_at, end_at, duration_minutes, mode,
	status, reschedule_status, proposed_start_at, proposed_end_at, reschedule_reason,
	reschedule_requested_by, join_link, location, fee_cents, requested_by, cancel_reason,
	cancelled_by, completed_at, created_at, updated_at, version`

func proposedTimes(d *entity.DemoSession) (sql.NullTime, sql.NullTime) {
	if d.ProposedSlot == nil {
		return sql.NullTime{}, sql.NullTime{}
	}
	start, end := d.ProposedSlot.StartAt, d.ProposedSlot.EndAt
	return nullTime(&start), nullTime(&end)
}

func nullFee(fee *int64) sql.NullInt64 {
	if fee == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *fee, Valid: true}
}

// Create inserts a demo at version 1.
// A second active demo for the same pair fails with port.ErrUniqueViolation.
func (r *DemoRepository) Create(ctx context.Context, d *entity.DemoSession) error {
	subjects, err := encodeJSON(d.Subjects)
	if err != nil {
		return err
	}
	propStart, propEnd := proposedTimes(d)

	query := `INSERT INTO demo_sessions (` + demoColumns + `) VALUES (` + placeholders(24) + `)`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		d.ID, d.RequirementID, d.TutorID, subjects, d.Slot.StartAt.UTC(), d.Slot.EndAt.UTC(), d.DurationMinutes, d.Mode,
		d.Status, d.RescheduleStatus, propStart, propEnd, d.RescheduleReason,
		string(d.RescheduleRequestedBy), d.JoinLink, d.Location, nullFee(d.FeeCents), string(d.RequestedBy), d.CancelReason,
		string(d.CancelledBy), nullTime(d.CompletedAt), d.CreatedAt.UTC(), d.UpdatedAt.UTC(), 1,
	)
	if err != nil {
		r.logger.Error("Failed to create demo",
			zap.String("requirement_id", d.RequirementID),
			zap.String("tutor_id", d.TutorID),
			zap.Error(err))
		return fmt.Errorf("failed to create demo: %w", sqlite.MapError(err))
	}
	d.Version = 1
	return nil
}

func scanDemo(s scanner) (*entity.DemoSession, error) {
	var d entity.DemoSession
	var subjects, reqBy, rescheduleBy, cancelledBy string
	var propStart, propEnd, completedAt sql.NullTime
	var fee sql.NullInt64

	if err := s.Scan(
		&d.ID, &d.RequirementID, &d.TutorID, &subjects, &d.Slot.StartAt, &d.Slot.EndAt, &d.DurationMinutes, &d.Mode,
		&d.Status, &d.RescheduleStatus, &propStart, &propEnd, &d.RescheduleReason,
		&rescheduleBy, &d.JoinLink, &d.Location, &fee, &reqBy, &d.CancelReason,
		&cancelledBy, &completedAt, &d.CreatedAt, &d.UpdatedAt, &d.Version,
	); err != nil {
		return nil, err
	}

	if err := decodeJSON(subjects, &d.Subjects); err != nil {
		return nil, err
	}
	if propStart.Valid && propEnd.Valid {
		d.ProposedSlot = &entity.Slot{StartAt: propStart.Time, EndAt: propEnd.Time}
	}
	if fee.Valid {
		v := fee.Int64
		d.FeeCents = &v
	}
	d.RequestedBy = entity.Role(reqBy)
	d.RescheduleRequestedBy = entity.Role(rescheduleBy)
	d.CancelledBy = entity.Role(cancelledBy)
	d.CompletedAt = timePtr(completedAt)
	return &d, nil
}

func (r *DemoRepository) getOne(ctx context.Context, where string, args ...interface{}) (*entity.DemoSession, error) {
	query := `SELECT ` + demoColumns + ` FROM demo_sessions WHERE ` + where
	d, err := scanDemo(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get demo", zap.Any("args", args), zap.Error(err))
		return nil, fmt.Errorf("failed to get demo: %w", err)
	}
	return d, nil
}

// GetByID retrieves a demo by ID
func (r *DemoRepository) GetByID(ctx context.Context, id string) (*entity.DemoSession, error) {
	return r.getOne(ctx, "id = ?", id)
}

// FindActive returns the Requested or Scheduled demo for a pair
func (r *DemoRepository) FindActive(ctx context.Context, requirementID, tutorID string) (*entity.DemoSession, error) {
	return r.getOne(ctx, "requirement_id = ? AND tutor_id = ? AND status IN (?, ?)",
		requirementID, tutorID, entity.DemoStatusRequested, entity.DemoStatusScheduled)
}

// ListByRequirement returns every demo of a requirement ordered by slot start
func (r *DemoRepository) ListByRequirement(ctx context.Context, requirementID string) ([]*entity.DemoSession, error) {
	query := `SELECT ` + demoColumns + ` FROM demo_sessions WHERE requirement_id = ? ORDER BY start_at, id`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, requirementID)
	if err != nil {
		r.logger.Error("Failed to list demos", zap.String("requirement_id", requirementID), zap.Error(err))
		return nil, fmt.Errorf("failed to list demos: %w", err)
	}
	defer rows.Close()

	var out []*entity.DemoSession
	for rows.Next() {
		d, err := scanDemo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan demo: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update writes the demo if its stored version still equals d.Version
func (r *DemoRepository) Update(ctx context.Context, d *entity.DemoSession) error {
	propStart, propEnd := proposedTimes(d)

	query := `
		UPDATE demo_sessions SET
			start_at = ?, end_at = ?, duration_minutes = ?, mode = ?, status = ?,
			reschedule_status = ?, proposed_start_at = ?, proposed_end_at = ?, reschedule_reason = ?,
			reschedule_requested_by = ?, join_link = ?, location = ?, cancel_reason = ?,
			cancelled_by = ?, completed_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, query,
		d.Slot.StartAt.UTC(), d.Slot.EndAt.UTC(), d.DurationMinutes, d.Mode, d.Status,
		d.RescheduleStatus, propStart, propEnd, d.RescheduleReason,
		string(d.RescheduleRequestedBy), d.JoinLink, d.Location, d.CancelReason,
		string(d.CancelledBy), nullTime(d.CompletedAt), d.UpdatedAt.UTC(),
		d.ID, d.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update demo", zap.String("id", d.ID), zap.Error(err))
		return fmt.Errorf("failed to update demo: %w", sqlite.MapError(err))
	}
	if err := checkSwap(ctx, exec, "demo_sessions", d.ID, res); err != nil {
		return err
	}
	d.Version++
	return nil
}

// DeleteByRequirement removes every demo of a requirement
func (r *DemoRepository) DeleteByRequirement(ctx context.Context, requirementID string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM demo_sessions WHERE requirement_id = ?`, requirementID)
	if err != nil {
		r.logger.Error("Failed to delete demos", zap.String("requirement_id", requirementID), zap.Error(err))
		return fmt.Errorf("failed to delete demos: %w", err)
	}
	return nil
}
