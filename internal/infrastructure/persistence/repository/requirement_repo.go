package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/sqlite"
)

// RequirementRepository implements port.RequirementRepository
type RequirementRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequirementRepository creates a new requirement repository
func NewRequirementRepository(db *sql.DB, logger *zap.Logger) port.RequirementRepository {
	return &RequirementRepository{
		db:     db,
		logger: logger,
	}
}

const requirementColumns = `id, parent_id, subjects, grade_level, board, teaching_modes, location,
	preferred_days, time_slots, gender_preference, start_preference, status, outcome,
	posted_at, updated_at, closed_at, version`

type requirementJSON struct {
	subjects, modes, days, slots string
	outcome                      sql.NullString
}

func encodeRequirement(req *entity.Requirement) (requirementJSON, error) {
	var out requirementJSON
	var err error
	if out.subjects, err = encodeJSON(req.Subjects); err != nil {
		return out, err
	}
	if out.modes, err = encodeJSON(req.TeachingModes); err != nil {
		return out, err
	}
	if out.days, err = encodeJSON(req.PreferredDays); err != nil {
		return out, err
	}
	if out.slots, err = encodeJSON(req.TimeSlots); err != nil {
		return out, err
	}
	if req.Outcome != nil {
		s, err := encodeJSON(req.Outcome)
		if err != nil {
			return out, err
		}
		out.outcome = sql.NullString{String: s, Valid: true}
	}
	return out, nil
}

// Create inserts a requirement at version 1
func (r *RequirementRepository) Create(ctx context.Context, req *entity.Requirement) error {
	cols, err := encodeRequirement(req)
	if err != nil {
		return err
	}

	query := `INSERT INTO requirements (` + requirementColumns + `) VALUES (` + placeholders(17) + `)`

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		req.ID, req.ParentID, cols.subjects, req.GradeLevel, req.Board, cols.modes, req.Location,
		cols.days, cols.slots, req.GenderPreference, req.StartPreference, req.Status, cols.outcome,
		req.PostedAt.UTC(), req.UpdatedAt.UTC(), nullTime(req.ClosedAt), 1,
	)
	if err != nil {
		r.logger.Error("Failed to create requirement", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create requirement: %w", sqlite.MapError(err))
	}
	req.Version = 1
	return nil
}

func scanRequirement(s scanner) (*entity.Requirement, error) {
	var req entity.Requirement
	var subjects, modes, days, slots string
	var outcome sql.NullString
	var closedAt sql.NullTime

	if err := s.Scan(
		&req.ID, &req.ParentID, &subjects, &req.GradeLevel, &req.Board, &modes, &req.Location,
		&days, &slots, &req.GenderPreference, &req.StartPreference, &req.Status, &outcome,
		&req.PostedAt, &req.UpdatedAt, &closedAt, &req.Version,
	); err != nil {
		return nil, err
	}

	for _, col := range []struct {
		raw string
		dst *[]string
	}{{subjects, &req.Subjects}, {modes, &req.TeachingModes}, {days, &req.PreferredDays}, {slots, &req.TimeSlots}} {
		if err := decodeJSON(col.raw, col.dst); err != nil {
			return nil, err
		}
	}
	if outcome.Valid {
		req.Outcome = &entity.ClosureOutcome{}
		if err := decodeJSON(outcome.String, req.Outcome); err != nil {
			return nil, err
		}
	}
	req.ClosedAt = timePtr(closedAt)
	return &req, nil
}

// GetByID retrieves a requirement by ID
func (r *RequirementRepository) GetByID(ctx context.Context, id string) (*entity.Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE id = ?`

	req, err := scanRequirement(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get requirement", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get requirement: %w", err)
	}
	return req, nil
}

// List returns requirements matching the filter, newest first
func (r *RequirementRepository) List(ctx context.Context, filter port.RequirementFilter) ([]*entity.Requirement, error) {
	var where []string
	var args []interface{}
	if filter.ParentID != "" {
		where = append(where, "parent_id = ?")
		args = append(args, filter.ParentID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + requirementColumns + ` FROM requirements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY posted_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requirements", zap.Error(err))
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	defer rows.Close()

	var out []*entity.Requirement
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Update writes the requirement if its stored version still equals req.Version
func (r *RequirementRepository) Update(ctx context.Context, req *entity.Requirement) error {
	cols, err := encodeRequirement(req)
	if err != nil {
		return err
	}

	query := `
		UPDATE requirements SET
			subjects = ?, grade_level = ?, board = ?, teaching_modes = ?, location = ?,
			preferred_days = ?, time_slots = ?, gender_preference = ?, start_preference = ?,
			status = ?, outcome = ?, updated_at = ?, closed_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, query,
		cols.subjects, req.GradeLevel, req.Board, cols.modes, req.Location,
		cols.days, cols.slots, req.GenderPreference, req.StartPreference,
		req.Status, cols.outcome, req.UpdatedAt.UTC(), nullTime(req.ClosedAt),
		req.ID, req.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update requirement", zap.String("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update requirement: %w", sqlite.MapError(err))
	}
	if err := checkSwap(ctx, exec, "requirements", req.ID, res); err != nil {
		return err
	}
	req.Version++
	return nil
}

// Delete removes the requirement if its stored version equals expectedVersion
func (r *RequirementRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, `DELETE FROM requirements WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to delete requirement", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete requirement: %w", sqlite.MapError(err))
	}
	return checkSwap(ctx, exec, "requirements", id, res)
}
