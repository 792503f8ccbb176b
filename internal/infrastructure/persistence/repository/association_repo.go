package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/sqlite"
)

// AssociationRepository implements port.AssociationRepository
type AssociationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssociationRepository creates a new tutor association repository
func NewAssociationRepository(db *sql.DB, logger *zap.Logger) port.AssociationRepository {
	return &AssociationRepository{
		db:     db,
		logger: logger,
	}
}

const associationColumns = `id, requirement_id, tutor_id, status, note, transitions, created_at, updated_at, version`

// Create inserts an association at version 1.
// A second row for the same pair fails with port.ErrUniqueViolation.
func (r *AssociationRepository) Create(ctx context.Context, a *entity.TutorAssociation) error {
	transitions, err := encodeJSON(a.Transitions)
	if err != nil {
		return err
	}

	query := `INSERT INTO tutor_associations (` + associationColumns + `) VALUES (` + placeholders(9) + `)`
	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		a.ID, a.RequirementID, a.TutorID, a.Status, a.Note, transitions,
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(), 1,
	)
	if err != nil {
		r.logger.Error("Failed to create association",
			zap.String("requirement_id", a.RequirementID),
			zap.String("tutor_id", a.TutorID),
			zap.Error(err))
		return fmt.Errorf("failed to create association: %w", sqlite.MapError(err))
	}
	a.Version = 1
	return nil
}

func scanAssociation(s scanner) (*entity.TutorAssociation, error) {
	var a entity.TutorAssociation
	var transitions string
	if err := s.Scan(&a.ID, &a.RequirementID, &a.TutorID, &a.Status, &a.Note, &transitions,
		&a.CreatedAt, &a.UpdatedAt, &a.Version); err != nil {
		return nil, err
	}
	a.Transitions = make(map[string]time.Time)
	if err := decodeJSON(transitions, &a.Transitions); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssociationRepository) getOne(ctx context.Context, where string, args ...interface{}) (*entity.TutorAssociation, error) {
	query := `SELECT ` + associationColumns + ` FROM tutor_associations WHERE ` + where
	a, err := scanAssociation(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get association", zap.Any("args", args), zap.Error(err))
		return nil, fmt.Errorf("failed to get association: %w", err)
	}
	return a, nil
}

// GetByID retrieves an association by ID
func (r *AssociationRepository) GetByID(ctx context.Context, id string) (*entity.TutorAssociation, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByPair retrieves the association for a (requirement, tutor) pair
func (r *AssociationRepository) GetByPair(ctx context.Context, requirementID, tutorID string) (*entity.TutorAssociation, error) {
	return r.getOne(ctx, "requirement_id = ? AND tutor_id = ?", requirementID, tutorID)
}

func (r *AssociationRepository) list(ctx context.Context, where string, arg string) ([]*entity.TutorAssociation, error) {
	query := `SELECT ` + associationColumns + ` FROM tutor_associations WHERE ` + where + ` ORDER BY created_at, id`
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list associations", zap.Error(err))
		return nil, fmt.Errorf("failed to list associations: %w", err)
	}
	defer rows.Close()

	var out []*entity.TutorAssociation
	for rows.Next() {
		a, err := scanAssociation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListByRequirement returns every association of a requirement, oldest first
func (r *AssociationRepository) ListByRequirement(ctx context.Context, requirementID string) ([]*entity.TutorAssociation, error) {
	return r.list(ctx, "requirement_id = ?", requirementID)
}

// ListByTutor returns every association of a tutor, oldest first
func (r *AssociationRepository) ListByTutor(ctx context.Context, tutorID string) ([]*entity.TutorAssociation, error) {
	return r.list(ctx, "tutor_id = ?", tutorID)
}

// Update writes the association if its stored version still equals a.Version
func (r *AssociationRepository) Update(ctx context.Context, a *entity.TutorAssociation) error {
	transitions, err := encodeJSON(a.Transitions)
	if err != nil {
		return err
	}

	query := `
		UPDATE tutor_associations SET
			status = ?, note = ?, transitions = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	exec := sqlite.Conn(ctx, r.db)
	res, err := exec.ExecContext(ctx, query, a.Status, a.Note, transitions, a.UpdatedAt.UTC(), a.ID, a.Version)
	if err != nil {
		r.logger.Error("Failed to update association", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to update association: %w", sqlite.MapError(err))
	}
	if err := checkSwap(ctx, exec, "tutor_associations", a.ID, res); err != nil {
		return err
	}
	a.Version++
	return nil
}

// DeleteByRequirement removes every association of a requirement
func (r *AssociationRepository) DeleteByRequirement(ctx context.Context, requirementID string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `DELETE FROM tutor_associations WHERE requirement_id = ?`, requirementID)
	if err != nil {
		r.logger.Error("Failed to delete associations", zap.String("requirement_id", requirementID), zap.Error(err))
		return fmt.Errorf("failed to delete associations: %w", err)
	}
	return nil
}
