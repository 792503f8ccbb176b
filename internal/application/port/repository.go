package port

import (
	"context"
	"time"

	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

// Versioned writes: Create stores the record at version 1. Update compares the
// record's Version with the stored one, writes only on a match, and bumps the
// in-memory Version on success. A mismatch returns ErrVersionConflict.

// RequirementFilter narrows requirement listings
type RequirementFilter struct {
	ParentID string
	Status   string
	Limit    int
	Offset   int
}

// RequirementRepository defines persistence operations for Requirement
type RequirementRepository interface {
	Create(ctx context.Context, r *entity.Requirement) error
	GetByID(ctx context.Context, id string) (*entity.Requirement, error)
	List(ctx context.Context, filter RequirementFilter) ([]*entity.Requirement, error)
	Update(ctx context.Context, r *entity.Requirement) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
}

// AssociationRepository defines persistence operations for TutorAssociation
type AssociationRepository interface {
	Create(ctx context.Context, a *entity.TutorAssociation) error
	GetByID(ctx context.Context, id string) (*entity.TutorAssociation, error)
	GetByPair(ctx context.Context, requirementID, tutorID string) (*entity.TutorAssociation, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]*entity.TutorAssociation, error)
	ListByTutor(ctx context.Context, tutorID string) ([]*entity.TutorAssociation, error)
	Update(ctx context.Context, a *entity.TutorAssociation) error
	DeleteByRequirement(ctx context.Context, requirementID string) error
}

// DemoRepository defines persistence operations for DemoSession
type DemoRepository interface {
	Create(ctx context.Context, d *entity.DemoSession) error
	GetByID(ctx context.Context, id string) (*entity.DemoSession, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]*entity.DemoSession, error)
	// FindActive returns the Requested or Scheduled demo for a pair, or ErrNotFound
	FindActive(ctx context.Context, requirementID, tutorID string) (*entity.DemoSession, error)
	Update(ctx context.Context, d *entity.DemoSession) error
	DeleteByRequirement(ctx context.Context, requirementID string) error
}

// ClassRepository defines persistence operations for Class
type ClassRepository interface {
	Create(ctx context.Context, c *entity.Class) error
	GetByID(ctx context.Context, id string) (*entity.Class, error)
	ListByRequirement(ctx context.Context, requirementID string) ([]*entity.Class, error)
	// ListByStatus returns classes in any of the statuses, oldest start date first
	ListByStatus(ctx context.Context, statuses []string, limit int) ([]*entity.Class, error)
	Update(ctx context.Context, c *entity.Class) error
}

// EventFilter narrows outbox listings
type EventFilter struct {
	EntityType entity.EntityType
	EntityID   string
	Limit      int
}

// OutboxRepository is the append-only event log plus delivery bookkeeping
type OutboxRepository interface {
	Append(ctx context.Context, e *entity.OutboxEvent) error
	GetByID(ctx context.Context, id string) (*entity.OutboxEvent, error)
	List(ctx context.Context, filter EventFilter) ([]*entity.OutboxEvent, error)
	// ListPending returns undelivered, non-dead events due at or before now, oldest first
	ListPending(ctx context.Context, now time.Time, limit int) ([]*entity.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string, nextAttempt time.Time, dead bool) error
}

// TransactionManager handles database transactions. Repositories called with
// the ctx passed to fn take part in the transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
