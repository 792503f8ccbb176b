package service

import (
	"context"
	"fmt"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

const maxListLimit = 500

func (s *workflowService) GetRequirement(ctx context.Context, id string) (*entity.Requirement, error) {
	return s.loadRequirement(ctx, id)
}

func (s *workflowService) ListRequirements(ctx context.Context, filter port.RequirementFilter) ([]*entity.Requirement, error) {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repos.Requirements.List(ctx, filter)
}

func (s *workflowService) ListAssociations(ctx context.Context, requirementID string) ([]*entity.TutorAssociation, error) {
	if _, err := s.loadRequirement(ctx, requirementID); err != nil {
		return nil, err
	}
	return s.repos.Associations.ListByRequirement(ctx, requirementID)
}

func (s *workflowService) ListTutorAssociations(ctx context.Context, tutorID string) ([]*entity.TutorAssociation, error) {
	return s.repos.Associations.ListByTutor(ctx, tutorID)
}

func (s *workflowService) GetDemo(ctx context.Context, id string) (*entity.DemoSession, error) {
	d, err := s.repos.Demos.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("demo %s: %w", id, err)
	}
	return d, nil
}

func (s *workflowService) ListDemos(ctx context.Context, requirementID string) ([]*entity.DemoSession, error) {
	if _, err := s.loadRequirement(ctx, requirementID); err != nil {
		return nil, err
	}
	return s.repos.Demos.ListByRequirement(ctx, requirementID)
}

func (s *workflowService) GetClass(ctx context.Context, id string) (*entity.Class, error) {
	c, err := s.repos.Classes.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", id, err)
	}
	return c, nil
}

func (s *workflowService) ListClasses(ctx context.Context, requirementID string) ([]*entity.Class, error) {
	if _, err := s.loadRequirement(ctx, requirementID); err != nil {
		return nil, err
	}
	return s.repos.Classes.ListByRequirement(ctx, requirementID)
}

// ListEvents returns recorded workflow events, newest last
func (s *workflowService) ListEvents(ctx context.Context, filter port.EventFilter) ([]*event.Event, error) {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	records, err := s.repos.Outbox.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	events := make([]*event.Event, 0, len(records))
	for _, rec := range records {
		events = append(events, event.FromOutbox(rec))
	}
	return events, nil
}
