package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/tutor-matching/internal/application/port"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// RecordTutorInterest surfaces a tutor to a requirement, either as an admin
// or system recommendation or as the tutor's own application
func (s *workflowService) RecordTutorInterest(ctx context.Context, actor entity.Actor, requirementID, tutorID, kind string, opts ...CallOption) (*entity.TutorAssociation, error) {
	switch kind {
	case entity.AssociationStatusRecommended:
		if err := requireRole(actor, entity.RoleAdmin, entity.RoleSystem); err != nil {
			return nil, err
		}
	case entity.AssociationStatusApplied:
		if err := requireRole(actor, entity.RoleTutor); err != nil {
			return nil, err
		}
		if tutorID == "" {
			tutorID = actor.ID
		}
	default:
		return nil, invalidInput("interest kind must be %s or %s, got %q",
			entity.AssociationStatusRecommended, entity.AssociationStatusApplied, kind)
	}
	if tutorID == "" {
		return nil, invalidInput("tutor_id is required")
	}
	o := collect(opts)
	id := uuid.NewString()

	var result *entity.TutorAssociation
	err := s.run(ctx, "RecordTutorInterest", func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, requirementID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, tutorID); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, requirementID, req.Version); err != nil {
			return nil, err
		}
		if req.IsClosed() {
			return nil, fmt.Errorf("%w: %s", ErrRequirementClosed, requirementID)
		}

		existing, err := s.repos.Associations.GetByPair(ctx, requirementID, tutorID)
		if err == nil {
			return nil, fmt.Errorf("%w: tutor %s is %s", ErrDuplicateAssociation, tutorID, existing.Status)
		}
		if !errors.Is(err, port.ErrNotFound) {
			return nil, err
		}

		now := s.now()
		a := &entity.TutorAssociation{
			ID:            id,
			RequirementID: requirementID,
			TutorID:       tutorID,
			Status:        kind,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		a.Stamp(kind, now)

		cs := appwf.NewChangeset()
		s.holdRequirement(cs, req)
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Associations.Create(ctx, a)
		})
		cs.Emit(s.newEvent(o, event.TypeAssociationRecorded,
			event.Transition{EntityType: entity.EntityAssociation, EntityID: id, To: kind},
			actor, map[string]interface{}{
				"requirement_id": requirementID,
				"tutor_id":       tutorID,
			}))
		result = a
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Tutor interest recorded",
		"requirement_id", requirementID,
		"tutor_id", tutorID,
		"status", kind,
	)
	return result, nil
}

// ApplyToRecommendation turns a recommendation into the tutor's application
func (s *workflowService) ApplyToRecommendation(ctx context.Context, actor entity.Actor, requirementID, tutorID string, opts ...CallOption) (*entity.TutorAssociation, error) {
	if err := requireRole(actor, entity.RoleTutor); err != nil {
		return nil, err
	}
	if tutorID == "" {
		tutorID = actor.ID
	}
	return s.moveAssociation(ctx, "ApplyToRecommendation", actor, requirementID, tutorID, entity.AssociationStatusApplied, "", opts)
}

// PromoteAssociation shortlists or assigns a tutor. Assigning moves an Open
// requirement to Matched; the other candidates are left as they are.
func (s *workflowService) PromoteAssociation(ctx context.Context, actor entity.Actor, requirementID, tutorID, target string, opts ...CallOption) (*entity.TutorAssociation, error) {
	if err := requireRole(actor, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if target != entity.AssociationStatusShortlisted && target != entity.AssociationStatusAssigned {
		return nil, invalidInput("promotion target must be %s or %s, got %q",
			entity.AssociationStatusShortlisted, entity.AssociationStatusAssigned, target)
	}
	return s.moveAssociation(ctx, "PromoteAssociation", actor, requirementID, tutorID, target, "", opts)
}

// RejectAssociation takes a tutor out of consideration and cancels the pair's active demo
func (s *workflowService) RejectAssociation(ctx context.Context, actor entity.Actor, requirementID, tutorID, reason string, opts ...CallOption) (*entity.TutorAssociation, error) {
	if err := requireRole(actor, entity.RoleAdmin); err != nil {
		return nil, err
	}
	return s.moveAssociation(ctx, "RejectAssociation", actor, requirementID, tutorID, entity.AssociationStatusRejected, reason, opts)
}

// WithdrawAssociation lets a tutor step back and cancels the pair's active demo
func (s *workflowService) WithdrawAssociation(ctx context.Context, actor entity.Actor, requirementID, tutorID string, opts ...CallOption) (*entity.TutorAssociation, error) {
	if err := requireRole(actor, entity.RoleTutor); err != nil {
		return nil, err
	}
	if tutorID == "" {
		tutorID = actor.ID
	}
	return s.moveAssociation(ctx, "WithdrawAssociation", actor, requirementID, tutorID, entity.AssociationStatusWithdrawn, "", opts)
}

func (s *workflowService) moveAssociation(ctx context.Context, op string, actor entity.Actor, requirementID, tutorID, target, note string, opts []CallOption) (*entity.TutorAssociation, error) {
	o := collect(opts)
	eliminating := target == entity.AssociationStatusRejected || target == entity.AssociationStatusWithdrawn

	var result *entity.TutorAssociation
	err := s.run(ctx, op, func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, requirementID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, tutorID); err != nil {
			return nil, err
		}
		a, err := s.repos.Associations.GetByPair(ctx, requirementID, tutorID)
		if err != nil {
			return nil, fmt.Errorf("association for tutor %s: %w", tutorID, err)
		}
		if err := o.expect(entity.EntityAssociation, a.ID, a.Version); err != nil {
			return nil, err
		}

		noop, err := s.check(entity.EntityAssociation, a.Status, target, actor.Role)
		if err != nil {
			return nil, err
		}
		if noop {
			result = a
			return nil, nil
		}
		if req.IsClosed() && !eliminating {
			return nil, fmt.Errorf("%w: %s", ErrRequirementClosed, requirementID)
		}

		now := s.now()
		cs := appwf.NewChangeset()
		payload := map[string]interface{}{
			"requirement_id": requirementID,
			"tutor_id":       tutorID,
		}

		switch {
		case target == entity.AssociationStatusAssigned:
			if err := s.stageAssignment(ctx, cs, req, a, now, payload); err != nil {
				return nil, err
			}
		case eliminating:
			demo, err := s.repos.Demos.FindActive(ctx, requirementID, tutorID)
			if err != nil && !errors.Is(err, port.ErrNotFound) {
				return nil, err
			}
			if demo != nil {
				ids, err := s.cancelActiveDemos(cs, []*entity.DemoSession{demo}, "tutor "+lower(target), now)
				if err != nil {
					return nil, err
				}
				payload["cancelled_demos"] = ids
			}
		default:
			s.holdRequirement(cs, req)
		}

		from := a.Status
		a.Status = target
		a.Stamp(target, now)
		if note != "" {
			a.Note = note
		}
		a.UpdatedAt = now
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Associations.Update(ctx, a)
		})
		cs.Emit(s.newEvent(o, event.TypeAssociationStatusChanged,
			event.Transition{EntityType: entity.EntityAssociation, EntityID: a.ID, From: from, To: target},
			actor, payload))
		result = a
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Association status changed",
		"operation", op,
		"requirement_id", requirementID,
		"tutor_id", tutorID,
		"status", result.Status,
	)
	return result, nil
}

// stageAssignment enforces the single assignment per requirement and moves an
// Open requirement to Matched
func (s *workflowService) stageAssignment(ctx context.Context, cs *appwf.Changeset, req *entity.Requirement, a *entity.TutorAssociation, now time.Time, payload map[string]interface{}) error {
	others, err := s.repos.Associations.ListByRequirement(ctx, req.ID)
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID != a.ID && other.Status == entity.AssociationStatusAssigned {
			return fmt.Errorf("%w: tutor %s", ErrTutorAlreadyAssigned, other.TutorID)
		}
	}

	if req.Status != entity.RequirementStatusOpen {
		s.holdRequirement(cs, req)
		return nil
	}
	if _, err := s.check(entity.EntityRequirement, req.Status, entity.RequirementStatusMatched, entity.RoleSystem); err != nil {
		return err
	}
	payload["requirement_from"] = req.Status
	req.Status = entity.RequirementStatusMatched
	req.UpdatedAt = now
	payload["requirement_status"] = req.Status
	cs.Stage(func(ctx context.Context) error {
		return s.repos.Requirements.Update(ctx, req)
	})
	return nil
}

// RejectOtherCandidates rejects every still-open candidate of a requirement
// that already has an assigned tutor
func (s *workflowService) RejectOtherCandidates(ctx context.Context, actor entity.Actor, requirementID string, opts ...CallOption) ([]*entity.TutorAssociation, error) {
	if err := requireRole(actor, entity.RoleAdmin); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result []*entity.TutorAssociation
	err := s.run(ctx, "RejectOtherCandidates", func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, requirementID)
		if err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, requirementID, req.Version); err != nil {
			return nil, err
		}

		assocs, err := s.repos.Associations.ListByRequirement(ctx, requirementID)
		if err != nil {
			return nil, err
		}
		var assigned *entity.TutorAssociation
		for _, a := range assocs {
			if a.Status == entity.AssociationStatusAssigned {
				assigned = a
			}
		}
		if assigned == nil {
			return nil, fmt.Errorf("%w: requirement %s has no assigned tutor", ErrAssociationNotAssigned, requirementID)
		}

		now := s.now()
		cs := appwf.NewChangeset()
		result = make([]*entity.TutorAssociation, 0)
		rejected := make([]string, 0)
		var cancelled []string
		for _, a := range assocs {
			if a.IsTerminal() {
				continue
			}
			if _, err := s.check(entity.EntityAssociation, a.Status, entity.AssociationStatusRejected, actor.Role); err != nil {
				return nil, err
			}
			demo, err := s.repos.Demos.FindActive(ctx, requirementID, a.TutorID)
			if err != nil && !errors.Is(err, port.ErrNotFound) {
				return nil, err
			}
			if demo != nil {
				ids, err := s.cancelActiveDemos(cs, []*entity.DemoSession{demo}, "another tutor was assigned", now)
				if err != nil {
					return nil, err
				}
				cancelled = append(cancelled, ids...)
			}

			a.Status = entity.AssociationStatusRejected
			a.Stamp(a.Status, now)
			a.Note = "another tutor was assigned"
			a.UpdatedAt = now
			assoc := a
			cs.Stage(func(ctx context.Context) error {
				return s.repos.Associations.Update(ctx, assoc)
			})
			result = append(result, a)
			rejected = append(rejected, a.TutorID)
		}
		if cs.Empty() {
			return nil, nil
		}

		s.holdAssociation(cs, assigned)
		cs.Emit(s.newEvent(o, event.TypeAssociationsRejected,
			event.Transition{EntityType: entity.EntityRequirement, EntityID: requirementID, From: req.Status, To: req.Status},
			actor, map[string]interface{}{
				"assigned_tutor_id": assigned.TutorID,
				"rejected_tutors":   rejected,
				"cancelled_demos":   cancelled,
			}))
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func lower(status string) string {
	return strings.ToLower(status)
}
