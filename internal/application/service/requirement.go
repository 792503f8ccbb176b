package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/tutor-matching/internal/application/port"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// CloseOutcome is the full result of the parent's close flow, committed at once
type CloseOutcome struct {
	FoundTutor   bool            `json:"found_tutor"`
	TutorID      string          `json:"tutor_id"`
	TutorName    string          `json:"tutor_name"`
	StartClasses bool            `json:"start_classes"`
	Subject      string          `json:"subject"`
	Mode         string          `json:"mode"`
	Schedule     entity.Schedule `json:"schedule"`
	StartDate    time.Time       `json:"start_date"`
	EndDate      *time.Time      `json:"end_date"`
}

func (o CloseOutcome) validate() error {
	if o.StartClasses && !o.FoundTutor {
		return invalidInput("classes can only start when a tutor was found")
	}
	if o.StartClasses && o.TutorID == "" {
		return invalidInput("tutor_id is required to start classes")
	}
	if o.StartClasses {
		if err := o.Schedule.Validate(); err != nil {
			return invalidInput("%v", err)
		}
	}
	return nil
}

func (s *workflowService) validateFields(f entity.RequirementFields) error {
	if err := s.validate.Struct(f); err != nil {
		return invalidInput("%v", err)
	}
	for _, m := range f.TeachingModes {
		if m == entity.TeachingModeOffline && strings.TrimSpace(f.Location) == "" {
			return invalidInput("location is required for offline teaching")
		}
	}
	return nil
}

// PostRequirement creates an Open requirement owned by the calling parent
func (s *workflowService) PostRequirement(ctx context.Context, actor entity.Actor, fields entity.RequirementFields, opts ...CallOption) (*entity.Requirement, error) {
	if err := requireRole(actor, entity.RoleParent); err != nil {
		return nil, err
	}
	if err := s.validateFields(fields); err != nil {
		return nil, err
	}
	o := collect(opts)
	id := uuid.NewString()

	var result *entity.Requirement
	err := s.run(ctx, "PostRequirement", func(ctx context.Context) (*appwf.Changeset, error) {
		now := s.now()
		req := &entity.Requirement{
			ID:        id,
			ParentID:  actor.ID,
			Status:    entity.RequirementStatusOpen,
			PostedAt:  now,
			UpdatedAt: now,
		}
		req.ApplyFields(fields)

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Requirements.Create(ctx, req)
		})
		cs.Emit(s.newEvent(o, event.TypeRequirementPosted,
			event.Transition{EntityType: entity.EntityRequirement, EntityID: id, To: req.Status},
			actor, map[string]interface{}{
				"parent_id":      actor.ID,
				"subjects":       req.Subjects,
				"teaching_modes": req.TeachingModes,
			}))
		result = req
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requirement posted", "requirement_id", id, "parent_id", actor.ID)
	return result, nil
}

// UpdateRequirement replaces the editable fields while the requirement is not closed
func (s *workflowService) UpdateRequirement(ctx context.Context, actor entity.Actor, id string, fields entity.RequirementFields, opts ...CallOption) (*entity.Requirement, error) {
	if err := requireRole(actor, entity.RoleParent); err != nil {
		return nil, err
	}
	if err := s.validateFields(fields); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.Requirement
	err := s.run(ctx, "UpdateRequirement", func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, ""); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, id, req.Version); err != nil {
			return nil, err
		}
		if req.IsClosed() {
			return nil, fmt.Errorf("%w: %s", ErrRequirementClosed, id)
		}

		next := req.Clone()
		next.ApplyFields(fields)
		if reflect.DeepEqual(next.Fields(), req.Fields()) {
			result = req
			return nil, nil
		}
		next.UpdatedAt = s.now()

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Requirements.Update(ctx, next)
		})
		cs.Emit(s.newEvent(o, event.TypeRequirementUpdated,
			event.Transition{EntityType: entity.EntityRequirement, EntityID: id, From: req.Status, To: next.Status},
			actor, nil))
		result = next
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteRequirement removes a requirement with its associations and demos.
// It is refused while a tutor is assigned.
func (s *workflowService) DeleteRequirement(ctx context.Context, actor entity.Actor, id string, opts ...CallOption) error {
	if err := requireRole(actor, entity.RoleParent); err != nil {
		return err
	}
	o := collect(opts)

	err := s.run(ctx, "DeleteRequirement", func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, ""); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, id, req.Version); err != nil {
			return nil, err
		}

		assocs, err := s.repos.Associations.ListByRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, a := range assocs {
			if a.Status == entity.AssociationStatusAssigned {
				return nil, fmt.Errorf("%w: tutor %s", ErrActiveAssignment, a.TutorID)
			}
		}
		demos, err := s.repos.Demos.ListByRequirement(ctx, id)
		if err != nil {
			return nil, err
		}

		version := req.Version
		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.DeleteByRequirement(ctx, id)
		})
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Associations.DeleteByRequirement(ctx, id)
		})
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Requirements.Delete(ctx, id, version)
		})
		cs.Emit(s.newEvent(o, event.TypeRequirementDeleted,
			event.Transition{EntityType: entity.EntityRequirement, EntityID: id, From: req.Status},
			actor, map[string]interface{}{
				"associations_removed": len(assocs),
				"demos_removed":        len(demos),
			}))
		return cs, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Requirement deleted", "requirement_id", id, "parent_id", actor.ID)
	return nil
}

// CloseRequirement closes the requirement, cancels its active demos and,
// when the outcome asks for it, creates the class. Closing an already closed
// requirement returns it unchanged.
func (s *workflowService) CloseRequirement(ctx context.Context, actor entity.Actor, id string, outcome CloseOutcome, opts ...CallOption) (*entity.Requirement, error) {
	if err := requireRole(actor, entity.RoleParent, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if err := outcome.validate(); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.Requirement
	err := s.run(ctx, "CloseRequirement", func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, ""); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, id, req.Version); err != nil {
			return nil, err
		}
		if req.IsClosed() {
			result = req
			return nil, nil
		}

		now := s.now()
		cs := appwf.NewChangeset()
		closure := entity.ClosureOutcome{
			FoundTutor:   outcome.FoundTutor,
			TutorID:      outcome.TutorID,
			TutorName:    outcome.TutorName,
			StartClasses: outcome.StartClasses,
		}

		if outcome.StartClasses {
			class, existing, err := s.planClass(ctx, req, CreateClassInput{
				RequirementID: id,
				TutorID:       outcome.TutorID,
				Subject:       outcome.Subject,
				Mode:          outcome.Mode,
				Schedule:      outcome.Schedule,
				StartDate:     outcome.StartDate,
				EndDate:       outcome.EndDate,
			}, now)
			if err != nil {
				return nil, err
			}
			if !existing {
				cs.Stage(func(ctx context.Context) error {
					return s.repos.Classes.Create(ctx, class)
				})
			}
			closure.ClassID = class.ID
		}

		from, cancelled, err := s.stageClose(ctx, cs, req, actor, closure, now)
		if err != nil {
			return nil, err
		}

		payload := map[string]interface{}{
			"found_tutor":     outcome.FoundTutor,
			"start_classes":   outcome.StartClasses,
			"cancelled_demos": cancelled,
		}
		if closure.ClassID != "" {
			payload["class_id"] = closure.ClassID
		}
		if outcome.TutorID != "" {
			payload["tutor_id"] = outcome.TutorID
		}
		cs.Emit(s.newEvent(o, event.TypeRequirementClosed,
			event.Transition{EntityType: entity.EntityRequirement, EntityID: id, From: from, To: req.Status},
			actor, payload))
		result = req
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReopenRequirement moves a closed requirement back to Open. Only the owning
// parent may do this, and not while one of its classes is ongoing.
func (s *workflowService) ReopenRequirement(ctx context.Context, actor entity.Actor, id string, opts ...CallOption) (*entity.Requirement, error) {
	if err := requireRole(actor, entity.RoleParent); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.Requirement
	err := s.run(ctx, "ReopenRequirement", func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, ""); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, id, req.Version); err != nil {
			return nil, err
		}
		noop, err := s.check(entity.EntityRequirement, req.Status, entity.RequirementStatusOpen, actor.Role)
		if err != nil {
			return nil, err
		}
		if noop {
			result = req
			return nil, nil
		}

		classes, err := s.repos.Classes.ListByRequirement(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, c := range classes {
			if c.Status == entity.ClassStatusOngoing {
				return nil, fmt.Errorf("%w: class %s", ErrClassOngoing, c.ID)
			}
		}

		from := req.Status
		req.Status = entity.RequirementStatusOpen
		req.Outcome = nil
		req.ClosedAt = nil
		req.UpdatedAt = s.now()

		cs := appwf.NewChangeset()
		// A class that may still start must not move before the reopen commits
		for _, c := range classes {
			if c.Status == entity.ClassStatusUpcoming {
				s.holdClass(cs, c)
			}
		}
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Requirements.Update(ctx, req)
		})
		cs.Emit(s.newEvent(o, event.TypeRequirementReopened,
			event.Transition{EntityType: entity.EntityRequirement, EntityID: id, From: from, To: req.Status},
			actor, nil))
		result = req
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// stageClose cancels the requirement's active demos and moves it to Closed.
// It returns the previous status and the cancelled demo ids.
func (s *workflowService) stageClose(ctx context.Context, cs *appwf.Changeset, req *entity.Requirement, actor entity.Actor, outcome entity.ClosureOutcome, now time.Time) (string, []string, error) {
	if _, err := s.check(entity.EntityRequirement, req.Status, entity.RequirementStatusClosed, actor.Role); err != nil {
		return "", nil, err
	}

	demos, err := s.repos.Demos.ListByRequirement(ctx, req.ID)
	if err != nil {
		return "", nil, err
	}
	cancelled, err := s.cancelActiveDemos(cs, demos, "requirement closed", now)
	if err != nil {
		return "", nil, err
	}

	from := req.Status
	outcome.ClosedBy = actor.Role
	req.Status = entity.RequirementStatusClosed
	req.Outcome = &outcome
	closedAt := now
	req.ClosedAt = &closedAt
	req.UpdatedAt = now
	cs.Stage(func(ctx context.Context) error {
		return s.repos.Requirements.Update(ctx, req)
	})
	return from, cancelled, nil
}

// planClass validates the pairing and builds the class to insert. When the
// pair already has a live class it returns that one with existing=true.
func (s *workflowService) planClass(ctx context.Context, req *entity.Requirement, in CreateClassInput, now time.Time) (*entity.Class, bool, error) {
	assoc, err := s.repos.Associations.GetByPair(ctx, req.ID, in.TutorID)
	if errors.Is(err, port.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: no association for tutor %s", ErrAssociationNotAssigned, in.TutorID)
	}
	if err != nil {
		return nil, false, err
	}
	if assoc.Status != entity.AssociationStatusAssigned {
		return nil, false, fmt.Errorf("%w: tutor %s is %s", ErrAssociationNotAssigned, in.TutorID, assoc.Status)
	}

	classes, err := s.repos.Classes.ListByRequirement(ctx, req.ID)
	if err != nil {
		return nil, false, err
	}
	for _, c := range classes {
		if c.TutorID == in.TutorID && c.Status != entity.ClassStatusCancelled {
			return c, true, nil
		}
	}
	if req.IsClosed() {
		return nil, false, fmt.Errorf("%w: %s", ErrRequirementClosed, req.ID)
	}

	subject := in.Subject
	if subject == "" && len(req.Subjects) > 0 {
		subject = req.Subjects[0]
	}
	if !req.HasSubject(subject) {
		return nil, false, invalidInput("subject %q is not part of the requirement", subject)
	}
	mode := in.Mode
	if mode == "" && len(req.TeachingModes) > 0 {
		mode = req.TeachingModes[0]
	}
	if !req.HasMode(mode) {
		return nil, false, invalidInput("mode %q is not accepted by the requirement", mode)
	}
	if err := in.Schedule.Validate(); err != nil {
		return nil, false, invalidInput("%v", err)
	}

	start := in.StartDate
	if start.IsZero() {
		start = now
	}
	if in.EndDate != nil && !in.EndDate.After(start) {
		return nil, false, invalidInput("end_date must be after start_date")
	}
	from := now
	if start.After(now) {
		from = start.Add(-time.Second)
	}

	class := &entity.Class{
		ID:            uuid.NewString(),
		RequirementID: req.ID,
		TutorID:       in.TutorID,
		Subject:       subject,
		Schedule: entity.Schedule{
			Days:      append([]string(nil), in.Schedule.Days...),
			StartTime: in.Schedule.StartTime,
			EndTime:   in.Schedule.EndTime,
		},
		Mode:        mode,
		Status:      entity.ClassStatusUpcoming,
		StartDate:   start,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.EndDate != nil {
		end := *in.EndDate
		class.EndDate = &end
	}
	class.NextSession = class.NextSessionAfter(from)
	return class, false, nil
}
