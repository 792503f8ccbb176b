package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// CreateClassInput describes the recurring engagement to start
type CreateClassInput struct {
	RequirementID string          `json:"requirement_id"`
	TutorID       string          `json:"tutor_id"`
	Subject       string          `json:"subject"`
	Mode          string          `json:"mode"`
	Schedule      entity.Schedule `json:"schedule"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       *time.Time      `json:"end_date"`
}

// CreateClass starts classes with the assigned tutor and closes the
// requirement in the same commit. Replaying it after the requirement closed
// returns the existing class.
func (s *workflowService) CreateClass(ctx context.Context, actor entity.Actor, in CreateClassInput, opts ...CallOption) (*entity.Class, error) {
	if err := requireRole(actor, entity.RoleParent, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if in.RequirementID == "" || in.TutorID == "" {
		return nil, invalidInput("requirement_id and tutor_id are required")
	}
	o := collect(opts)

	var result *entity.Class
	err := s.run(ctx, "CreateClass", func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, in.RequirementID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, ""); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, req.ID, req.Version); err != nil {
			return nil, err
		}

		now := s.now()
		class, existing, err := s.planClass(ctx, req, in, now)
		if err != nil {
			return nil, err
		}
		result = class
		if existing && req.IsClosed() {
			return nil, nil
		}

		cs := appwf.NewChangeset()
		if !existing {
			cs.Stage(func(ctx context.Context) error {
				return s.repos.Classes.Create(ctx, class)
			})
		}
		from, cancelled, err := s.stageClose(ctx, cs, req, actor, entity.ClosureOutcome{
			FoundTutor:   true,
			TutorID:      in.TutorID,
			StartClasses: true,
			ClassID:      class.ID,
		}, now)
		if err != nil {
			return nil, err
		}

		payload := map[string]interface{}{
			"requirement_id":   req.ID,
			"tutor_id":         in.TutorID,
			"requirement_from": from,
			"cancelled_demos":  cancelled,
		}
		if existing {
			payload["class_id"] = class.ID
			cs.Emit(s.newEvent(o, event.TypeRequirementClosed,
				event.Transition{EntityType: entity.EntityRequirement, EntityID: req.ID, From: from, To: req.Status},
				actor, payload))
		} else {
			cs.Emit(s.newEvent(o, event.TypeClassCreated,
				event.Transition{EntityType: entity.EntityClass, EntityID: class.ID, To: class.Status},
				actor, payload))
		}
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Class created",
		"class_id", result.ID,
		"requirement_id", in.RequirementID,
		"tutor_id", in.TutorID,
	)
	return result, nil
}

// CancelClass stops a class that has not finished
func (s *workflowService) CancelClass(ctx context.Context, actor entity.Actor, classID, reason string, opts ...CallOption) (*entity.Class, error) {
	if err := requireRole(actor, entity.RoleParent, entity.RoleTutor, entity.RoleAdmin); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.Class
	err := s.run(ctx, "CancelClass", func(ctx context.Context) (*appwf.Changeset, error) {
		c, err := s.repos.Classes.GetByID(ctx, classID)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", classID, err)
		}
		req, err := s.loadRequirement(ctx, c.RequirementID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, c.TutorID); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityClass, classID, c.Version); err != nil {
			return nil, err
		}
		noop, err := s.check(entity.EntityClass, c.Status, entity.ClassStatusCancelled, actor.Role)
		if err != nil {
			return nil, err
		}
		if noop {
			result = c
			return nil, nil
		}

		from := c.Status
		c.Status = entity.ClassStatusCancelled
		c.CancelReason = reason
		c.CancelledBy = actor.Role
		c.NextSession = nil
		c.UpdatedAt = s.now()

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Classes.Update(ctx, c)
		})
		cs.Emit(s.newEvent(o, event.TypeClassStatusChanged,
			event.Transition{EntityType: entity.EntityClass, EntityID: c.ID, From: from, To: c.Status},
			actor, map[string]interface{}{
				"requirement_id": c.RequirementID,
				"tutor_id":       c.TutorID,
				"reason":         reason,
			}))
		result = c
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdvanceClassSchedules moves upcoming and ongoing classes along by date and
// refreshes their next session. Classes that race another writer are skipped
// until the next run. It returns how many classes changed status.
func (s *workflowService) AdvanceClassSchedules(ctx context.Context, now time.Time, limit int) (int, error) {
	classes, err := s.repos.Classes.ListByStatus(ctx,
		[]string{entity.ClassStatusUpcoming, entity.ClassStatusOngoing}, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list active classes: %w", err)
	}

	system := entity.System()
	advanced := 0
	for _, listed := range classes {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}

		changed := false
		classID := listed.ID
		err := s.run(ctx, "AdvanceClassSchedule", func(ctx context.Context) (*appwf.Changeset, error) {
			changed = false
			c, err := s.repos.Classes.GetByID(ctx, classID)
			if err != nil {
				return nil, err
			}

			due := c.DueStatus(now)
			next := c.NextSession
			if due == entity.ClassStatusPast {
				next = nil
			} else if next == nil || !next.After(now) {
				next = c.NextSessionAfter(now)
			}
			if due == c.Status && sameTime(next, c.NextSession) {
				return nil, nil
			}

			cs := appwf.NewChangeset()
			from := c.Status
			if due != c.Status {
				if _, err := s.check(entity.EntityClass, c.Status, due, system.Role); err != nil {
					return nil, err
				}
				c.Status = due
				changed = true
				cs.Emit(s.newEvent(callOptions{}, event.TypeClassStatusChanged,
					event.Transition{EntityType: entity.EntityClass, EntityID: c.ID, From: from, To: due},
					system, map[string]interface{}{
						"requirement_id": c.RequirementID,
						"tutor_id":       c.TutorID,
					}))
			}
			c.NextSession = next
			c.UpdatedAt = s.now()
			cs.Stage(func(ctx context.Context) error {
				return s.repos.Classes.Update(ctx, c)
			})
			return cs, nil
		})
		if err != nil {
			if errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				s.logger.Warn("Skipping class schedule update", "class_id", classID, "error", err)
				continue
			}
			return advanced, err
		}
		if changed {
			advanced++
		}
	}
	return advanced, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
