package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/garyjia/tutor-matching/internal/application/port"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// DemoInput describes a demo to schedule or request
type DemoInput struct {
	RequirementID string      `json:"requirement_id"`
	TutorID       string      `json:"tutor_id"`
	Subjects      []string    `json:"subjects"`
	Slot          entity.Slot `json:"slot"`
	Mode          string      `json:"mode"`
	JoinLink      string      `json:"join_link"`
	Location      string      `json:"location"`
	FeeCents      *int64      `json:"fee_cents"`
}

// ScheduleDemo books a demo directly in Scheduled state
func (s *workflowService) ScheduleDemo(ctx context.Context, actor entity.Actor, in DemoInput, opts ...CallOption) (*entity.DemoSession, error) {
	if err := requireRole(actor, entity.RoleAdmin); err != nil {
		return nil, err
	}
	return s.createDemo(ctx, "ScheduleDemo", actor, in, entity.DemoStatusScheduled, event.TypeDemoScheduled, opts)
}

// RequestDemo asks for a demo; it stays Requested until confirmed
func (s *workflowService) RequestDemo(ctx context.Context, actor entity.Actor, in DemoInput, opts ...CallOption) (*entity.DemoSession, error) {
	if err := requireRole(actor, entity.RoleParent, entity.RoleTutor); err != nil {
		return nil, err
	}
	if actor.Role == entity.RoleTutor && in.TutorID == "" {
		in.TutorID = actor.ID
	}
	return s.createDemo(ctx, "RequestDemo", actor, in, entity.DemoStatusRequested, event.TypeDemoRequested, opts)
}

func (s *workflowService) createDemo(ctx context.Context, op string, actor entity.Actor, in DemoInput, status string, evtType event.Type, opts []CallOption) (*entity.DemoSession, error) {
	if in.RequirementID == "" || in.TutorID == "" {
		return nil, invalidInput("requirement_id and tutor_id are required")
	}
	if err := in.Slot.Validate(); err != nil {
		return nil, invalidInput("%v", err)
	}
	if in.FeeCents != nil && *in.FeeCents < 0 {
		return nil, invalidInput("fee cannot be negative")
	}
	o := collect(opts)
	id := uuid.NewString()

	var result *entity.DemoSession
	err := s.run(ctx, op, func(ctx context.Context) (*appwf.Changeset, error) {
		req, err := s.loadRequirement(ctx, in.RequirementID)
		if err != nil {
			return nil, err
		}
		if err := authorize(actor, req, in.TutorID); err != nil {
			return nil, err
		}
		if err := o.expect(entity.EntityRequirement, req.ID, req.Version); err != nil {
			return nil, err
		}
		if req.IsClosed() {
			return nil, fmt.Errorf("%w: %s", ErrRequirementClosed, req.ID)
		}

		a, err := s.repos.Associations.GetByPair(ctx, req.ID, in.TutorID)
		if err != nil {
			return nil, fmt.Errorf("association for tutor %s: %w", in.TutorID, err)
		}
		if a.IsEliminated() {
			return nil, fmt.Errorf("%w: tutor %s is %s", ErrAssociationInactive, in.TutorID, a.Status)
		}

		active, err := s.repos.Demos.FindActive(ctx, req.ID, in.TutorID)
		if err == nil {
			return nil, fmt.Errorf("%w: demo %s is %s", ErrConflictingDemo, active.ID, active.Status)
		}
		if !errors.Is(err, port.ErrNotFound) {
			return nil, err
		}

		mode := in.Mode
		if mode == "" && len(req.TeachingModes) == 1 {
			mode = req.TeachingModes[0]
		}
		if !req.HasMode(mode) {
			return nil, invalidInput("mode %q is not accepted by the requirement", mode)
		}
		subjects := in.Subjects
		if len(subjects) == 0 {
			subjects = req.Subjects
		}
		for _, sub := range subjects {
			if !req.HasSubject(sub) {
				return nil, invalidInput("subject %q is not part of the requirement", sub)
			}
		}
		location := in.Location
		if mode == entity.TeachingModeOffline && location == "" {
			location = req.Location
		}

		now := s.now()
		d := &entity.DemoSession{
			ID:               id,
			RequirementID:    req.ID,
			TutorID:          in.TutorID,
			Subjects:         append([]string(nil), subjects...),
			Slot:             in.Slot,
			DurationMinutes:  in.Slot.DurationMinutes(),
			Mode:             mode,
			Status:           status,
			RescheduleStatus: entity.RescheduleStatusNone,
			JoinLink:         in.JoinLink,
			Location:         location,
			RequestedBy:      actor.Role,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if in.FeeCents != nil {
			fee := *in.FeeCents
			d.FeeCents = &fee
		}

		cs := appwf.NewChangeset()
		s.holdRequirement(cs, req)
		s.holdAssociation(cs, a)
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.Create(ctx, d)
		})
		cs.Emit(s.newEvent(o, evtType,
			event.Transition{EntityType: entity.EntityDemo, EntityID: id, To: status},
			actor, map[string]interface{}{
				"requirement_id": req.ID,
				"tutor_id":       in.TutorID,
				"start_at":       d.Slot.StartAt,
				"paid":           d.IsPaid(),
			}))
		result = d
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Demo created",
		"demo_id", id,
		"requirement_id", in.RequirementID,
		"tutor_id", in.TutorID,
		"status", status,
	)
	return result, nil
}

// demoContext is what every demo mutation loads before deciding
type demoContext struct {
	demo *entity.DemoSession
	req  *entity.Requirement
}

func (s *workflowService) loadDemo(ctx context.Context, actor entity.Actor, demoID string, o callOptions) (*demoContext, error) {
	d, err := s.repos.Demos.GetByID(ctx, demoID)
	if err != nil {
		return nil, fmt.Errorf("demo %s: %w", demoID, err)
	}
	req, err := s.loadRequirement(ctx, d.RequirementID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, req, d.TutorID); err != nil {
		return nil, err
	}
	if err := o.expect(entity.EntityDemo, demoID, d.Version); err != nil {
		return nil, err
	}
	return &demoContext{demo: d, req: req}, nil
}

// ConfirmDemo accepts a requested demo
func (s *workflowService) ConfirmDemo(ctx context.Context, actor entity.Actor, demoID string, opts ...CallOption) (*entity.DemoSession, error) {
	if err := requireRole(actor, entity.RoleAdmin, entity.RoleTutor); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.DemoSession
	err := s.run(ctx, "ConfirmDemo", func(ctx context.Context) (*appwf.Changeset, error) {
		dc, err := s.loadDemo(ctx, actor, demoID, o)
		if err != nil {
			return nil, err
		}
		d := dc.demo
		noop, err := s.check(entity.EntityDemo, d.Status, entity.DemoStatusScheduled, actor.Role)
		if err != nil {
			return nil, err
		}
		if noop {
			result = d
			return nil, nil
		}

		from := d.Status
		d.Status = entity.DemoStatusScheduled
		d.UpdatedAt = s.now()

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.Update(ctx, d)
		})
		cs.Emit(s.newEvent(o, event.TypeDemoScheduled,
			event.Transition{EntityType: entity.EntityDemo, EntityID: d.ID, From: from, To: d.Status},
			actor, map[string]interface{}{"requirement_id": d.RequirementID, "tutor_id": d.TutorID}))
		result = d
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestReschedule proposes a new slot. The demo keeps its status and slot
// until the counterpart resolves the proposal.
func (s *workflowService) RequestReschedule(ctx context.Context, actor entity.Actor, demoID string, proposed entity.Slot, reason string, opts ...CallOption) (*entity.DemoSession, error) {
	if err := requireRole(actor, entity.RoleParent, entity.RoleTutor, entity.RoleAdmin); err != nil {
		return nil, err
	}
	if err := proposed.Validate(); err != nil {
		return nil, invalidInput("%v", err)
	}
	o := collect(opts)

	var result *entity.DemoSession
	err := s.run(ctx, "RequestReschedule", func(ctx context.Context) (*appwf.Changeset, error) {
		dc, err := s.loadDemo(ctx, actor, demoID, o)
		if err != nil {
			return nil, err
		}
		d := dc.demo
		if !d.IsActive() {
			return nil, fmt.Errorf("%w: demo %s is %s", ErrInvalidTransition, d.ID, d.Status)
		}
		if d.HasPendingReschedule() {
			return nil, fmt.Errorf("%w: proposed by %s", ErrRescheduleAlreadyPending, d.RescheduleRequestedBy)
		}
		if _, err := s.check(entity.EntityDemoReschedule, d.RescheduleStatus, entity.RescheduleStatusPending, actor.Role); err != nil {
			return nil, err
		}

		slot := proposed
		d.RescheduleStatus = entity.RescheduleStatusPending
		d.ProposedSlot = &slot
		d.RescheduleReason = reason
		d.RescheduleRequestedBy = actor.Role
		d.UpdatedAt = s.now()

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.Update(ctx, d)
		})
		cs.Emit(s.newEvent(o, event.TypeDemoRescheduleRequested,
			event.Transition{EntityType: entity.EntityDemoReschedule, EntityID: d.ID, From: entity.RescheduleStatusNone, To: entity.RescheduleStatusPending},
			actor, map[string]interface{}{
				"requirement_id": d.RequirementID,
				"tutor_id":       d.TutorID,
				"proposed_start": slot.StartAt,
				"reason":         reason,
			}))
		result = d
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveReschedule accepts or rejects the pending proposal. The proposer's
// counterpart resolves it; an admin may resolve any proposal.
func (s *workflowService) ResolveReschedule(ctx context.Context, actor entity.Actor, demoID string, accept bool, opts ...CallOption) (*entity.DemoSession, error) {
	if err := requireRole(actor, entity.RoleParent, entity.RoleTutor, entity.RoleAdmin); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.DemoSession
	err := s.run(ctx, "ResolveReschedule", func(ctx context.Context) (*appwf.Changeset, error) {
		dc, err := s.loadDemo(ctx, actor, demoID, o)
		if err != nil {
			return nil, err
		}
		d := dc.demo
		if _, err := s.check(entity.EntityDemoReschedule, d.RescheduleStatus, entity.RescheduleStatusNone, actor.Role); err != nil {
			return nil, err
		}
		if actor.Role != entity.RoleAdmin && actor.Role == d.RescheduleRequestedBy {
			return nil, fmt.Errorf("%w: proposed by %s", ErrNotCounterpart, d.RescheduleRequestedBy)
		}

		payload := map[string]interface{}{
			"requirement_id": d.RequirementID,
			"tutor_id":       d.TutorID,
			"accepted":       accept,
			"proposed_by":    string(d.RescheduleRequestedBy),
		}
		if accept && d.ProposedSlot != nil {
			d.Slot = *d.ProposedSlot
			d.DurationMinutes = d.Slot.DurationMinutes()
			payload["start_at"] = d.Slot.StartAt
		}
		d.ClearReschedule()
		d.UpdatedAt = s.now()

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.Update(ctx, d)
		})
		cs.Emit(s.newEvent(o, event.TypeDemoRescheduleResolved,
			event.Transition{EntityType: entity.EntityDemoReschedule, EntityID: d.ID, From: entity.RescheduleStatusPending, To: entity.RescheduleStatusNone},
			actor, payload))
		result = d
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteDemo marks a scheduled demo as held. It is refused before the slot ends.
func (s *workflowService) CompleteDemo(ctx context.Context, actor entity.Actor, demoID string, opts ...CallOption) (*entity.DemoSession, error) {
	if err := requireRole(actor, entity.RoleParent, entity.RoleTutor, entity.RoleAdmin, entity.RoleSystem); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.DemoSession
	err := s.run(ctx, "CompleteDemo", func(ctx context.Context) (*appwf.Changeset, error) {
		dc, err := s.loadDemo(ctx, actor, demoID, o)
		if err != nil {
			return nil, err
		}
		d := dc.demo
		noop, err := s.check(entity.EntityDemo, d.Status, entity.DemoStatusCompleted, actor.Role)
		if err != nil {
			return nil, err
		}
		if noop {
			result = d
			return nil, nil
		}
		now := s.now()
		if now.Before(d.Slot.EndAt) {
			return nil, fmt.Errorf("%w: ends at %v", ErrDemoNotYetElapsed, d.Slot.EndAt)
		}

		from := d.Status
		d.Status = entity.DemoStatusCompleted
		d.ClearReschedule()
		completedAt := now
		d.CompletedAt = &completedAt
		d.UpdatedAt = now

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.Update(ctx, d)
		})
		cs.Emit(s.newEvent(o, event.TypeDemoCompleted,
			event.Transition{EntityType: entity.EntityDemo, EntityID: d.ID, From: from, To: d.Status},
			actor, map[string]interface{}{
				"requirement_id": d.RequirementID,
				"tutor_id":       d.TutorID,
				"paid":           d.IsPaid(),
			}))
		result = d
		return cs, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelDemo cancels a requested or scheduled demo
func (s *workflowService) CancelDemo(ctx context.Context, actor entity.Actor, demoID, reason string, opts ...CallOption) (*entity.DemoSession, error) {
	if err := requireRole(actor, entity.RoleAdmin, entity.RoleTutor); err != nil {
		return nil, err
	}
	o := collect(opts)

	var result *entity.DemoSession
	err := s.run(ctx, "CancelDemo", func(ctx context.Context) (*appwf.Changeset, error) {
		dc, err := s.loadDemo(ctx, actor, demoID, o)
		if err != nil {
			return nil, err
		}
		d := dc.demo
		noop, err := s.check(entity.EntityDemo, d.Status, entity.DemoStatusCancelled, actor.Role)
		if err != nil {
			return nil, err
		}
		if noop {
			result = d
			return nil, nil
		}

		from := d.Status
		d.Status = entity.DemoStatusCancelled
		d.CancelReason = reason
		d.CancelledBy = actor.Role
		d.ClearReschedule()
		d.UpdatedAt = s.now()

		cs := appwf.NewChangeset()
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.Update(ctx, d)
		})
		cs.Emit(s.newEvent(o, event.TypeDemoCancelled,
			event.Transition{EntityType: entity.EntityDemo, EntityID: d.ID, From: from, To: d.Status},
			actor, map[string]interface{}{
				"requirement_id": d.RequirementID,
				"tutor_id":       d.TutorID,
				"reason":         reason,
			}))
		result = d
		return cs, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Demo cancelled", "demo_id", demoID, "actor_role", actor.Role.String())
	return result, nil
}
