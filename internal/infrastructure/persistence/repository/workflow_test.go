package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/application/service"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/pkg/logger"
)

func newSQLiteService(t *testing.T, now func() time.Time) (*repos, service.WorkflowService) {
	t.Helper()
	r := openTestDB(t)
	log := logger.KV(zap.NewNop())
	svc := service.NewWorkflowService(
		service.Repositories{
			Requirements: r.requirements,
			Associations: r.associations,
			Demos:        r.demos,
			Classes:      r.classes,
			Outbox:       r.outbox,
		},
		r.tx,
		service.NewOutboxHook(r.outbox, 10, log),
		log,
		service.WithClock(now),
		service.WithGuardConfig(appwf.GuardConfig{MaxRetries: 10, RetryBackoff: time.Millisecond}),
	)
	return r, svc
}

func TestWorkflowOverSQLite(t *testing.T) {
	now := t0
	r, svc := newSQLiteService(t, func() time.Time { return now })
	ctx := context.Background()

	parent := entity.Actor{Role: entity.RoleParent, ID: "parent-1"}
	admin := entity.Actor{Role: entity.RoleAdmin, ID: "admin-1"}
	tutor := entity.Actor{Role: entity.RoleTutor, ID: "tutor-a"}

	req, err := svc.PostRequirement(ctx, parent, entity.RequirementFields{
		Subjects:      []string{"MATHS"},
		GradeLevel:    "GRADE_8",
		Board:         "ICSE",
		TeachingModes: []string{entity.TeachingModeOnline},
	})
	require.NoError(t, err)

	tick := func() { now = now.Add(time.Minute) }

	tick()
	_, err = svc.RecordTutorInterest(ctx, tutor, req.ID, "", entity.AssociationStatusApplied)
	require.NoError(t, err)
	_, err = svc.RecordTutorInterest(ctx, tutor, req.ID, "", entity.AssociationStatusApplied)
	assert.ErrorIs(t, err, service.ErrDuplicateAssociation)

	tick()
	_, err = svc.PromoteAssociation(ctx, admin, req.ID, tutor.ID, entity.AssociationStatusAssigned)
	require.NoError(t, err)

	tick()
	demo, err := svc.ScheduleDemo(ctx, admin, service.DemoInput{
		RequirementID: req.ID,
		TutorID:       tutor.ID,
		Slot:          entity.NewSlot(now.Add(time.Hour), 60),
	})
	require.NoError(t, err)
	_, err = svc.RequestDemo(ctx, parent, service.DemoInput{
		RequirementID: req.ID,
		TutorID:       tutor.ID,
		Slot:          entity.NewSlot(now.Add(2*time.Hour), 60),
	})
	assert.ErrorIs(t, err, service.ErrConflictingDemo)

	now = now.Add(3 * time.Hour)
	_, err = svc.CompleteDemo(ctx, parent, demo.ID)
	require.NoError(t, err)

	tick()
	closed, err := svc.CloseRequirement(ctx, parent, req.ID, service.CloseOutcome{
		FoundTutor:   true,
		TutorID:      tutor.ID,
		StartClasses: true,
		Schedule:     entity.Schedule{Days: []string{"SAT"}, StartTime: "10:00", EndTime: "11:00"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusClosed, closed.Status)

	stored, err := r.requirements.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, closed.Version, stored.Version)
	require.NotNil(t, stored.Outcome)

	classes, err := svc.ListClasses(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, stored.Outcome.ClassID, classes[0].ID)

	events, err := r.outbox.List(ctx, port.EventFilter{})
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		"requirement.posted",
		"association.recorded",
		"association.status_changed",
		"demo.scheduled",
		"demo.completed",
		"requirement.closed",
	}, types)
}

func TestWorkflowOverSQLite_ConcurrentApplications(t *testing.T) {
	_, svc := newSQLiteService(t, func() time.Time { return t0 })
	ctx := context.Background()

	req, err := svc.PostRequirement(ctx, entity.Actor{Role: entity.RoleParent, ID: "parent-1"}, entity.RequirementFields{
		Subjects:      []string{"MATHS"},
		GradeLevel:    "GRADE_8",
		Board:         "ICSE",
		TeachingModes: []string{entity.TeachingModeOnline},
	})
	require.NoError(t, err)

	tutors := []string{"tutor-a", "tutor-b", "tutor-c", "tutor-d"}
	var wg sync.WaitGroup
	errs := make([]error, len(tutors))
	for i, id := range tutors {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.RecordTutorInterest(ctx, entity.Actor{Role: entity.RoleTutor, ID: id}, req.ID, "", entity.AssociationStatusApplied)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	list, err := svc.ListAssociations(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, list, len(tutors))
}
