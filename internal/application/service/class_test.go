package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

func TestCreateClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.apply(t, req.ID, tutorB)
	demoB := f.schedule(t, req.ID, tutorB.ID)
	f.assign(t, req.ID, tutorA)

	in := CreateClassInput{
		RequirementID: req.ID,
		TutorID:       tutorA.ID,
		Subject:       "PHYSICS",
		Schedule:      weekdaySchedule(),
	}

	t.Run("requires the assigned tutor", func(t *testing.T) {
		_, err := f.svc.CreateClass(ctx, parent, CreateClassInput{RequirementID: req.ID, TutorID: tutorB.ID, Schedule: weekdaySchedule()})
		assert.ErrorIs(t, err, ErrAssociationNotAssigned)
		_, err = f.svc.CreateClass(ctx, parent, CreateClassInput{RequirementID: req.ID, TutorID: tutorC.ID, Schedule: weekdaySchedule()})
		assert.ErrorIs(t, err, ErrAssociationNotAssigned)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		bad := in
		bad.Subject = "HISTORY"
		_, err := f.svc.CreateClass(ctx, parent, bad)
		assert.ErrorIs(t, err, ErrInvalidInput)

		bad = in
		bad.Schedule = entity.Schedule{}
		_, err = f.svc.CreateClass(ctx, parent, bad)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.svc.CreateClass(ctx, tutorA, in)
		assert.ErrorIs(t, err, ErrRoleNotPermitted)
	})

	class, err := f.svc.CreateClass(ctx, parent, in)
	require.NoError(t, err)
	assert.Equal(t, entity.ClassStatusUpcoming, class.Status)
	assert.Equal(t, "PHYSICS", class.Subject)
	assert.Equal(t, entity.TeachingModeOnline, class.Mode)
	require.NotNil(t, class.NextSession)
	// Wednesday 09:00, so the next session is the same day at 17:00
	assert.Equal(t, time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC), *class.NextSession)

	got, err := f.svc.GetRequirement(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusClosed, got.Status)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, class.ID, got.Outcome.ClassID)

	d, err := f.svc.GetDemo(ctx, demoB.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DemoStatusCancelled, d.Status)

	t.Run("replay returns the same class", func(t *testing.T) {
		before := len(f.events(t, class.ID))
		again, err := f.svc.CreateClass(ctx, parent, in)
		require.NoError(t, err)
		assert.Equal(t, class.ID, again.ID)
		assert.Len(t, f.events(t, class.ID), before)

		classes, err := f.svc.ListClasses(ctx, req.ID)
		require.NoError(t, err)
		assert.Len(t, classes, 1)
	})
}

func TestCreateClass_AfterReopenClosesWithoutDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.assign(t, req.ID, tutorA)

	in := CreateClassInput{
		RequirementID: req.ID,
		TutorID:       tutorA.ID,
		Schedule:      weekdaySchedule(),
		StartDate:     f.clock.Now().Add(7 * 24 * time.Hour),
	}
	class, err := f.svc.CreateClass(ctx, parent, in)
	require.NoError(t, err)

	_, err = f.svc.ReopenRequirement(ctx, parent, req.ID)
	require.NoError(t, err)

	again, err := f.svc.CreateClass(ctx, parent, in)
	require.NoError(t, err)
	assert.Equal(t, class.ID, again.ID)

	got, err := f.svc.GetRequirement(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusClosed, got.Status)

	classes, err := f.svc.ListClasses(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, classes, 1)
}

func TestCreateClass_ClosedWithoutClass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.assign(t, req.ID, tutorA)

	_, err := f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{FoundTutor: true, TutorID: tutorA.ID})
	require.NoError(t, err)

	_, err = f.svc.CreateClass(ctx, parent, CreateClassInput{RequirementID: req.ID, TutorID: tutorA.ID, Schedule: weekdaySchedule()})
	assert.ErrorIs(t, err, ErrRequirementClosed)
}

func TestAdvanceClassSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.assign(t, req.ID, tutorA)

	start := f.clock.Now().Add(24 * time.Hour)
	end := start.Add(14 * 24 * time.Hour)
	class, err := f.svc.CreateClass(ctx, admin, CreateClassInput{
		RequirementID: req.ID,
		TutorID:       tutorA.ID,
		Schedule:      weekdaySchedule(),
		StartDate:     start,
		EndDate:       &end,
	})
	require.NoError(t, err)

	n, err := f.svc.AdvanceClassSchedules(ctx, f.clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.AdvanceClassSchedules(ctx, start.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.svc.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ClassStatusOngoing, got.Status)
	require.NotNil(t, got.NextSession)
	assert.True(t, got.NextSession.After(start.Add(time.Hour)))

	n, err = f.svc.AdvanceClassSchedules(ctx, end.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = f.svc.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ClassStatusPast, got.Status)
	assert.Nil(t, got.NextSession)

	n, err = f.svc.AdvanceClassSchedules(ctx, end.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events := f.events(t, class.ID)
	require.Len(t, events, 3)
	assert.Equal(t, entity.RoleSystem, events[2].ActorRole)
	assert.Equal(t, entity.ClassStatusPast, events[2].ToStatus)

	_, err = f.svc.CancelClass(ctx, parent, class.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdvanceClassSchedules_NoSessionAfterEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.assign(t, req.ID, tutorA)

	// Wednesday 09:00 to 12:00; the next Monday or Wednesday slot is 17:00
	start := f.clock.Now()
	end := start.Add(3 * time.Hour)
	class, err := f.svc.CreateClass(ctx, admin, CreateClassInput{
		RequirementID: req.ID,
		TutorID:       tutorA.ID,
		Schedule:      weekdaySchedule(),
		StartDate:     start,
		EndDate:       &end,
	})
	require.NoError(t, err)
	assert.Nil(t, class.NextSession)

	n, err := f.svc.AdvanceClassSchedules(ctx, start.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ClassStatusOngoing, got.Status)
	assert.Nil(t, got.NextSession)
}
