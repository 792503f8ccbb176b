package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

func TestRecordTutorInterest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)

	a := f.apply(t, req.ID, tutorA)
	assert.Equal(t, entity.AssociationStatusApplied, a.Status)
	assert.Contains(t, a.Transitions, entity.AssociationStatusApplied)

	rec, err := f.svc.RecordTutorInterest(ctx, admin, req.ID, tutorB.ID, entity.AssociationStatusRecommended)
	require.NoError(t, err)
	assert.Equal(t, entity.AssociationStatusRecommended, rec.Status)

	t.Run("duplicate pair", func(t *testing.T) {
		_, err := f.svc.RecordTutorInterest(ctx, tutorA, req.ID, "", entity.AssociationStatusApplied)
		assert.ErrorIs(t, err, ErrDuplicateAssociation)
		_, err = f.svc.RecordTutorInterest(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusRecommended)
		assert.ErrorIs(t, err, ErrDuplicateAssociation)
	})

	t.Run("wrong role for kind", func(t *testing.T) {
		_, err := f.svc.RecordTutorInterest(ctx, parent, req.ID, tutorC.ID, entity.AssociationStatusRecommended)
		assert.ErrorIs(t, err, ErrRoleNotPermitted)
		_, err = f.svc.RecordTutorInterest(ctx, tutorC, req.ID, tutorA.ID, entity.AssociationStatusApplied)
		assert.ErrorIs(t, err, ErrRoleNotPermitted)
		_, err = f.svc.RecordTutorInterest(ctx, admin, req.ID, tutorC.ID, entity.AssociationStatusShortlisted)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("closed requirement", func(t *testing.T) {
		_, err := f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{})
		require.NoError(t, err)
		_, err = f.svc.RecordTutorInterest(ctx, tutorC, req.ID, "", entity.AssociationStatusApplied)
		assert.ErrorIs(t, err, ErrRequirementClosed)
	})
}

func TestRecordTutorInterest_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	req := f.post(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RecordTutorInterest(context.Background(), tutorA, req.ID, "", entity.AssociationStatusApplied)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateAssociation)
	}
	assert.Equal(t, 1, succeeded)
}

func TestPromoteAssociation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.apply(t, req.ID, tutorA)
	f.apply(t, req.ID, tutorB)

	t.Run("only admin promotes", func(t *testing.T) {
		_, err := f.svc.PromoteAssociation(ctx, parent, req.ID, tutorA.ID, entity.AssociationStatusShortlisted)
		assert.ErrorIs(t, err, ErrRoleNotPermitted)
		_, err = f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusRejected)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("replay is a no-op", func(t *testing.T) {
		first, err := f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusShortlisted)
		require.NoError(t, err)
		second, err := f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusShortlisted)
		require.NoError(t, err)
		assert.Equal(t, first.Version, second.Version)
		assert.Len(t, f.events(t, first.ID), 2)
	})

	t.Run("assignment matches the requirement once", func(t *testing.T) {
		a, err := f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusAssigned)
		require.NoError(t, err)
		assert.Equal(t, entity.AssociationStatusAssigned, a.Status)

		got, err := f.svc.GetRequirement(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.RequirementStatusMatched, got.Status)

		events := f.events(t, a.ID)
		last := events[len(events)-1]
		assert.Equal(t, entity.RequirementStatusMatched, last.Payload["requirement_status"])

		_, err = f.svc.PromoteAssociation(ctx, admin, req.ID, tutorB.ID, entity.AssociationStatusAssigned)
		assert.ErrorIs(t, err, ErrTutorAlreadyAssigned)

		b, err := f.svc.PromoteAssociation(ctx, admin, req.ID, tutorB.ID, entity.AssociationStatusShortlisted)
		require.NoError(t, err)
		assert.Equal(t, entity.AssociationStatusShortlisted, b.Status, "others are not auto-rejected")
	})

	t.Run("assigned is terminal", func(t *testing.T) {
		_, err := f.svc.RejectAssociation(ctx, admin, req.ID, tutorA.ID, "changed mind")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestPromoteAssociation_ConcurrentAssignments(t *testing.T) {
	f := newFixture(t)
	req := f.post(t)
	tutors := []entity.Actor{tutorA, tutorB, tutorC}
	for _, tu := range tutors {
		f.apply(t, req.ID, tu)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(tutors))
	for i, tu := range tutors {
		wg.Add(1)
		go func(i int, tutorID string) {
			defer wg.Done()
			_, errs[i] = f.svc.PromoteAssociation(context.Background(), admin, req.ID, tutorID, entity.AssociationStatusAssigned)
		}(i, tu.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)

	assocs, err := f.svc.ListAssociations(context.Background(), req.ID)
	require.NoError(t, err)
	assigned := 0
	for _, a := range assocs {
		if a.Status == entity.AssociationStatusAssigned {
			assigned++
		}
	}
	assert.Equal(t, 1, assigned)
}

func TestPromoteAndCancelDemo_DisjointEntitiesBothCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.apply(t, req.ID, tutorA)
	f.apply(t, req.ID, tutorB)
	demo := f.schedule(t, req.ID, tutorB.ID)

	var wg sync.WaitGroup
	var promoteErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, promoteErr = f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusShortlisted)
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.CancelDemo(ctx, admin, demo.ID, "tutor unavailable")
	}()
	wg.Wait()

	require.NoError(t, promoteErr)
	require.NoError(t, cancelErr)
}

func TestRejectAndWithdraw_CancelPairDemo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.apply(t, req.ID, tutorA)
	f.apply(t, req.ID, tutorB)
	demoA := f.schedule(t, req.ID, tutorA.ID)
	demoB := f.schedule(t, req.ID, tutorB.ID)

	a, err := f.svc.RejectAssociation(ctx, admin, req.ID, tutorA.ID, "not a fit")
	require.NoError(t, err)
	assert.Equal(t, entity.AssociationStatusRejected, a.Status)
	assert.Equal(t, "not a fit", a.Note)

	_, err = f.svc.WithdrawAssociation(ctx, tutorA, req.ID, tutorB.ID)
	assert.ErrorIs(t, err, ErrRoleNotPermitted)

	b, err := f.svc.WithdrawAssociation(ctx, tutorB, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.AssociationStatusWithdrawn, b.Status)

	for _, id := range []string{demoA.ID, demoB.ID} {
		d, err := f.svc.GetDemo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.DemoStatusCancelled, d.Status)
	}

	_, err = f.svc.ScheduleDemo(ctx, admin, DemoInput{
		RequirementID: req.ID,
		TutorID:       tutorA.ID,
		Slot:          entity.NewSlot(f.clock.Now().Add(24*time.Hour), 60),
		Mode:          entity.TeachingModeOnline,
	})
	assert.ErrorIs(t, err, ErrAssociationInactive)
}

func TestApplyToRecommendation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)

	_, err := f.svc.RecordTutorInterest(ctx, entity.System(), req.ID, tutorA.ID, entity.AssociationStatusRecommended)
	require.NoError(t, err)

	a, err := f.svc.ApplyToRecommendation(ctx, tutorA, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.AssociationStatusApplied, a.Status)
	assert.Len(t, a.Transitions, 2)

	_, err = f.svc.ApplyToRecommendation(ctx, tutorB, req.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectOtherCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.apply(t, req.ID, tutorA)
	f.apply(t, req.ID, tutorB)
	f.apply(t, req.ID, tutorC)
	demoB := f.schedule(t, req.ID, tutorB.ID)

	_, err := f.svc.RejectOtherCandidates(ctx, admin, req.ID)
	assert.ErrorIs(t, err, ErrAssociationNotAssigned)

	_, err = f.svc.WithdrawAssociation(ctx, tutorC, req.ID, "")
	require.NoError(t, err)
	_, err = f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusAssigned)
	require.NoError(t, err)

	rejected, err := f.svc.RejectOtherCandidates(ctx, admin, req.ID)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, tutorB.ID, rejected[0].TutorID)
	assert.Equal(t, entity.AssociationStatusRejected, rejected[0].Status)

	d, err := f.svc.GetDemo(ctx, demoB.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DemoStatusCancelled, d.Status)

	events := f.events(t, req.ID)
	assert.Equal(t, "association.others_rejected", events[len(events)-1].Type)

	again, err := f.svc.RejectOtherCandidates(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, f.events(t, req.ID), len(events))
}
