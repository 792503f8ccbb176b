package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/tutor-matching/internal/application/port"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	parent      = entity.Actor{Role: entity.RoleParent, ID: "parent-1"}
	otherParent = entity.Actor{Role: entity.RoleParent, ID: "parent-2"}
	admin       = entity.Actor{Role: entity.RoleAdmin, ID: "admin-1"}
	tutorA      = entity.Actor{Role: entity.RoleTutor, ID: "tutor-a"}
	tutorB      = entity.Actor{Role: entity.RoleTutor, ID: "tutor-b"}
	tutorC      = entity.Actor{Role: entity.RoleTutor, ID: "tutor-c"}
)

type fixture struct {
	store *memory.Store
	clock *fakeClock
	hook  *OutboxHook
	svc   WorkflowService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	// 2026-10-14 is a Wednesday
	clock := &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	hook := NewOutboxHook(store.Outbox(), 100, nopLogger{})
	svc := NewWorkflowService(
		Repositories{
			Requirements: store.Requirements(),
			Associations: store.Associations(),
			Demos:        store.Demos(),
			Classes:      store.Classes(),
			Outbox:       store.Outbox(),
		},
		store,
		hook,
		nopLogger{},
		WithClock(clock.Now),
		WithGuardConfig(appwf.GuardConfig{MaxRetries: 5}),
	)
	return &fixture{store: store, clock: clock, hook: hook, svc: svc}
}

func onlineFields() entity.RequirementFields {
	return entity.RequirementFields{
		Subjects:      []string{"MATHS", "PHYSICS"},
		GradeLevel:    "GRADE_10",
		Board:         "CBSE",
		TeachingModes: []string{entity.TeachingModeOnline},
	}
}

func weekdaySchedule() entity.Schedule {
	return entity.Schedule{Days: []string{"MON", "WED"}, StartTime: "17:00", EndTime: "18:00"}
}

func (f *fixture) post(t *testing.T) *entity.Requirement {
	t.Helper()
	req, err := f.svc.PostRequirement(context.Background(), parent, onlineFields())
	require.NoError(t, err)
	return req
}

func (f *fixture) apply(t *testing.T, reqID string, tutor entity.Actor) *entity.TutorAssociation {
	t.Helper()
	a, err := f.svc.RecordTutorInterest(context.Background(), tutor, reqID, "", entity.AssociationStatusApplied)
	require.NoError(t, err)
	return a
}

func (f *fixture) assign(t *testing.T, reqID string, tutor entity.Actor) *entity.TutorAssociation {
	t.Helper()
	f.apply(t, reqID, tutor)
	a, err := f.svc.PromoteAssociation(context.Background(), admin, reqID, tutor.ID, entity.AssociationStatusAssigned)
	require.NoError(t, err)
	return a
}

func (f *fixture) schedule(t *testing.T, reqID, tutorID string) *entity.DemoSession {
	t.Helper()
	d, err := f.svc.ScheduleDemo(context.Background(), admin, DemoInput{
		RequirementID: reqID,
		TutorID:       tutorID,
		Slot:          entity.NewSlot(f.clock.Now().Add(time.Hour), 60),
		Mode:          entity.TeachingModeOnline,
	})
	require.NoError(t, err)
	return d
}

func (f *fixture) events(t *testing.T, entityID string) []*entity.OutboxEvent {
	t.Helper()
	events, err := f.store.Outbox().List(context.Background(), port.EventFilter{EntityID: entityID})
	require.NoError(t, err)
	return events
}

func TestMatchingScenario_DemoThenClassesOnClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.post(t)
	assert.Equal(t, entity.RequirementStatusOpen, req.Status)
	assert.Equal(t, int64(1), req.Version)

	f.apply(t, req.ID, tutorA)

	a, err := f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusShortlisted)
	require.NoError(t, err)
	assert.Equal(t, entity.AssociationStatusShortlisted, a.Status)

	a, err = f.svc.PromoteAssociation(ctx, admin, req.ID, tutorA.ID, entity.AssociationStatusAssigned)
	require.NoError(t, err)
	assert.Equal(t, entity.AssociationStatusAssigned, a.Status)

	got, err := f.svc.GetRequirement(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusMatched, got.Status)

	demo := f.schedule(t, req.ID, tutorA.ID)
	assert.Equal(t, entity.DemoStatusScheduled, demo.Status)

	f.clock.Advance(3 * time.Hour)
	demo, err = f.svc.CompleteDemo(ctx, parent, demo.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DemoStatusCompleted, demo.Status)
	require.NotNil(t, demo.CompletedAt)

	closed, err := f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{
		FoundTutor:   true,
		TutorID:      tutorA.ID,
		StartClasses: true,
		Schedule:     weekdaySchedule(),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusClosed, closed.Status)
	require.NotNil(t, closed.Outcome)
	assert.NotEmpty(t, closed.Outcome.ClassID)
	assert.Equal(t, entity.RoleParent, closed.Outcome.ClosedBy)

	classes, err := f.svc.ListClasses(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, entity.ClassStatusUpcoming, classes[0].Status)
	assert.Equal(t, closed.Outcome.ClassID, classes[0].ID)
	assert.Equal(t, "MATHS", classes[0].Subject)
	require.NotNil(t, classes[0].NextSession)

	types := make([]string, 0)
	for _, e := range f.events(t, req.ID) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"requirement.posted", "requirement.closed"}, types)
}

func TestPostRequirement_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		actor  entity.Actor
		mutate func(*entity.RequirementFields)
		want   error
	}{
		{"tutor cannot post", tutorA, func(*entity.RequirementFields) {}, ErrRoleNotPermitted},
		{"no subjects", parent, func(fl *entity.RequirementFields) { fl.Subjects = nil }, ErrInvalidInput},
		{"unknown mode", parent, func(fl *entity.RequirementFields) { fl.TeachingModes = []string{"HYBRID"} }, ErrInvalidInput},
		{"offline without location", parent, func(fl *entity.RequirementFields) {
			fl.TeachingModes = []string{entity.TeachingModeOnline, entity.TeachingModeOffline}
		}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := onlineFields()
			tt.mutate(&fields)
			_, err := f.svc.PostRequirement(ctx, tt.actor, fields)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	fields := onlineFields()
	fields.TeachingModes = []string{entity.TeachingModeOffline}
	fields.Location = "Koramangala"
	req, err := f.svc.PostRequirement(ctx, parent, fields)
	require.NoError(t, err)
	assert.Equal(t, entity.GenderPreferenceAny, req.GenderPreference)
	assert.Equal(t, parent.ID, req.ParentID)
}

func TestUpdateRequirement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)

	fields := onlineFields()
	fields.Board = "ICSE"
	updated, err := f.svc.UpdateRequirement(ctx, parent, req.ID, fields, IfVersion(1))
	require.NoError(t, err)
	assert.Equal(t, "ICSE", updated.Board)
	assert.Equal(t, int64(2), updated.Version)

	t.Run("same fields is a no-op", func(t *testing.T) {
		again, err := f.svc.UpdateRequirement(ctx, parent, req.ID, fields)
		require.NoError(t, err)
		assert.Equal(t, int64(2), again.Version)
		assert.Len(t, f.events(t, req.ID), 2)
	})

	t.Run("stale expected version", func(t *testing.T) {
		fields.Board = "IB"
		_, err := f.svc.UpdateRequirement(ctx, parent, req.ID, fields, IfVersion(1))
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})

	t.Run("other parent", func(t *testing.T) {
		_, err := f.svc.UpdateRequirement(ctx, otherParent, req.ID, fields)
		assert.ErrorIs(t, err, ErrRoleNotPermitted)
	})

	t.Run("closed", func(t *testing.T) {
		_, err := f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{})
		require.NoError(t, err)
		_, err = f.svc.UpdateRequirement(ctx, parent, req.ID, fields)
		assert.ErrorIs(t, err, ErrRequirementClosed)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := f.svc.UpdateRequirement(ctx, parent, "nope", fields)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteRequirement(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked by assigned tutor", func(t *testing.T) {
		f := newFixture(t)
		req := f.post(t)
		f.assign(t, req.ID, tutorA)

		err := f.svc.DeleteRequirement(ctx, parent, req.ID)
		assert.ErrorIs(t, err, ErrActiveAssignment)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("removes associations and demos", func(t *testing.T) {
		f := newFixture(t)
		req := f.post(t)
		f.apply(t, req.ID, tutorB)
		f.schedule(t, req.ID, tutorB.ID)

		require.NoError(t, f.svc.DeleteRequirement(ctx, parent, req.ID))

		_, err := f.svc.GetRequirement(ctx, req.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assocs, err := f.store.Associations().ListByRequirement(ctx, req.ID)
		require.NoError(t, err)
		assert.Empty(t, assocs)
		demos, err := f.store.Demos().ListByRequirement(ctx, req.ID)
		require.NoError(t, err)
		assert.Empty(t, demos)

		events := f.events(t, req.ID)
		require.NotEmpty(t, events)
		assert.Equal(t, "requirement.deleted", events[len(events)-1].Type)
	})
}

func TestCloseRequirement_CascadeAndIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.apply(t, req.ID, tutorB)
	f.apply(t, req.ID, tutorC)
	demoB := f.schedule(t, req.ID, tutorB.ID)
	demoC := f.schedule(t, req.ID, tutorC.ID)

	closed, err := f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{FoundTutor: true, TutorName: "Someone else"})
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusClosed, closed.Status)
	assert.Equal(t, "Someone else", closed.Outcome.TutorName)
	require.NotNil(t, closed.ClosedAt)

	for _, id := range []string{demoB.ID, demoC.ID} {
		d, err := f.svc.GetDemo(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entity.DemoStatusCancelled, d.Status)
		assert.Equal(t, entity.RoleSystem, d.CancelledBy)
	}

	events := f.events(t, req.ID)
	last := events[len(events)-1]
	assert.Equal(t, "requirement.closed", last.Type)
	assert.Len(t, last.Payload["cancelled_demos"], 2)

	again, err := f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{FoundTutor: true})
	require.NoError(t, err)
	assert.Equal(t, closed.Version, again.Version)
	assert.Len(t, f.events(t, req.ID), len(events))
}

func TestCloseRequirement_FailedCascadeChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.apply(t, req.ID, tutorB)
	demo := f.schedule(t, req.ID, tutorB.ID)

	_, err := f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{
		FoundTutor:   true,
		TutorID:      tutorB.ID,
		StartClasses: true,
		Schedule:     weekdaySchedule(),
	})
	assert.ErrorIs(t, err, ErrAssociationNotAssigned)

	got, err := f.svc.GetRequirement(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusOpen, got.Status)
	assert.Equal(t, req.Version, got.Version)

	d, err := f.svc.GetDemo(ctx, demo.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DemoStatusScheduled, d.Status)

	_, err = f.svc.CloseRequirement(ctx, parent, req.ID, CloseOutcome{StartClasses: true, TutorID: tutorB.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReopenRequirement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.assign(t, req.ID, tutorA)

	class, err := f.svc.CreateClass(ctx, parent, CreateClassInput{
		RequirementID: req.ID,
		TutorID:       tutorA.ID,
		Schedule:      weekdaySchedule(),
	})
	require.NoError(t, err)

	n, err := f.svc.AdvanceClassSchedules(ctx, f.clock.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.ReopenRequirement(ctx, parent, req.ID)
	assert.ErrorIs(t, err, ErrClassOngoing)

	_, err = f.svc.ReopenRequirement(ctx, admin, req.ID)
	assert.ErrorIs(t, err, ErrRoleNotPermitted)

	_, err = f.svc.CancelClass(ctx, tutorA, class.ID, "moving away")
	require.NoError(t, err)

	reopened, err := f.svc.ReopenRequirement(ctx, parent, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusOpen, reopened.Status)
	assert.Nil(t, reopened.Outcome)
	assert.Nil(t, reopened.ClosedAt)

	again, err := f.svc.ReopenRequirement(ctx, parent, req.ID)
	require.NoError(t, err)
	assert.Equal(t, reopened.Version, again.Version)

	assocs, err := f.svc.ListAssociations(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, entity.AssociationStatusAssigned, assocs[0].Status)
}

func TestReopenRequirement_RejectsMatched(t *testing.T) {
	f := newFixture(t)
	req := f.post(t)
	f.assign(t, req.ID, tutorA)

	_, err := f.svc.ReopenRequirement(context.Background(), parent, req.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// interleavedClasses runs between once after the first class listing, standing
// in for a writer that commits while another plan is in flight
type interleavedClasses struct {
	port.ClassRepository
	once    sync.Once
	between func()
}

func (r *interleavedClasses) ListByRequirement(ctx context.Context, requirementID string) ([]*entity.Class, error) {
	classes, err := r.ClassRepository.ListByRequirement(ctx, requirementID)
	r.once.Do(r.between)
	return classes, err
}

func TestReopenRequirement_ClassStartsDuringReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.post(t)
	f.assign(t, req.ID, tutorA)

	start := f.clock.Now().Add(24 * time.Hour)
	class, err := f.svc.CreateClass(ctx, admin, CreateClassInput{
		RequirementID: req.ID,
		TutorID:       tutorA.ID,
		Schedule:      weekdaySchedule(),
		StartDate:     start,
	})
	require.NoError(t, err)

	classes := &interleavedClasses{
		ClassRepository: f.store.Classes(),
		between: func() {
			n, err := f.svc.AdvanceClassSchedules(ctx, start.Add(time.Hour), 10)
			require.NoError(t, err)
			require.Equal(t, 1, n)
		},
	}
	racing := NewWorkflowService(
		Repositories{
			Requirements: f.store.Requirements(),
			Associations: f.store.Associations(),
			Demos:        f.store.Demos(),
			Classes:      classes,
			Outbox:       f.store.Outbox(),
		},
		f.store,
		f.hook,
		nopLogger{},
		WithClock(f.clock.Now),
		WithGuardConfig(appwf.GuardConfig{MaxRetries: 5}),
	)

	_, err = racing.ReopenRequirement(ctx, parent, req.ID)
	require.ErrorIs(t, err, ErrClassOngoing)

	got, err := f.svc.GetRequirement(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusClosed, got.Status)

	c, err := f.svc.GetClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ClassStatusOngoing, c.Status)
}
