package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/tutor-matching/pkg/database"
)

var t0 = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type repos struct {
	tx           *sqlite.DB
	requirements port.RequirementRepository
	associations port.AssociationRepository
	demos        port.DemoRepository
	classes      port.ClassRepository
	outbox       port.OutboxRepository
}

func openTestDB(t *testing.T) *repos {
	t.Helper()
	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "tutor.db"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator, err := database.NewMigrator(db, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up(context.Background()))

	return &repos{
		tx:           sqlite.NewDB(db.DB, logger),
		requirements: NewRequirementRepository(db.DB, logger),
		associations: NewAssociationRepository(db.DB, logger),
		demos:        NewDemoRepository(db.DB, logger),
		classes:      NewClassRepository(db.DB, logger),
		outbox:       NewOutboxRepository(db.DB, logger),
	}
}

func newRequirement(id string) *entity.Requirement {
	return &entity.Requirement{
		ID:               id,
		ParentID:         "parent-1",
		Subjects:         []string{"MATHS"},
		GradeLevel:       "GRADE_10",
		Board:            "CBSE",
		TeachingModes:    []string{entity.TeachingModeOnline},
		GenderPreference: entity.GenderPreferenceAny,
		Status:           entity.RequirementStatusOpen,
		PostedAt:         t0,
		UpdatedAt:        t0,
	}
}

func newAssociation(id, reqID, tutorID, status string) *entity.TutorAssociation {
	return &entity.TutorAssociation{
		ID:            id,
		RequirementID: reqID,
		TutorID:       tutorID,
		Status:        status,
		Transitions:   map[string]time.Time{status: t0},
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
}

func newDemo(id, reqID, tutorID string) *entity.DemoSession {
	return &entity.DemoSession{
		ID:               id,
		RequirementID:    reqID,
		TutorID:          tutorID,
		Subjects:         []string{"MATHS"},
		Slot:             entity.NewSlot(t0.Add(time.Hour), 45),
		DurationMinutes:  45,
		Mode:             entity.TeachingModeOnline,
		Status:           entity.DemoStatusScheduled,
		RescheduleStatus: entity.RescheduleStatusNone,
		RequestedBy:      entity.RoleAdmin,
		CreatedAt:        t0,
		UpdatedAt:        t0,
	}
}

func TestRequirementRepository_RoundTripAndSwap(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()

	req := newRequirement("req-1")
	req.PreferredDays = []string{"MON", "SAT"}
	require.NoError(t, r.requirements.Create(ctx, req))
	assert.Equal(t, int64(1), req.Version)

	got, err := r.requirements.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"MATHS"}, got.Subjects)
	assert.Equal(t, []string{"MON", "SAT"}, got.PreferredDays)
	assert.True(t, got.PostedAt.Equal(t0))
	assert.Nil(t, got.Outcome)

	closedAt := t0.Add(time.Hour)
	got.Status = entity.RequirementStatusClosed
	got.ClosedAt = &closedAt
	got.Outcome = &entity.ClosureOutcome{FoundTutor: false, ClosedBy: entity.RoleParent}
	require.NoError(t, r.requirements.Update(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	stale := *got
	stale.Version = 1
	assert.ErrorIs(t, r.requirements.Update(ctx, &stale), port.ErrVersionConflict)

	reread, err := r.requirements.GetByID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.RequirementStatusClosed, reread.Status)
	require.NotNil(t, reread.Outcome)
	assert.Equal(t, entity.RoleParent, reread.Outcome.ClosedBy)
	require.NotNil(t, reread.ClosedAt)
	assert.True(t, reread.ClosedAt.Equal(closedAt))

	assert.ErrorIs(t, r.requirements.Delete(ctx, "req-1", 1), port.ErrVersionConflict)
	require.NoError(t, r.requirements.Delete(ctx, "req-1", 2))
	_, err = r.requirements.GetByID(ctx, "req-1")
	assert.ErrorIs(t, err, port.ErrNotFound)

	missing := newRequirement("req-x")
	missing.Version = 1
	assert.ErrorIs(t, r.requirements.Update(ctx, missing), port.ErrNotFound)
}

func TestRequirementRepository_List(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"req-1", "req-2", "req-3"} {
		req := newRequirement(id)
		req.PostedAt = t0.Add(time.Duration(i) * time.Minute)
		if id == "req-3" {
			req.ParentID = "parent-2"
		}
		require.NoError(t, r.requirements.Create(ctx, req))
	}

	all, err := r.requirements.List(ctx, port.RequirementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "req-3", all[0].ID)

	mine, err := r.requirements.List(ctx, port.RequirementFilter{ParentID: "parent-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	page, err := r.requirements.List(ctx, port.RequirementFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "req-2", page[0].ID)
}

func TestAssociationRepository_Constraints(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, r.requirements.Create(ctx, newRequirement("req-1")))

	require.NoError(t, r.associations.Create(ctx, newAssociation("a-1", "req-1", "tutor-a", entity.AssociationStatusAssigned)))
	err := r.associations.Create(ctx, newAssociation("a-dup", "req-1", "tutor-a", entity.AssociationStatusApplied))
	assert.ErrorIs(t, err, port.ErrUniqueViolation)

	second := newAssociation("a-2", "req-1", "tutor-b", entity.AssociationStatusShortlisted)
	require.NoError(t, r.associations.Create(ctx, second))
	second.Status = entity.AssociationStatusAssigned
	assert.ErrorIs(t, r.associations.Update(ctx, second), port.ErrUniqueViolation)

	got, err := r.associations.GetByPair(ctx, "req-1", "tutor-a")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)
	assert.True(t, got.Transitions[entity.AssociationStatusAssigned].Equal(t0))

	list, err := r.associations.ListByTutor(ctx, "tutor-b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, entity.AssociationStatusShortlisted, list[0].Status)

	require.NoError(t, r.associations.DeleteByRequirement(ctx, "req-1"))
	list, err = r.associations.ListByRequirement(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDemoRepository_OneActivePerPair(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, r.requirements.Create(ctx, newRequirement("req-1")))

	fee := int64(5000)
	d := newDemo("d-1", "req-1", "tutor-a")
	d.FeeCents = &fee
	require.NoError(t, r.demos.Create(ctx, d))
	assert.ErrorIs(t, r.demos.Create(ctx, newDemo("d-2", "req-1", "tutor-a")), port.ErrUniqueViolation)

	active, err := r.demos.FindActive(ctx, "req-1", "tutor-a")
	require.NoError(t, err)
	assert.Equal(t, "d-1", active.ID)
	require.NotNil(t, active.FeeCents)
	assert.Equal(t, fee, *active.FeeCents)
	assert.True(t, active.Slot.EndAt.Equal(t0.Add(105*time.Minute)))

	proposed := entity.NewSlot(t0.Add(24*time.Hour), 45)
	active.RescheduleStatus = entity.RescheduleStatusPending
	active.ProposedSlot = &proposed
	active.RescheduleRequestedBy = entity.RoleParent
	require.NoError(t, r.demos.Update(ctx, active))

	reread, err := r.demos.GetByID(ctx, "d-1")
	require.NoError(t, err)
	require.NotNil(t, reread.ProposedSlot)
	assert.True(t, reread.ProposedSlot.StartAt.Equal(proposed.StartAt))
	assert.Equal(t, entity.RoleParent, reread.RescheduleRequestedBy)

	reread.Status = entity.DemoStatusCancelled
	require.NoError(t, r.demos.Update(ctx, reread))
	_, err = r.demos.FindActive(ctx, "req-1", "tutor-a")
	assert.ErrorIs(t, err, port.ErrNotFound)
	require.NoError(t, r.demos.Create(ctx, newDemo("d-2", "req-1", "tutor-a")))
}

func TestClassRepository_ListByStatus(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, r.requirements.Create(ctx, newRequirement("req-1")))
	require.NoError(t, r.requirements.Create(ctx, newRequirement("req-2")))

	next := t0.Add(48 * time.Hour)
	for i, c := range []*entity.Class{
		{ID: "c-1", RequirementID: "req-1", TutorID: "tutor-a", Status: entity.ClassStatusOngoing, StartDate: t0},
		{ID: "c-2", RequirementID: "req-2", TutorID: "tutor-b", Status: entity.ClassStatusUpcoming, StartDate: t0.Add(24 * time.Hour), NextSession: &next},
	} {
		c.Subject = "MATHS"
		c.Mode = entity.TeachingModeOnline
		c.Schedule = entity.Schedule{Days: []string{"MON"}, StartTime: "17:00", EndTime: "18:00"}
		c.CreatedAt = t0.Add(time.Duration(i) * time.Second)
		c.UpdatedAt = c.CreatedAt
		require.NoError(t, r.classes.Create(ctx, c))
	}

	live, err := r.classes.ListByStatus(ctx, []string{entity.ClassStatusUpcoming, entity.ClassStatusOngoing}, 10)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "c-1", live[0].ID)
	require.NotNil(t, live[1].NextSession)
	assert.True(t, live[1].NextSession.Equal(next))

	dup := &entity.Class{ID: "c-3", RequirementID: "req-1", TutorID: "tutor-a", Subject: "MATHS", Mode: entity.TeachingModeOnline,
		Status: entity.ClassStatusUpcoming, StartDate: t0, CreatedAt: t0, UpdatedAt: t0}
	assert.ErrorIs(t, r.classes.Create(ctx, dup), port.ErrUniqueViolation)

	none, err := r.classes.ListByStatus(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOutboxRepository_Delivery(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()

	e := &entity.OutboxEvent{
		ID: "e-1", Type: "requirement.posted", EntityType: entity.EntityRequirement, EntityID: "req-1",
		ToStatus: entity.RequirementStatusOpen, ActorRole: entity.RoleParent, ActorID: "parent-1",
		Payload: map[string]interface{}{"parent_id": "parent-1"}, CorrelationID: "corr-1", OccurredAt: t0,
	}
	require.NoError(t, r.outbox.Append(ctx, e))
	require.NoError(t, r.outbox.Append(ctx, e))

	listed, err := r.outbox.List(ctx, port.EventFilter{EntityID: "req-1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "parent-1", listed[0].Payload["parent_id"])
	assert.Equal(t, entity.DeliveryStatusPending, listed[0].DeliveryStatus)

	pending, err := r.outbox.ListPending(ctx, t0, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, r.outbox.MarkFailed(ctx, "e-1", "chat down", t0.Add(time.Minute), false))
	pending, err = r.outbox.ListPending(ctx, t0.Add(30*time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	pending, err = r.outbox.ListPending(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	require.NoError(t, r.outbox.MarkDelivered(ctx, "e-1", t0.Add(time.Minute)))
	got, err := r.outbox.GetByID(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryStatusDelivered, got.DeliveryStatus)
	assert.Equal(t, 2, got.Attempts)
	assert.Empty(t, got.LastError)
	require.NotNil(t, got.DeliveredAt)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	r := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.requirements.Create(ctx, newRequirement("req-1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = r.requirements.GetByID(ctx, "req-1")
	assert.ErrorIs(t, err, port.ErrNotFound)

	err = r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return r.requirements.Create(ctx, newRequirement("req-1"))
	})
	require.NoError(t, err)
	_, err = r.requirements.GetByID(ctx, "req-1")
	require.NoError(t, err)
}
