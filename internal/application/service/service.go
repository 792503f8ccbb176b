package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/tutor-matching/internal/application/port"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
	"github.com/garyjia/tutor-matching/internal/domain/event"
	domainwf "github.com/garyjia/tutor-matching/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Publisher receives the events of committed operations
type Publisher interface {
	Publish(ctx context.Context, events []*event.Event)
}

// Repositories bundles the entity store ports the service writes through
type Repositories struct {
	Requirements port.RequirementRepository
	Associations port.AssociationRepository
	Demos        port.DemoRepository
	Classes      port.ClassRepository
	Outbox       port.OutboxRepository
}

// WorkflowService exposes one operation per business transition of the
// Requirement, TutorAssociation, DemoSession and Class lifecycles.
// Every mutation takes the acting role explicitly.
type WorkflowService interface {
	PostRequirement(ctx context.Context, actor entity.Actor, fields entity.RequirementFields, opts ...CallOption) (*entity.Requirement, error)
	UpdateRequirement(ctx context.Context, actor entity.Actor, id string, fields entity.RequirementFields, opts ...CallOption) (*entity.Requirement, error)
	DeleteRequirement(ctx context.Context, actor entity.Actor, id string, opts ...CallOption) error
	CloseRequirement(ctx context.Context, actor entity.Actor, id string, outcome CloseOutcome, opts ...CallOption) (*entity.Requirement, error)
	ReopenRequirement(ctx context.Context, actor entity.Actor, id string, opts ...CallOption) (*entity.Requirement, error)

	RecordTutorInterest(ctx context.Context, actor entity.Actor, requirementID, tutorID, kind string, opts ...CallOption) (*entity.TutorAssociation, error)
	ApplyToRecommendation(ctx context.Context, actor entity.Actor, requirementID, tutorID string, opts ...CallOption) (*entity.TutorAssociation, error)
	PromoteAssociation(ctx context.Context, actor entity.Actor, requirementID, tutorID, target string, opts ...CallOption) (*entity.TutorAssociation, error)
	RejectAssociation(ctx context.Context, actor entity.Actor, requirementID, tutorID, reason string, opts ...CallOption) (*entity.TutorAssociation, error)
	WithdrawAssociation(ctx context.Context, actor entity.Actor, requirementID, tutorID string, opts ...CallOption) (*entity.TutorAssociation, error)
	RejectOtherCandidates(ctx context.Context, actor entity.Actor, requirementID string, opts ...CallOption) ([]*entity.TutorAssociation, error)

	ScheduleDemo(ctx context.Context, actor entity.Actor, in DemoInput, opts ...CallOption) (*entity.DemoSession, error)
	RequestDemo(ctx context.Context, actor entity.Actor, in DemoInput, opts ...CallOption) (*entity.DemoSession, error)
	ConfirmDemo(ctx context.Context, actor entity.Actor, demoID string, opts ...CallOption) (*entity.DemoSession, error)
	RequestReschedule(ctx context.Context, actor entity.Actor, demoID string, proposed entity.Slot, reason string, opts ...CallOption) (*entity.DemoSession, error)
	ResolveReschedule(ctx context.Context, actor entity.Actor, demoID string, accept bool, opts ...CallOption) (*entity.DemoSession, error)
	CompleteDemo(ctx context.Context, actor entity.Actor, demoID string, opts ...CallOption) (*entity.DemoSession, error)
	CancelDemo(ctx context.Context, actor entity.Actor, demoID, reason string, opts ...CallOption) (*entity.DemoSession, error)

	CreateClass(ctx context.Context, actor entity.Actor, in CreateClassInput, opts ...CallOption) (*entity.Class, error)
	CancelClass(ctx context.Context, actor entity.Actor, classID, reason string, opts ...CallOption) (*entity.Class, error)
	AdvanceClassSchedules(ctx context.Context, now time.Time, limit int) (int, error)

	GetRequirement(ctx context.Context, id string) (*entity.Requirement, error)
	ListRequirements(ctx context.Context, filter port.RequirementFilter) ([]*entity.Requirement, error)
	ListAssociations(ctx context.Context, requirementID string) ([]*entity.TutorAssociation, error)
	ListTutorAssociations(ctx context.Context, tutorID string) ([]*entity.TutorAssociation, error)
	GetDemo(ctx context.Context, id string) (*entity.DemoSession, error)
	ListDemos(ctx context.Context, requirementID string) ([]*entity.DemoSession, error)
	GetClass(ctx context.Context, id string) (*entity.Class, error)
	ListClasses(ctx context.Context, requirementID string) ([]*entity.Class, error)
	ListEvents(ctx context.Context, filter port.EventFilter) ([]*event.Event, error)
}

// Option configures the service
type Option func(*workflowService)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *workflowService) {
		s.now = now
	}
}

// WithValidator overrides the transition graphs
func WithValidator(v *domainwf.Validator) Option {
	return func(s *workflowService) {
		s.validator = v
	}
}

// WithGuardConfig overrides the concurrency retry budget
func WithGuardConfig(cfg appwf.GuardConfig) Option {
	return func(s *workflowService) {
		s.guardConfig = cfg
	}
}

// CallOption tunes a single mutation
type CallOption func(*callOptions)

type callOptions struct {
	ifVersion     *int64
	correlationID string
}

// IfVersion makes the call fail with ErrConcurrentModification unless the
// primary entity is still at version v
func IfVersion(v int64) CallOption {
	return func(o *callOptions) {
		o.ifVersion = &v
	}
}

// WithCorrelationID tags the emitted event with a caller-supplied correlation id
func WithCorrelationID(id string) CallOption {
	return func(o *callOptions) {
		o.correlationID = id
	}
}

func collect(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// expect checks the caller's expected version. Stale expectations are not retried.
func (o callOptions) expect(et entity.EntityType, id string, current int64) error {
	if o.ifVersion != nil && *o.ifVersion != current {
		return fmt.Errorf("%w: %s %s is at version %d, expected %d",
			ErrConcurrentModification, et, id, current, *o.ifVersion)
	}
	return nil
}

type workflowService struct {
	repos       Repositories
	tx          port.TransactionManager
	validator   *domainwf.Validator
	guardConfig appwf.GuardConfig
	guard       *appwf.Guard
	publisher   Publisher
	validate    *validator.Validate
	logger      Logger
	now         func() time.Time
}

// NewWorkflowService creates the workflow service
func NewWorkflowService(
	repos Repositories,
	tx port.TransactionManager,
	publisher Publisher,
	logger Logger,
	opts ...Option,
) WorkflowService {
	s := &workflowService{
		repos:       repos,
		tx:          tx,
		validator:   domainwf.DefaultValidator(),
		guardConfig: appwf.DefaultGuardConfig(),
		publisher:   publisher,
		validate:    validator.New(),
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.guard = appwf.NewGuard(tx, s.guardConfig, logger)
	return s
}

// run commits a plan through the guard and hands its events to the publisher
func (s *workflowService) run(ctx context.Context, op string, plan appwf.Plan) error {
	events, err := s.guard.Run(ctx, op, plan)
	if err != nil {
		return err
	}
	if len(events) > 0 && s.publisher != nil {
		s.publisher.Publish(ctx, events)
	}
	return nil
}

func (s *workflowService) newEvent(o callOptions, t event.Type, tr event.Transition, actor entity.Actor, payload map[string]interface{}) *event.Event {
	var evt *event.Event
	if o.correlationID != "" {
		evt = event.NewEventWithCorrelation(t, tr, actor, payload, o.correlationID)
	} else {
		evt = event.NewEvent(t, tr, actor, payload)
	}
	evt.Timestamp = s.now()
	return evt
}

// check validates an edge against the transition graphs
func (s *workflowService) check(et entity.EntityType, from, to string, role entity.Role) (bool, error) {
	return s.validator.Check(et, from, to, role)
}

// requireRole rejects actors whose role is not in the allowed set
func requireRole(actor entity.Actor, allowed ...entity.Role) error {
	if !actor.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", ErrRoleNotPermitted, actor.Role)
	}
	if actor.Role != entity.RoleSystem && actor.ID == "" {
		return invalidInput("actor id is required")
	}
	for _, r := range allowed {
		if actor.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRoleNotPermitted, actor.Role)
}

// authorize ties parents to their own requirements and tutors to their own pairings
func authorize(actor entity.Actor, req *entity.Requirement, tutorID string) error {
	switch actor.Role {
	case entity.RoleParent:
		if req.ParentID != actor.ID {
			return fmt.Errorf("%w: requirement %s belongs to another parent", ErrRoleNotPermitted, req.ID)
		}
	case entity.RoleTutor:
		if tutorID != actor.ID {
			return fmt.Errorf("%w: tutor %s cannot act for tutor %s", ErrRoleNotPermitted, actor.ID, tutorID)
		}
	}
	return nil
}

// loadRequirement reads a requirement, naming it in the not-found error
func (s *workflowService) loadRequirement(ctx context.Context, id string) (*entity.Requirement, error) {
	req, err := s.repos.Requirements.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("requirement %s: %w", id, err)
	}
	return req, nil
}

// holdRequirement stages a commit-time check that the requirement has not
// moved since it was read. Plans that depend on requirement state without
// writing it use this to join the compare-and-swap.
func (s *workflowService) holdRequirement(cs *appwf.Changeset, req *entity.Requirement) {
	id, version := req.ID, req.Version
	cs.Stage(func(ctx context.Context) error {
		cur, err := s.repos.Requirements.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if cur.Version != version {
			return fmt.Errorf("%w: requirement %s", port.ErrVersionConflict, id)
		}
		return nil
	})
}

// holdAssociation is holdRequirement for an association
func (s *workflowService) holdAssociation(cs *appwf.Changeset, a *entity.TutorAssociation) {
	id, version := a.ID, a.Version
	cs.Stage(func(ctx context.Context) error {
		cur, err := s.repos.Associations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if cur.Version != version {
			return fmt.Errorf("%w: association %s", port.ErrVersionConflict, id)
		}
		return nil
	})
}

// holdClass is holdRequirement for a class
func (s *workflowService) holdClass(cs *appwf.Changeset, c *entity.Class) {
	id, version := c.ID, c.Version
	cs.Stage(func(ctx context.Context) error {
		cur, err := s.repos.Classes.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if cur.Version != version {
			return fmt.Errorf("%w: class %s", port.ErrVersionConflict, id)
		}
		return nil
	})
}

// cancelActiveDemos stages the system cancellation of every active demo in
// the list and returns their ids
func (s *workflowService) cancelActiveDemos(cs *appwf.Changeset, demos []*entity.DemoSession, reason string, now time.Time) ([]string, error) {
	cancelled := make([]string, 0)
	for _, d := range demos {
		if !d.IsActive() {
			continue
		}
		if _, err := s.check(entity.EntityDemo, d.Status, entity.DemoStatusCancelled, entity.RoleSystem); err != nil {
			return nil, err
		}
		d.Status = entity.DemoStatusCancelled
		d.CancelReason = reason
		d.CancelledBy = entity.RoleSystem
		d.ClearReschedule()
		d.UpdatedAt = now
		demo := d
		cs.Stage(func(ctx context.Context) error {
			return s.repos.Demos.Update(ctx, demo)
		})
		cancelled = append(cancelled, d.ID)
	}
	return cancelled, nil
}
