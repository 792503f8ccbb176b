package workflow

import "github.com/garyjia/tutor-matching/internal/domain/entity"

const (
	parent = entity.RoleParent
	tutor  = entity.RoleTutor
	admin  = entity.RoleAdmin
	system = entity.RoleSystem
)

// RequirementGraph: Open -> Matched -> Closed, Open -> Closed, and the single
// regression Closed -> Open which only the parent may trigger.
func RequirementGraph() *Graph {
	open := State(entity.RequirementStatusOpen)
	matched := State(entity.RequirementStatusMatched)
	closed := State(entity.RequirementStatusClosed)

	b := NewBuilder(entity.EntityRequirement, open, matched, closed)

	b.Configure(open).
		Permit(matched, admin, system).
		Permit(closed, parent, admin, system)

	b.Configure(matched).
		Permit(closed, parent, admin, system)

	b.Configure(closed).
		Permit(open, parent)

	return b.Build()
}

// AssociationGraph: tutors apply and withdraw, admins shortlist, assign and reject.
// Assigned, Rejected and Withdrawn are terminal.
func AssociationGraph() *Graph {
	recommended := State(entity.AssociationStatusRecommended)
	applied := State(entity.AssociationStatusApplied)
	shortlisted := State(entity.AssociationStatusShortlisted)
	assigned := State(entity.AssociationStatusAssigned)
	rejected := State(entity.AssociationStatusRejected)
	withdrawn := State(entity.AssociationStatusWithdrawn)

	b := NewBuilder(entity.EntityAssociation, recommended, applied, shortlisted, assigned, rejected, withdrawn)
	b.Terminal(assigned, rejected, withdrawn)

	b.Configure(recommended).
		Permit(applied, tutor).
		Permit(shortlisted, admin).
		Permit(rejected, admin).
		Permit(withdrawn, tutor)

	b.Configure(applied).
		Permit(shortlisted, admin).
		Permit(assigned, admin).
		Permit(rejected, admin).
		Permit(withdrawn, tutor)

	b.Configure(shortlisted).
		Permit(assigned, admin).
		Permit(rejected, admin).
		Permit(withdrawn, tutor)

	return b.Build()
}

// DemoGraph: Requested -> Scheduled -> Completed, with cancellation from either
// active state. System is allowed where cascades cancel or complete demos.
func DemoGraph() *Graph {
	requested := State(entity.DemoStatusRequested)
	scheduled := State(entity.DemoStatusScheduled)
	completed := State(entity.DemoStatusCompleted)
	cancelled := State(entity.DemoStatusCancelled)

	b := NewBuilder(entity.EntityDemo, requested, scheduled, completed, cancelled)
	b.Terminal(completed, cancelled)

	b.Configure(requested).
		Permit(scheduled, admin, tutor).
		Permit(cancelled, admin, tutor, system)

	b.Configure(scheduled).
		Permit(completed, admin, tutor, parent, system).
		Permit(cancelled, admin, tutor, system)

	return b.Build()
}

// RescheduleGraph tracks the reschedule side-state of a demo. Same-status
// requests are never no-ops: a second proposal while one is pending fails.
func RescheduleGraph() *Graph {
	none := State(entity.RescheduleStatusNone)
	pending := State(entity.RescheduleStatusPending)

	b := NewBuilder(entity.EntityDemoReschedule, none, pending)
	b.RequireChange()

	b.Configure(none).
		Permit(pending, parent, tutor, admin)

	b.Configure(pending).
		Permit(none, parent, tutor, admin)

	return b.Build()
}

// ClassGraph: date-driven Upcoming -> Ongoing -> Past, cancellable by either party.
func ClassGraph() *Graph {
	upcoming := State(entity.ClassStatusUpcoming)
	ongoing := State(entity.ClassStatusOngoing)
	past := State(entity.ClassStatusPast)
	cancelled := State(entity.ClassStatusCancelled)

	b := NewBuilder(entity.EntityClass, upcoming, ongoing, past, cancelled)
	b.Terminal(past, cancelled)

	b.Configure(upcoming).
		Permit(ongoing, system, admin).
		Permit(past, system).
		Permit(cancelled, parent, tutor, admin)

	b.Configure(ongoing).
		Permit(past, system, admin).
		Permit(cancelled, parent, tutor, admin)

	return b.Build()
}

// DefaultValidator returns a validator over every workflow graph
func DefaultValidator() *Validator {
	return NewValidator(
		RequirementGraph(),
		AssociationGraph(),
		DemoGraph(),
		RescheduleGraph(),
		ClassGraph(),
	)
}
