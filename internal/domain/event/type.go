package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequirementPosted   Type = "requirement.posted"
	TypeRequirementUpdated  Type = "requirement.updated"
	TypeRequirementClosed   Type = "requirement.closed"
	TypeRequirementReopened Type = "requirement.reopened"
	TypeRequirementDeleted  Type = "requirement.deleted"

	TypeAssociationRecorded      Type = "association.recorded"
	TypeAssociationStatusChanged Type = "association.status_changed"
	TypeAssociationsRejected     Type = "association.others_rejected"

	TypeDemoRequested           Type = "demo.requested"
	TypeDemoScheduled           Type = "demo.scheduled"
	TypeDemoRescheduleRequested Type = "demo.reschedule_requested"
	TypeDemoRescheduleResolved  Type = "demo.reschedule_resolved"
	TypeDemoCompleted           Type = "demo.completed"
	TypeDemoCancelled           Type = "demo.cancelled"

	TypeClassCreated       Type = "class.created"
	TypeClassStatusChanged Type = "class.status_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequirementPosted,
		TypeRequirementUpdated,
		TypeRequirementClosed,
		TypeRequirementReopened,
		TypeRequirementDeleted,
		TypeAssociationRecorded,
		TypeAssociationStatusChanged,
		TypeAssociationsRejected,
		TypeDemoRequested,
		TypeDemoScheduled,
		TypeDemoRescheduleRequested,
		TypeDemoRescheduleResolved,
		TypeDemoCompleted,
		TypeDemoCancelled,
		TypeClassCreated,
		TypeClassStatusChanged:
		return true
	default:
		return false
	}
}
