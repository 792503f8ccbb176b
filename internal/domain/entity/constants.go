package entity

// Status constants for Requirement
const (
	RequirementStatusOpen    = "OPEN"
	RequirementStatusMatched = "MATCHED"
	RequirementStatusClosed  = "CLOSED"
)

// Status constants for TutorAssociation
const (
	AssociationStatusRecommended = "RECOMMENDED"
	AssociationStatusApplied     = "APPLIED"
	AssociationStatusShortlisted = "SHORTLISTED"
	AssociationStatusAssigned    = "ASSIGNED"
	AssociationStatusRejected    = "REJECTED"
	AssociationStatusWithdrawn   = "WITHDRAWN"
)

// Status constants for DemoSession
const (
	DemoStatusRequested = "REQUESTED"
	DemoStatusScheduled = "SCHEDULED"
	DemoStatusCompleted = "COMPLETED"
	DemoStatusCancelled = "CANCELLED"
)

// Reschedule status constants for DemoSession
const (
	RescheduleStatusNone    = "NONE"
	RescheduleStatusPending = "PENDING_RESCHEDULE"
)

// Status constants for Class
const (
	ClassStatusUpcoming  = "UPCOMING"
	ClassStatusOngoing   = "ONGOING"
	ClassStatusPast      = "PAST"
	ClassStatusCancelled = "CANCELLED"
)

// Teaching mode constants
const (
	TeachingModeOnline  = "ONLINE"
	TeachingModeOffline = "OFFLINE"
)

// Gender preference constants
const (
	GenderPreferenceAny    = "ANY"
	GenderPreferenceMale   = "MALE"
	GenderPreferenceFemale = "FEMALE"
)

// Outbox delivery status constants
const (
	DeliveryStatusPending   = "PENDING"
	DeliveryStatusDelivered = "DELIVERED"
	DeliveryStatusFailed    = "FAILED"
	DeliveryStatusDead      = "DEAD"
)
