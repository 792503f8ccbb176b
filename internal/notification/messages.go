package notification

import (
	"fmt"
	"strings"

	"github.com/garyjia/tutor-matching/internal/domain/event"
)

// Render turns a workflow event into a one-line human-readable message
func Render(evt *event.Event) string {
	tutor := evt.GetPayloadString("tutor_id")
	requirement := evt.GetPayloadString("requirement_id")
	if requirement == "" {
		requirement = evt.EntityID
	}

	switch evt.Type {
	case event.TypeRequirementPosted:
		return fmt.Sprintf("New requirement %s posted by parent %s", evt.EntityID, evt.GetPayloadString("parent_id"))
	case event.TypeRequirementUpdated:
		return fmt.Sprintf("Requirement %s was updated", evt.EntityID)
	case event.TypeRequirementClosed:
		msg := fmt.Sprintf("Requirement %s closed by %s", evt.EntityID, role(evt))
		if classID := evt.GetPayloadString("class_id"); classID != "" {
			msg += fmt.Sprintf(", classes started (%s)", classID)
		}
		return msg
	case event.TypeRequirementReopened:
		return fmt.Sprintf("Requirement %s was reopened", evt.EntityID)
	case event.TypeRequirementDeleted:
		return fmt.Sprintf("Requirement %s was deleted", evt.EntityID)
	case event.TypeAssociationRecorded:
		return fmt.Sprintf("Tutor %s %s for requirement %s", tutor, verb(evt.ToStatus), requirement)
	case event.TypeAssociationStatusChanged:
		return fmt.Sprintf("Tutor %s is now %s for requirement %s", tutor, lower(evt.ToStatus), requirement)
	case event.TypeAssociationsRejected:
		return fmt.Sprintf("Other candidates of requirement %s were rejected", evt.EntityID)
	case event.TypeDemoRequested:
		return fmt.Sprintf("Demo requested with tutor %s for requirement %s", tutor, requirement)
	case event.TypeDemoScheduled:
		return fmt.Sprintf("Demo %s with tutor %s is scheduled", evt.EntityID, tutor)
	case event.TypeDemoRescheduleRequested:
		return fmt.Sprintf("%s asked to reschedule demo %s", titleRole(evt), evt.EntityID)
	case event.TypeDemoRescheduleResolved:
		if evt.GetPayloadBool("accepted") {
			return fmt.Sprintf("Reschedule of demo %s was accepted", evt.EntityID)
		}
		return fmt.Sprintf("Reschedule of demo %s was declined", evt.EntityID)
	case event.TypeDemoCompleted:
		return fmt.Sprintf("Demo %s with tutor %s is completed", evt.EntityID, tutor)
	case event.TypeDemoCancelled:
		return fmt.Sprintf("Demo %s was cancelled by %s", evt.EntityID, role(evt))
	case event.TypeClassCreated:
		return fmt.Sprintf("Classes with tutor %s created for requirement %s", tutor, requirement)
	case event.TypeClassStatusChanged:
		return fmt.Sprintf("Class %s is now %s", evt.EntityID, lower(evt.ToStatus))
	}
	return fmt.Sprintf("%s %s: %s -> %s", evt.EntityType, evt.EntityID, evt.FromStatus, evt.ToStatus)
}

func verb(status string) string {
	if status == "RECOMMENDED" {
		return "was recommended"
	}
	return "applied"
}

func role(evt *event.Event) string {
	return lower(evt.ActorRole.String())
}

func titleRole(evt *event.Event) string {
	r := role(evt)
	if r == "" {
		return "Someone"
	}
	return strings.ToUpper(r[:1]) + r[1:]
}

func lower(s string) string {
	return strings.ToLower(s)
}
