package service

import (
	"errors"
	"fmt"

	"github.com/garyjia/tutor-matching/internal/application/port"
	appwf "github.com/garyjia/tutor-matching/internal/application/workflow"
	domainwf "github.com/garyjia/tutor-matching/internal/domain/workflow"
)

var (
	ErrNotFound               = port.ErrNotFound
	ErrInvalidTransition      = domainwf.ErrInvalidTransition
	ErrConcurrentModification = appwf.ErrConcurrentModification

	ErrInvalidInput             = errors.New("invalid input")
	ErrDuplicateAssociation     = errors.New("tutor association already exists")
	ErrConflictingDemo          = errors.New("an active demo already exists for this tutor")
	ErrRescheduleAlreadyPending = errors.New("a reschedule request is already pending")
	ErrDemoNotYetElapsed        = errors.New("demo has not ended yet")
	ErrAssociationNotAssigned   = errors.New("tutor is not assigned to this requirement")
	ErrRequirementClosed        = errors.New("requirement is closed")
)

// Refinements of ErrInvalidTransition
var (
	ErrRoleNotPermitted     = fmt.Errorf("%w: role not permitted", ErrInvalidTransition)
	ErrClassOngoing         = fmt.Errorf("%w: requirement has an ongoing class", ErrInvalidTransition)
	ErrActiveAssignment     = fmt.Errorf("%w: requirement has an assigned tutor", ErrInvalidTransition)
	ErrNotCounterpart       = fmt.Errorf("%w: reschedule must be resolved by the other party", ErrInvalidTransition)
	ErrTutorAlreadyAssigned = fmt.Errorf("%w: another tutor is already assigned", ErrInvalidTransition)
	ErrAssociationInactive  = fmt.Errorf("%w: tutor association is rejected or withdrawn", ErrInvalidTransition)
)

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Category is the single user-facing message class an error maps to
type Category struct {
	Code    string
	Message string
}

type rule struct {
	target error
	cat    Category
}

// rules are checked in order; refinements come before ErrInvalidTransition
var rules = []rule{
	{ErrNotFound, Category{"NOT_FOUND", "The requested record does not exist."}},
	{ErrInvalidInput, Category{"INVALID_INPUT", "Some of the submitted details are invalid."}},
	{ErrConcurrentModification, Category{"CONCURRENT_MODIFICATION", "This record was changed by someone else. Refresh and try again."}},
	{ErrDuplicateAssociation, Category{"DUPLICATE_ASSOCIATION", "This tutor is already linked to the requirement."}},
	{ErrConflictingDemo, Category{"CONFLICTING_DEMO", "A demo with this tutor is already requested or scheduled."}},
	{ErrRescheduleAlreadyPending, Category{"RESCHEDULE_ALREADY_PENDING", "A reschedule request is already waiting for a response."}},
	{ErrDemoNotYetElapsed, Category{"DEMO_NOT_YET_ELAPSED", "The demo can only be completed after it has ended."}},
	{ErrAssociationNotAssigned, Category{"ASSOCIATION_NOT_ASSIGNED", "Classes can only start with the assigned tutor."}},
	{ErrRequirementClosed, Category{"REQUIREMENT_CLOSED", "This requirement is closed."}},
	{ErrRoleNotPermitted, Category{"INVALID_TRANSITION", "You are not allowed to perform this action."}},
	{ErrClassOngoing, Category{"INVALID_TRANSITION", "The requirement cannot be reopened while a class is ongoing."}},
	{ErrActiveAssignment, Category{"INVALID_TRANSITION", "The requirement cannot be deleted while a tutor is assigned."}},
	{ErrNotCounterpart, Category{"INVALID_TRANSITION", "Only the other party can respond to this reschedule request."}},
	{ErrTutorAlreadyAssigned, Category{"INVALID_TRANSITION", "Another tutor is already assigned to this requirement."}},
	{ErrAssociationInactive, Category{"INVALID_TRANSITION", "This tutor is no longer being considered."}},
	{ErrInvalidTransition, Category{"INVALID_TRANSITION", "This action is not allowed in the current state."}},
}

var internalCategory = Category{"INTERNAL", "Something went wrong. Please try again."}

// Classify maps an error to its category
func Classify(err error) Category {
	for _, r := range rules {
		if errors.Is(err, r.target) {
			return r.cat
		}
	}
	return internalCategory
}
