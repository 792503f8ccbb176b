package entity

import "time"

// TutorAssociation links one Requirement to one candidate tutor.
// There is exactly one per (RequirementID, TutorID) pair.
type TutorAssociation struct {
	ID            string               `json:"id"`
	RequirementID string               `json:"requirement_id"`
	TutorID       string               `json:"tutor_id"`
	Status        string               `json:"status"`
	Note          string               `json:"note,omitempty"`
	Transitions   map[string]time.Time `json:"transitions"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Version       int64                `json:"version"`
}

// Stamp records when the association entered a status
func (a *TutorAssociation) Stamp(status string, at time.Time) {
	if a.Transitions == nil {
		a.Transitions = make(map[string]time.Time)
	}
	a.Transitions[status] = at
}

// IsTerminal returns true for Assigned, Rejected and Withdrawn
func (a *TutorAssociation) IsTerminal() bool {
	switch a.Status {
	case AssociationStatusAssigned, AssociationStatusRejected, AssociationStatusWithdrawn:
		return true
	}
	return false
}

// IsEliminated returns true when the tutor is out of the running
func (a *TutorAssociation) IsEliminated() bool {
	return a.Status == AssociationStatusRejected || a.Status == AssociationStatusWithdrawn
}

// Clone returns a deep copy
func (a *TutorAssociation) Clone() *TutorAssociation {
	if a == nil {
		return nil
	}
	c := *a
	c.Transitions = make(map[string]time.Time, len(a.Transitions))
	for k, v := range a.Transitions {
		c.Transitions[k] = v
	}
	return &c
}
