package entity

import (
	"fmt"
	"time"
)

// Slot is a scheduled time window
type Slot struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// NewSlot builds a slot from a start time and a duration in minutes
func NewSlot(start time.Time, durationMinutes int) Slot {
	return Slot{StartAt: start, EndAt: start.Add(time.Duration(durationMinutes) * time.Minute)}
}

// Validate checks that the slot has a positive length
func (s Slot) Validate() error {
	if s.StartAt.IsZero() || s.EndAt.IsZero() {
		return fmt.Errorf("slot start and end are required")
	}
	if !s.EndAt.After(s.StartAt) {
		return fmt.Errorf("slot end %s must be after start %s", s.EndAt.Format(time.RFC3339), s.StartAt.Format(time.RFC3339))
	}
	return nil
}

// DurationMinutes returns the slot length in whole minutes
func (s Slot) DurationMinutes() int {
	return int(s.EndAt.Sub(s.StartAt) / time.Minute)
}

// DemoSession is a trial class tied to one TutorAssociation
type DemoSession struct {
	ID                    string     `json:"id"`
	RequirementID         string     `json:"requirement_id"`
	TutorID               string     `json:"tutor_id"`
	Subjects              []string   `json:"subjects"`
	Slot                  Slot       `json:"slot"`
	DurationMinutes       int        `json:"duration_minutes"`
	Mode                  string     `json:"mode"`
	Status                string     `json:"status"`
	RescheduleStatus      string     `json:"reschedule_status"`
	ProposedSlot          *Slot      `json:"proposed_slot,omitempty"`
	RescheduleReason      string     `json:"reschedule_reason,omitempty"`
	RescheduleRequestedBy Role       `json:"reschedule_requested_by,omitempty"`
	JoinLink              string     `json:"join_link,omitempty"`
	Location              string     `json:"location,omitempty"`
	FeeCents              *int64     `json:"fee_cents,omitempty"`
	RequestedBy           Role       `json:"requested_by"`
	CancelReason          string     `json:"cancel_reason,omitempty"`
	CancelledBy           Role       `json:"cancelled_by,omitempty"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	Version               int64      `json:"version"`
}

// IsActive returns true while the demo is Requested or Scheduled
func (d *DemoSession) IsActive() bool {
	return d.Status == DemoStatusRequested || d.Status == DemoStatusScheduled
}

// IsPaid reports whether the demo carries a fee
func (d *DemoSession) IsPaid() bool {
	return d.FeeCents != nil && *d.FeeCents > 0
}

// HasPendingReschedule returns true while a reschedule proposal is unresolved
func (d *DemoSession) HasPendingReschedule() bool {
	return d.RescheduleStatus == RescheduleStatusPending
}

// ClearReschedule drops the pending proposal
func (d *DemoSession) ClearReschedule() {
	d.RescheduleStatus = RescheduleStatusNone
	d.ProposedSlot = nil
	d.RescheduleReason = ""
	d.RescheduleRequestedBy = ""
}

// Clone returns a deep copy
func (d *DemoSession) Clone() *DemoSession {
	if d == nil {
		return nil
	}
	c := *d
	c.Subjects = append([]string(nil), d.Subjects...)
	if d.ProposedSlot != nil {
		s := *d.ProposedSlot
		c.ProposedSlot = &s
	}
	if d.FeeCents != nil {
		f := *d.FeeCents
		c.FeeCents = &f
	}
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
