package entity

import (
	"fmt"
	"time"
)

var weekdayCodes = map[string]time.Weekday{
	"SUN": time.Sunday,
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
	"SAT": time.Saturday,
}

// Schedule is the recurring weekly window of a Class
type Schedule struct {
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"` // HH:MM
	EndTime   string   `json:"end_time"`   // HH:MM
}

// Validate checks day codes and that the window is positive
func (s Schedule) Validate() error {
	if len(s.Days) == 0 {
		return fmt.Errorf("schedule needs at least one day")
	}
	for _, d := range s.Days {
		if _, ok := weekdayCodes[d]; !ok {
			return fmt.Errorf("unknown schedule day %q", d)
		}
	}
	start, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time %q: %w", s.StartTime, err)
	}
	end, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time %q: %w", s.EndTime, err)
	}
	if !end.After(start) {
		return fmt.Errorf("end_time %s must be after start_time %s", s.EndTime, s.StartTime)
	}
	return nil
}

// NextAfter returns the first session start strictly after t, or nil if the
// schedule is malformed
func (s Schedule) NextAfter(t time.Time) *time.Time {
	clock, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return nil
	}
	for i := 0; i <= 7; i++ {
		day := t.AddDate(0, 0, i)
		if !s.runsOn(day.Weekday()) {
			continue
		}
		candidate := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, t.Location())
		if candidate.After(t) {
			return &candidate
		}
	}
	return nil
}

func (s Schedule) runsOn(wd time.Weekday) bool {
	for _, d := range s.Days {
		if weekdayCodes[d] == wd {
			return true
		}
	}
	return false
}

// Class is a recurring tutoring engagement created after a successful match
type Class struct {
	ID            string     `json:"id"`
	RequirementID string     `json:"requirement_id"`
	TutorID       string     `json:"tutor_id"`
	Subject       string     `json:"subject"`
	Schedule      Schedule   `json:"schedule"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	StartDate     time.Time  `json:"start_date"`
	NextSession   *time.Time `json:"next_session,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CancelledBy   Role       `json:"cancelled_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Version       int64      `json:"version"`
}

// NextSessionAfter returns the first scheduled session after t, or nil when
// none falls on or before the end date
func (c *Class) NextSessionAfter(t time.Time) *time.Time {
	next := c.Schedule.NextAfter(t)
	if next != nil && c.EndDate != nil && next.After(*c.EndDate) {
		return nil
	}
	return next
}

// DueStatus returns the status the class should hold at now, judged only by
// its dates. Cancelled classes never move.
func (c *Class) DueStatus(now time.Time) string {
	switch c.Status {
	case ClassStatusCancelled, ClassStatusPast:
		return c.Status
	}
	if c.EndDate != nil && now.After(*c.EndDate) {
		return ClassStatusPast
	}
	if !now.Before(c.StartDate) {
		return ClassStatusOngoing
	}
	return ClassStatusUpcoming
}

// Clone returns a deep copy
func (c *Class) Clone() *Class {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Schedule.Days = append([]string(nil), c.Schedule.Days...)
	if c.NextSession != nil {
		t := *c.NextSession
		cp.NextSession = &t
	}
	if c.EndDate != nil {
		t := *c.EndDate
		cp.EndDate = &t
	}
	return &cp
}
