package entity

import "time"

// Requirement is a parent's posted tuition need
type Requirement struct {
	ID               string          `json:"id"`
	ParentID         string          `json:"parent_id"`
	Subjects         []string        `json:"subjects"`
	GradeLevel       string          `json:"grade_level"`
	Board            string          `json:"board"`
	TeachingModes    []string        `json:"teaching_modes"`
	Location         string          `json:"location,omitempty"`
	PreferredDays    []string        `json:"preferred_days,omitempty"`
	TimeSlots        []string        `json:"time_slots,omitempty"`
	GenderPreference string          `json:"gender_preference"`
	StartPreference  string          `json:"start_preference,omitempty"`
	Status           string          `json:"status"`
	Outcome          *ClosureOutcome `json:"outcome,omitempty"`
	PostedAt         time.Time       `json:"posted_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
	Version          int64           `json:"version"`
}

// RequirementFields holds the parent-editable attributes of a Requirement
type RequirementFields struct {
	Subjects         []string `json:"subjects" validate:"required,min=1,dive,required"`
	GradeLevel       string   `json:"grade_level" validate:"required"`
	Board            string   `json:"board" validate:"required"`
	TeachingModes    []string `json:"teaching_modes" validate:"required,min=1,max=2,unique,dive,oneof=ONLINE OFFLINE"`
	Location         string   `json:"location"`
	PreferredDays    []string `json:"preferred_days" validate:"omitempty,dive,oneof=MON TUE WED THU FRI SAT SUN"`
	TimeSlots        []string `json:"time_slots"`
	GenderPreference string   `json:"gender_preference" validate:"omitempty,oneof=ANY MALE FEMALE"`
	StartPreference  string   `json:"start_preference"`
}

// ClosureOutcome records how the parent's close flow ended
type ClosureOutcome struct {
	FoundTutor   bool   `json:"found_tutor"`
	TutorID      string `json:"tutor_id,omitempty"`
	TutorName    string `json:"tutor_name,omitempty"`
	StartClasses bool   `json:"start_classes"`
	ClassID      string `json:"class_id,omitempty"`
	ClosedBy     Role   `json:"closed_by"`
}

// ApplyFields overwrites the editable attributes
func (r *Requirement) ApplyFields(f RequirementFields) {
	r.Subjects = append([]string(nil), f.Subjects...)
	r.GradeLevel = f.GradeLevel
	r.Board = f.Board
	r.TeachingModes = append([]string(nil), f.TeachingModes...)
	r.Location = f.Location
	r.PreferredDays = append([]string(nil), f.PreferredDays...)
	r.TimeSlots = append([]string(nil), f.TimeSlots...)
	r.GenderPreference = f.GenderPreference
	if r.GenderPreference == "" {
		r.GenderPreference = GenderPreferenceAny
	}
	r.StartPreference = f.StartPreference
}

// Fields returns the editable attributes
func (r *Requirement) Fields() RequirementFields {
	return RequirementFields{
		Subjects:         append([]string(nil), r.Subjects...),
		GradeLevel:       r.GradeLevel,
		Board:            r.Board,
		TeachingModes:    append([]string(nil), r.TeachingModes...),
		Location:         r.Location,
		PreferredDays:    append([]string(nil), r.PreferredDays...),
		TimeSlots:        append([]string(nil), r.TimeSlots...),
		GenderPreference: r.GenderPreference,
		StartPreference:  r.StartPreference,
	}
}

// HasSubject reports whether the requirement covers the subject
func (r *Requirement) HasSubject(subject string) bool {
	return containsString(r.Subjects, subject)
}

// HasMode reports whether the requirement accepts the given teaching mode
func (r *Requirement) HasMode(mode string) bool {
	return containsString(r.TeachingModes, mode)
}

// IsClosed returns true once the requirement is closed
func (r *Requirement) IsClosed() bool {
	return r.Status == RequirementStatusClosed
}

// Clone returns a deep copy so staged writes never alias stored state
func (r *Requirement) Clone() *Requirement {
	if r == nil {
		return nil
	}
	c := *r
	c.Subjects = append([]string(nil), r.Subjects...)
	c.TeachingModes = append([]string(nil), r.TeachingModes...)
	c.PreferredDays = append([]string(nil), r.PreferredDays...)
	c.TimeSlots = append([]string(nil), r.TimeSlots...)
	if r.Outcome != nil {
		o := *r.Outcome
		c.Outcome = &o
	}
	if r.ClosedAt != nil {
		t := *r.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
