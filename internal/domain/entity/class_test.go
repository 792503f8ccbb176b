package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		s       Schedule
		wantErr bool
	}{
		{"valid", Schedule{Days: []string{"MON", "WED"}, StartTime: "17:00", EndTime: "18:00"}, false},
		{"no days", Schedule{StartTime: "17:00", EndTime: "18:00"}, true},
		{"bad day", Schedule{Days: []string{"FUNDAY"}, StartTime: "17:00", EndTime: "18:00"}, true},
		{"bad clock", Schedule{Days: []string{"MON"}, StartTime: "5pm", EndTime: "18:00"}, true},
		{"inverted window", Schedule{Days: []string{"MON"}, StartTime: "18:00", EndTime: "17:00"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchedule_NextAfter(t *testing.T) {
	// 2026-10-14 is a Wednesday
	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	s := Schedule{Days: []string{"MON", "WED"}, StartTime: "17:00", EndTime: "18:00"}

	next := s.NextAfter(now)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC), *next)

	later := s.NextAfter(time.Date(2026, 10, 14, 17, 30, 0, 0, time.UTC))
	require.NotNil(t, later)
	assert.Equal(t, time.Date(2026, 10, 19, 17, 0, 0, 0, time.UTC), *later)

	assert.Nil(t, Schedule{Days: []string{"MON"}, StartTime: "bad"}.NextAfter(now))
}

func TestClass_DueStatus(t *testing.T) {
	start := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC)

	c := &Class{Status: ClassStatusUpcoming, StartDate: start, EndDate: &end}

	assert.Equal(t, ClassStatusUpcoming, c.DueStatus(start.Add(-time.Hour)))
	assert.Equal(t, ClassStatusOngoing, c.DueStatus(start))
	assert.Equal(t, ClassStatusPast, c.DueStatus(end.Add(time.Hour)))

	c.Status = ClassStatusCancelled
	assert.Equal(t, ClassStatusCancelled, c.DueStatus(end.Add(time.Hour)))
}

func TestSlot(t *testing.T) {
	start := time.Date(2026, 10, 20, 16, 0, 0, 0, time.UTC)
	s := NewSlot(start, 45)

	assert.NoError(t, s.Validate())
	assert.Equal(t, 45, s.DurationMinutes())
	assert.Error(t, Slot{StartAt: start, EndAt: start}.Validate())
	assert.Error(t, Slot{}.Validate())
}

func TestClass_NextSessionAfterStopsAtEndDate(t *testing.T) {
	// 2026-10-14 is a Wednesday
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	c := &Class{Schedule: Schedule{Days: []string{"MON", "WED"}, StartTime: "17:00", EndTime: "18:00"}}

	next := c.NextSessionAfter(now)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC), *next)

	end := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	c.EndDate = &end
	assert.Nil(t, c.NextSessionAfter(now))

	end = time.Date(2026, 10, 14, 17, 0, 0, 0, time.UTC)
	assert.NotNil(t, c.NextSessionAfter(now))
}
