// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// CreateTestTeam creates a test Team with default values that can be
// overridden.
func CreateTestTeam(overrides ...func(*models.Team)) *models.Team {
	team := &models.Team{
		ID:           uuid.New().String(),
		Name:         "Test Team",
		WFMBuID:      "bu-" + uuid.New().String()[:8],
		TimeZone:     "UTC",
		PastWeeks:    0,
		FutureWeeks:  2,
		WeekStartDay: time.Sunday,
		BatchSize:    50,
	}

	for _, override := range overrides {
		override(team)
	}

	return team
}

// WithTimeZone sets the team time zone.
func WithTimeZone(timeZone string) func(*models.Team) {
	return func(t *models.Team) {
		t.TimeZone = timeZone
	}
}

// WithWindow sets the sync window in whole weeks around today.
func WithWindow(pastWeeks, futureWeeks int) func(*models.Team) {
	return func(t *models.Team) {
		t.PastWeeks = pastWeeks
		t.FutureWeeks = futureWeeks
	}
}

// WithWeekStartDay sets the day the team's week snaps to.
func WithWeekStartDay(day time.Weekday) func(*models.Team) {
	return func(t *models.Team) {
		t.WeekStartDay = day
	}
}

// WithTeamID sets the team ID.
func WithTeamID(id string) func(*models.Team) {
	return func(t *models.Team) {
		t.ID = id
	}
}

// CreateTestShift creates a test ShiftRecord with default values that can
// be overridden.
func CreateTestShift(overrides ...func(*models.ShiftRecord)) *models.ShiftRecord {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	record := &models.ShiftRecord{
		SourceID: uuid.New().String(),
		Employee: models.EmployeeRef{SourceID: "emp-1"},
		Group:    models.GroupRef{SourceRef: "job-1"},
		StartAt:  start,
		EndAt:    start.Add(8 * time.Hour),
		Jobs: []models.SubShift{
			{Code: "job-1", DisplayName: "Cashier", StartAt: start, EndAt: start.Add(8 * time.Hour)},
		},
	}

	for _, override := range overrides {
		override(record)
	}

	return record
}

// WithSourceID sets the shift source ID.
func WithSourceID(id string) func(*models.ShiftRecord) {
	return func(r *models.ShiftRecord) {
		r.SourceID = id
	}
}

// WithEmployee sets the shift employee reference.
func WithEmployee(sourceID string) func(*models.ShiftRecord) {
	return func(r *models.ShiftRecord) {
		r.Employee = models.EmployeeRef{SourceID: sourceID}
	}
}

// WithSpan sets the shift start and end, shifting the single default job
// segment along with it.
func WithSpan(start, end time.Time) func(*models.ShiftRecord) {
	return func(r *models.ShiftRecord) {
		r.StartAt = start
		r.EndAt = end

		if len(r.Jobs) == 1 {
			r.Jobs[0].StartAt = start
			r.Jobs[0].EndAt = end
		}
	}
}

// WithActivities sets the shift activity segments.
func WithActivities(activities ...models.SubShift) func(*models.ShiftRecord) {
	return func(r *models.ShiftRecord) {
		r.Activities = activities
	}
}
