// Package models defines the core domain models for schedule synchronization.
package models

import "time"

// Team is one connected business unit. It is the unit of orchestration:
// exactly one sync instance may run per team at any time.
type Team struct {
	ID       string `json:"id"       validate:"required"`
	Name     string `json:"name"     validate:"required,min=3"`
	WFMBuID  string `json:"wfm_bu_id" validate:"required"`
	TimeZone string `json:"time_zone" validate:"required"`

	// Initialized flips once, after the one-time provisioning flow completed.
	Initialized bool `json:"initialized"`

	// Sync window, in whole weeks around today.
	PastWeeks   int `json:"past_weeks"   validate:"min=0"`
	FutureWeeks int `json:"future_weeks" validate:"min=0"`

	// WeekStartDay is the day the team's ISO-style week snaps to.
	WeekStartDay time.Weekday `json:"week_start_day"`

	// SyncIntervalSeconds between iterations. Negative means one-shot.
	SyncIntervalSeconds int `json:"sync_interval_seconds"`

	// RecurrenceCron, when set, overrides SyncIntervalSeconds with a
	// 5-field cron expression evaluated in UTC.
	RecurrenceCron string `json:"recurrence_cron,omitempty"`

	// ContinueOnError decides whether a failed week flow stops the
	// instance or is logged and swallowed.
	ContinueOnError bool `json:"continue_on_error"`

	// DraftMode creates shifts as drafts and shares them afterwards.
	DraftMode bool `json:"draft_mode"`

	// ClearOnFirstRun wipes destination shifts in the sync window before
	// the first iteration instead of a plain cache clear.
	ClearOnFirstRun bool `json:"clear_on_first_run"`

	// BatchSize bounds how many delta operations one sync.week activity
	// invocation applies.
	BatchSize int `json:"batch_size" validate:"min=1"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Week is an ephemeral fan-out unit: a team plus a snapped week start date.
type Week struct {
	TeamID    string    `json:"team_id"`
	StartDate time.Time `json:"start_date"`
	TimeZone  string    `json:"time_zone"`
}

// WeekWindow computes the snapped week start dates covering
// [today-pastWeeks, today+futureWeeks] in the team's time zone.
func (t *Team) WeekWindow(now time.Time) ([]Week, error) {
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return nil, err
	}

	local := now.In(loc)
	anchor := StartOfWeek(local, t.WeekStartDay)

	weeks := make([]Week, 0, t.PastWeeks+t.FutureWeeks+1)
	for i := -t.PastWeeks; i <= t.FutureWeeks; i++ {
		weeks = append(weeks, Week{
			TeamID:    t.ID,
			StartDate: anchor.AddDate(0, 0, i*7),
			TimeZone:  t.TimeZone,
		})
	}

	return weeks, nil
}

// StartOfWeek snaps a local time back to midnight of the most recent
// occurrence of startDay.
func StartOfWeek(local time.Time, startDay time.Weekday) time.Time {
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())

	offset := int(day.Weekday()) - int(startDay)
	if offset < 0 {
		offset += 7
	}

	return day.AddDate(0, 0, -offset)
}
