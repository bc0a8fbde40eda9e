// Package overlay reshapes a shift's overlapping timed sub-segments into a
// non-overlapping, themed, paid/unpaid activity timeline for the
// destination system.
package overlay

import (
	"sort"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// resolvedInterval tracks an emitted interval together with its
// pre-truncation bounds, which later entries compare against.
type resolvedInterval struct {
	activity  models.VisibleActivity
	origStart time.Time
	origEnd   time.Time
}

// Resolve turns ordered shift entries into a non-overlapping timeline.
//
// Entries must be sorted ascending by start, with job-level entries before
// activity entries at equal starts. The precondition is not validated here;
// MergeShiftEntries produces conforming input. Later entries win visually
// over earlier ones at the overlap, and any surviving tail of an earlier
// entry is re-materialized as its own interval.
func Resolve(entries []models.SubShift) []models.VisibleActivity {
	var out []resolvedInterval

	for _, entry := range entries {
		if entry.Code == models.SubShiftCodeBreak {
			continue
		}

		current := resolvedInterval{
			activity: models.VisibleActivity{
				DisplayName: entry.DisplayName,
				Theme:       entry.Theme,
				Paid:        entry.Code != models.SubShiftCodeMeal,
				StartAt:     entry.StartAt,
				EndAt:       entry.EndAt,
			},
			origStart: entry.StartAt,
			origEnd:   entry.EndAt,
		}

		out = append(out, current)
		if len(out) < 2 {
			continue
		}

		prev := out[len(out)-2]

		if current.activity.StartAt.Before(prev.activity.EndAt) {
			if current.activity.StartAt.Equal(prev.origStart) {
				// The new entry starts exactly where the previous one
				// originated, fully superseding it.
				out = append(out[:len(out)-2], current)
			} else {
				out[len(out)-2].activity.EndAt = current.activity.StartAt
			}
		}

		if current.origEnd.Before(prev.origEnd) {
			// The new entry is nested inside the previous one; the portion
			// of the previous entry after it survives as a fresh interval.
			out = append(out, resolvedInterval{
				activity: models.VisibleActivity{
					DisplayName: prev.activity.DisplayName,
					Theme:       prev.activity.Theme,
					Paid:        prev.activity.Paid,
					StartAt:     current.origEnd,
					EndAt:       prev.origEnd,
				},
				origStart: current.origEnd,
				origEnd:   prev.origEnd,
			})
		}
	}

	activities := make([]models.VisibleActivity, 0, len(out))
	for _, item := range out {
		activities = append(activities, item.activity)
	}

	return activities
}

// MergeShiftEntries builds the resolver's input from a shift record: jobs
// and activities merged into one sequence, stably sorted by start so that
// equal-start jobs stay ahead of activities.
func MergeShiftEntries(record *models.ShiftRecord) []models.SubShift {
	entries := make([]models.SubShift, 0, len(record.Jobs)+len(record.Activities))
	entries = append(entries, record.Jobs...)
	entries = append(entries, record.Activities...)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartAt.Before(entries[j].StartAt)
	})

	return entries
}
