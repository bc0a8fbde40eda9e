package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shiftbridge/shiftbridge/pkg/events"
	"github.com/shiftbridge/shiftbridge/pkg/models"
)

const (
	// Provisioning poll budget. Exhausting it is a fatal timeout, never
	// retried.
	provisionPollAttempts = 20
	provisionPollInterval = 30 * time.Second

	// Runs continue-as-new after this many iterations so the recorded
	// history stays bounded.
	iterationsPerRun = 10
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

const dayKeyLayout = "2006-01-02"

// syncBody is the orchestration body for one run. It returns the team to
// carry into the next run (continue-as-new), or nil when the instance is
// done.
func (e *Engine) syncBody(wc *Context, team *models.Team) (*models.Team, error) {
	if !team.Initialized {
		initialized, err := e.initialize(wc, team)
		if err != nil {
			return nil, err
		}

		team = initialized
	}

	for iteration := 0; iteration < iterationsPerRun; iteration++ {
		prefix := fmt.Sprintf("iter:%d/", iteration)

		started, err := wc.Now(prefix + "started")
		if err != nil {
			return nil, err
		}

		weeks, err := team.WeekWindow(started)
		if err != nil {
			return nil, fmt.Errorf("failed to compute week window: %w", err)
		}

		counts, err := e.fanOutWeeks(wc, team, prefix, weeks)
		if err != nil {
			if !team.ContinueOnError {
				return nil, err
			}

			wc.logger.ErrorContext(wc.ctx, "Week flows failed, continuing per team policy", "error", err)
		}

		finished, err := wc.Now(prefix + "finished")
		if err != nil {
			return nil, err
		}

		e.publish(wc.ctx, team.ID, events.SyncIterationCompleted{
			BaseEvent:  events.NewBaseEvent(events.SyncIterationCompletedEvent, team.ID),
			RunID:      wc.runID,
			Iteration:  iteration,
			Weeks:      len(weeks),
			Counts:     counts,
			DurationMs: finished.Sub(started).Milliseconds(),
		})

		if team.SyncIntervalSeconds < 0 && team.RecurrenceCron == "" {
			// One-shot mode.
			return nil, nil
		}

		fireAt, err := nextDue(team, finished)
		if err != nil {
			return nil, err
		}

		err = wc.SleepUntil(prefix+"timer", fireAt)
		if err != nil {
			return nil, err
		}
	}

	return team, nil
}

// nextDue computes the next iteration instant: cron recurrence when
// configured, fixed interval otherwise.
func nextDue(team *models.Team, after time.Time) (time.Time, error) {
	if team.RecurrenceCron != "" {
		schedule, err := cronParser.Parse(team.RecurrenceCron)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid recurrence cron %q: %w", team.RecurrenceCron, err)
		}

		return schedule.Next(after.UTC()), nil
	}

	return after.Add(time.Duration(team.SyncIntervalSeconds) * time.Second), nil
}

// initialize runs the one-time setup: poll provisioning with a bounded
// budget, optionally clear the destination window, then persist the flipped
// Initialized flag.
func (e *Engine) initialize(wc *Context, team *models.Team) (*models.Team, error) {
	provisioned := false

	for attempt := 0; attempt < e.provisionAttempts; attempt++ {
		var result ProvisionEnsureResult

		err := wc.Execute(fmt.Sprintf("init/provision:%d", attempt), ActivityProvisionEnsure,
			ProvisionEnsureInput{Team: team}, &result)
		if err != nil {
			return nil, err
		}

		if result.Provisioned {
			provisioned = true

			break
		}

		err = wc.Sleep(fmt.Sprintf("init/provision-wait:%d", attempt), e.provisionInterval)
		if err != nil {
			return nil, err
		}
	}

	if !provisioned {
		return nil, fmt.Errorf("schedule provisioning timed out after %d attempts", e.provisionAttempts)
	}

	now, err := wc.Now("init/now")
	if err != nil {
		return nil, err
	}

	from, to, err := windowRange(team, now)
	if err != nil {
		return nil, err
	}

	if team.ClearOnFirstRun {
		err = e.clearFlow(wc.Child("init/clear"), team, from, to, true)
		if err != nil {
			return nil, err
		}
	} else {
		err = wc.Execute("init/snapshot-drop", ActivitySnapshotDrop,
			SnapshotDropInput{Team: team, From: from, To: to}, nil)
		if err != nil {
			return nil, err
		}
	}

	updated := *team
	updated.Initialized = true

	var saved TeamSaveResult

	err = wc.Execute("init/team-save", ActivityTeamSave, TeamSaveInput{Team: &updated}, &saved)
	if err != nil {
		return nil, err
	}

	return saved.Team, nil
}

// fanOutWeeks runs one week flow per window week concurrently and waits for
// all of them.
func (e *Engine) fanOutWeeks(wc *Context, team *models.Team, prefix string, weeks []models.Week) (models.SyncCounts, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		total    models.SyncCounts
		failures = make([]error, len(weeks))
	)

	for i, week := range weeks {
		child := wc.Child(prefix + "week:" + week.StartDate.Format(dayKeyLayout))

		wg.Add(1)

		go func() {
			defer wg.Done()

			counts, err := e.weekFlow(child, team, week)
			if err != nil {
				failures[i] = fmt.Errorf("week %s: %w", week.StartDate.Format(dayKeyLayout), err)

				return
			}

			mu.Lock()
			total.Add(counts)
			mu.Unlock()
		}()
	}

	wg.Wait()

	return total, errors.Join(failures...)
}

// weekFlow applies one week's delta in batches until the sync.week activity
// reports Finished, then shares newly created drafts when the team syncs in
// draft mode.
func (e *Engine) weekFlow(wc *Context, team *models.Team, week models.Week) (models.SyncCounts, error) {
	var (
		counts   models.SyncCounts
		earliest time.Time
		latest   time.Time
	)

	started, err := wc.Now("started")
	if err != nil {
		return counts, err
	}

	for batch := 0; ; batch++ {
		var result SyncWeekResult

		err := wc.Execute(fmt.Sprintf("sync:%d", batch), ActivitySyncWeek,
			SyncWeekInput{Team: team, WeekStart: week.StartDate}, &result)
		if err != nil {
			return counts, err
		}

		counts.Add(result.Counts)

		if !result.EarliestStart.IsZero() && (earliest.IsZero() || result.EarliestStart.Before(earliest)) {
			earliest = result.EarliestStart
		}

		if result.LatestEnd.After(latest) {
			latest = result.LatestEnd
		}

		if result.Finished {
			break
		}
	}

	if team.DraftMode && counts.Created > 0 {
		err := wc.Execute("share", ActivityScheduleShare,
			ScheduleShareInput{Team: team, From: earliest, To: latest}, nil)
		if err != nil {
			return counts, err
		}
	}

	finished, err := wc.Now("finished")
	if err != nil {
		return counts, err
	}

	e.publish(wc.ctx, team.ID, events.WeekSynced{
		BaseEvent:  events.NewBaseEvent(events.WeekSyncedEvent, team.ID),
		RunID:      wc.runID,
		WeekStart:  week.StartDate,
		Counts:     counts,
		DurationMs: finished.Sub(started).Milliseconds(),
	})

	return counts, nil
}

// clearFlow wipes destination shifts in [from, to): one clear.day per
// calendar day concurrently, then a single clear.range pass over the whole
// range extended by 24 hours so shifts spanning midnight are caught, then
// group and snapshot cleanup.
func (e *Engine) clearFlow(wc *Context, team *models.Team, from, to time.Time, clearGroups bool) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		removed  int
		failures []error
	)

	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		child := wc.Child("day:" + day.Format(dayKeyLayout))

		wg.Add(1)

		go func() {
			defer wg.Done()

			var result ClearResult

			err := child.Execute("clear", ActivityClearDay, ClearDayInput{Team: team, Day: day}, &result)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				failures = append(failures, fmt.Errorf("day %s: %w", day.Format(dayKeyLayout), err))

				return
			}

			removed += result.Removed
		}()
	}

	wg.Wait()

	if err := errors.Join(failures...); err != nil {
		return err
	}

	var overflow ClearResult

	err := wc.Execute("range", ActivityClearRange,
		ClearRangeInput{Team: team, From: from, To: to.Add(24 * time.Hour)}, &overflow)
	if err != nil {
		return err
	}

	if clearGroups {
		err = wc.Execute("groups", ActivityGroupsClear, GroupsClearInput{Team: team}, nil)
		if err != nil {
			return err
		}
	}

	err = wc.Execute("snapshots", ActivitySnapshotDrop, SnapshotDropInput{Team: team, From: from, To: to}, nil)
	if err != nil {
		return err
	}

	e.publish(wc.ctx, team.ID, events.ScheduleCleared{
		BaseEvent:     events.NewBaseEvent(events.ScheduleClearedEvent, team.ID),
		RunID:         wc.runID,
		ShiftsRemoved: removed + overflow.Removed,
	})

	return nil
}

// windowRange is the [first week start, day after last week end) span of the
// team's configured sync window.
func windowRange(team *models.Team, now time.Time) (time.Time, time.Time, error) {
	weeks, err := team.WeekWindow(now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if len(weeks) == 0 {
		return time.Time{}, time.Time{}, errors.New("empty week window")
	}

	from := weeks[0].StartDate
	to := weeks[len(weeks)-1].StartDate.AddDate(0, 0, 7)

	return from, to, nil
}
