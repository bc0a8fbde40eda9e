package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

// provisionEnsure polls the destination schedule, creating it when absent.
// Provisioning completes asynchronously downstream; the orchestrator keeps
// polling until Provisioned flips or its attempt budget runs out.
func (e *Executor) provisionEnsure(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.ProvisionEnsureInput](input)
	if err != nil {
		return nil, err
	}

	team := in.Team

	var schedule *protocol.Schedule

	err = e.transientRetry.Do(ctx, func(ctx context.Context) error {
		found, getErr := e.destination.GetSchedule(ctx, team.ID)
		if getErr != nil {
			if errors.Is(getErr, protocol.ErrNotFound) {
				created, createErr := e.destination.CreateSchedule(ctx, team.ID, team.TimeZone)
				if createErr != nil {
					return createErr
				}

				schedule = created

				return nil
			}

			return getErr
		}

		schedule = found

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure schedule for team %s: %w", team.ID, err)
	}

	e.logger.InfoContext(ctx, "Checked schedule provisioning",
		"team_id", team.ID, "schedule_id", schedule.ID, "provisioned", schedule.Provisioned)

	return orchestrator.ProvisionEnsureResult{Provisioned: schedule.Provisioned}, nil
}

// scheduleShare makes draft shifts visible. The shared window is widened to
// whole local days so time-zone offsets cannot exclude a touched shift.
func (e *Executor) scheduleShare(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.ScheduleShareInput](input)
	if err != nil {
		return nil, err
	}

	team := in.Team

	loc, err := time.LoadLocation(team.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid team time zone %q: %w", team.TimeZone, err)
	}

	from := dayFloor(in.From.In(loc))
	to := dayFloor(in.To.In(loc)).AddDate(0, 0, 1)

	err = e.transientRetry.Do(ctx, func(ctx context.Context) error {
		return e.destination.ShareSchedule(ctx, team.ID, from, to, true)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to share schedule for team %s: %w", team.ID, err)
	}

	e.logger.InfoContext(ctx, "Shared schedule", "team_id", team.ID, "from", from, "to", to)

	return nil, nil
}

func dayFloor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// teamSave persists a team mutated by the orchestration, such as the
// Initialized flag flip.
func (e *Executor) teamSave(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.TeamSaveInput](input)
	if err != nil {
		return nil, err
	}

	err = e.persist.TeamRepository().Save(ctx, in.Team)
	if err != nil {
		return nil, err
	}

	return orchestrator.TeamSaveResult{Team: in.Team}, nil
}
