package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

// clearDay removes every destination shift inside one 24h window.
func (e *Executor) clearDay(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.ClearDayInput](input)
	if err != nil {
		return nil, err
	}

	removed, err := e.removeWindow(ctx, in.Team, in.Day, in.Day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	return orchestrator.ClearResult{Removed: removed}, nil
}

// clearRange sweeps the whole window once more after the per-day passes.
// Shifts spanning midnight can escape a day query; the wide pass catches
// them.
func (e *Executor) clearRange(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.ClearRangeInput](input)
	if err != nil {
		return nil, err
	}

	removed, err := e.removeWindow(ctx, in.Team, in.From, in.To)
	if err != nil {
		return nil, err
	}

	return orchestrator.ClearResult{Removed: removed}, nil
}

func (e *Executor) removeWindow(ctx context.Context, team *models.Team, from, to time.Time) (int, error) {
	var shifts []*protocol.DestinationShift

	err := e.transientRetry.Do(ctx, func(ctx context.Context) error {
		listed, listErr := e.destination.ListShifts(ctx, team.ID, from, to)
		if listErr != nil {
			return listErr
		}

		shifts = listed

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list shifts in [%s, %s): %w", from, to, err)
	}

	removed := 0

	for _, shift := range shifts {
		err = e.destination.DeleteShift(ctx, team.ID, shift.ID)
		if err != nil {
			if errors.Is(err, protocol.ErrNotFound) {
				continue
			}

			return removed, fmt.Errorf("failed to delete shift %s: %w", shift.ID, err)
		}

		removed++
	}

	return removed, nil
}

// groupsClear removes every scheduling group of the team and drops the
// cached name table.
func (e *Executor) groupsClear(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.GroupsClearInput](input)
	if err != nil {
		return nil, err
	}

	team := in.Team

	groups, err := e.destination.ListSchedulingGroups(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduling groups: %w", err)
	}

	for name, id := range groups {
		err = e.destination.RemoveSchedulingGroup(ctx, team.ID, id)
		if err != nil && !errors.Is(err, protocol.ErrNotFound) {
			return nil, fmt.Errorf("failed to remove scheduling group %s: %w", name, err)
		}
	}

	e.groups.Forget(team.ID)

	e.logger.InfoContext(ctx, "Cleared scheduling groups", "team_id", team.ID, "count", len(groups))

	return nil, nil
}

// snapshotDrop forgets the stored snapshots for the window so the next sync
// recomputes the full delta from scratch.
func (e *Executor) snapshotDrop(ctx context.Context, input json.RawMessage) (any, error) {
	in, err := decode[orchestrator.SnapshotDropInput](input)
	if err != nil {
		return nil, err
	}

	err = e.persist.SnapshotRepository().DeleteRange(ctx, in.Team.ID, in.From, in.To)
	if err != nil {
		return nil, fmt.Errorf("failed to drop snapshots: %w", err)
	}

	return nil, nil
}
