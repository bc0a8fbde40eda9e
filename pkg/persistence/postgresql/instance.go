package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// InstanceRepository stores orchestration instance state and the replay
// history. History entries are keyed by (team, run, step); recording the
// same step twice replaces the entry, which is how a scheduled timer
// becomes a fired one.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	team_id
  , run_id
  , state
  , error
  , carried
  , started_at
  , updated_at
`

func scanInstance(row rowScanner) (*models.Instance, error) {
	var (
		instance     models.Instance
		instanceErr  sql.NullString
		carriedState []byte
	)

	err := row.Scan(
		&instance.TeamID,
		&instance.RunID,
		&instance.State,
		&instanceErr,
		&carriedState,
		&instance.StartedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Error = instanceErr.String
	instance.Carried = carriedState

	return &instance, nil
}

func (r *InstanceRepository) Get(ctx context.Context, teamID string) (*models.Instance, error) {
	query := "SELECT " + instanceColumns + " FROM instances WHERE team_id = $1"

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, teamID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	return instance, nil
}

func (r *InstanceRepository) Save(ctx context.Context, instance *models.Instance) error {
	instance.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (team_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			state = EXCLUDED.state,
			error = EXCLUDED.error,
			carried = EXCLUDED.carried,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at
	`

	var instanceErr sql.NullString
	if instance.Error != "" {
		instanceErr = sql.NullString{String: instance.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		instance.TeamID,
		instance.RunID,
		instance.State,
		instanceErr,
		[]byte(instance.Carried),
		instance.StartedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save instance %s: %w", instance.TeamID, err)
	}

	return nil
}

func (r *InstanceRepository) Delete(ctx context.Context, teamID string) error {
	if err := r.ResetHistory(ctx, teamID); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, "DELETE FROM instances WHERE team_id = $1", teamID)
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", teamID, err)
	}

	return nil
}

func (r *InstanceRepository) Running(ctx context.Context) ([]*models.Instance, error) {
	query := "SELECT " + instanceColumns + " FROM instances WHERE state = $1"

	rows, err := r.db.QueryContext(ctx, query, models.InstanceStateRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query running instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var running []*models.Instance

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		running = append(running, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	return running, nil
}

func (r *InstanceRepository) AppendHistory(ctx context.Context, teamID string, event *models.HistoryEvent) error {
	query := `
		INSERT INTO instance_history (team_id, run_id, step_id, kind, name, result, error, fire_at, fired, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (team_id, run_id, step_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			fire_at = EXCLUDED.fire_at,
			fired = EXCLUDED.fired,
			recorded_at = EXCLUDED.recorded_at
	`

	var fireAt sql.NullTime
	if !event.FireAt.IsZero() {
		fireAt = sql.NullTime{Time: event.FireAt, Valid: true}
	}

	var eventErr sql.NullString
	if event.Error != "" {
		eventErr = sql.NullString{String: event.Error, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		teamID,
		event.RunID,
		event.StepID,
		event.Kind,
		event.Name,
		[]byte(event.Result),
		eventErr,
		fireAt,
		event.Fired,
		event.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history %s/%s: %w", teamID, event.StepID, err)
	}

	return nil
}

func (r *InstanceRepository) History(ctx context.Context, teamID, runID string) ([]*models.HistoryEvent, error) {
	query := `
		SELECT
			run_id
		  , step_id
		  , kind
		  , name
		  , result
		  , error
		  , fire_at
		  , fired
		  , recorded_at
		FROM instance_history
		WHERE team_id = $1 AND run_id = $2
		ORDER BY recorded_at, step_id
	`

	rows, err := r.db.QueryContext(ctx, query, teamID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	events := make([]*models.HistoryEvent, 0)

	for rows.Next() {
		var (
			event    models.HistoryEvent
			name     sql.NullString
			eventErr sql.NullString
			fireAt   sql.NullTime
			result   []byte
		)

		err = rows.Scan(
			&event.RunID,
			&event.StepID,
			&event.Kind,
			&name,
			&result,
			&eventErr,
			&fireAt,
			&event.Fired,
			&event.RecordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history event: %w", err)
		}

		event.Name = name.String
		event.Error = eventErr.String
		event.FireAt = fireAt.Time
		event.Result = result

		events = append(events, &event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return events, nil
}

func (r *InstanceRepository) ResetHistory(ctx context.Context, teamID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM instance_history WHERE team_id = $1", teamID)
	if err != nil {
		return fmt.Errorf("failed to reset history for team %s: %w", teamID, err)
	}

	return nil
}
