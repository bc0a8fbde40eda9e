package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
)

// TeamRepository handles team-related database operations.
type TeamRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTeamRepository creates a new team repository.
func NewTeamRepository(db *sql.DB, logger *slog.Logger) *TeamRepository {
	return &TeamRepository{db: db, logger: logger}
}

const teamColumns = `
	id
  , name
  , wfm_bu_id
  , time_zone
  , initialized
  , past_weeks
  , future_weeks
  , week_start_day
  , sync_interval_seconds
  , recurrence_cron
  , continue_on_error
  , draft_mode
  , clear_on_first_run
  , batch_size
  , created_at
  , updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (*models.Team, error) {
	var (
		team           models.Team
		weekStartDay   int
		recurrenceCron sql.NullString
	)

	err := row.Scan(
		&team.ID,
		&team.Name,
		&team.WFMBuID,
		&team.TimeZone,
		&team.Initialized,
		&team.PastWeeks,
		&team.FutureWeeks,
		&weekStartDay,
		&team.SyncIntervalSeconds,
		&recurrenceCron,
		&team.ContinueOnError,
		&team.DraftMode,
		&team.ClearOnFirstRun,
		&team.BatchSize,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	team.WeekStartDay = time.Weekday(weekStartDay)
	team.RecurrenceCron = recurrenceCron.String

	return &team, nil
}

// GetAll returns all teams from the database.
func (r *TeamRepository) GetAll(ctx context.Context) ([]*models.Team, error) {
	query := "SELECT " + teamColumns + " FROM teams ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	teams := make([]*models.Team, 0)

	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}

		teams = append(teams, team)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	return teams, nil
}

// GetByID returns a team by its ID.
func (r *TeamRepository) GetByID(ctx context.Context, id string) (*models.Team, error) {
	query := "SELECT " + teamColumns + " FROM teams WHERE id = $1"

	team, err := scanTeam(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTeamError("GetByID", id, persistence.ErrTeamNotFound)
		}

		return nil, fmt.Errorf("failed to scan team: %w", err)
	}

	return team, nil
}

// Save upserts a team.
func (r *TeamRepository) Save(ctx context.Context, team *models.Team) error {
	now := time.Now().UTC()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}

	team.UpdatedAt = now

	query := `
		INSERT INTO teams (` + teamColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			wfm_bu_id = EXCLUDED.wfm_bu_id,
			time_zone = EXCLUDED.time_zone,
			initialized = EXCLUDED.initialized,
			past_weeks = EXCLUDED.past_weeks,
			future_weeks = EXCLUDED.future_weeks,
			week_start_day = EXCLUDED.week_start_day,
			sync_interval_seconds = EXCLUDED.sync_interval_seconds,
			recurrence_cron = EXCLUDED.recurrence_cron,
			continue_on_error = EXCLUDED.continue_on_error,
			draft_mode = EXCLUDED.draft_mode,
			clear_on_first_run = EXCLUDED.clear_on_first_run,
			batch_size = EXCLUDED.batch_size,
			updated_at = EXCLUDED.updated_at
	`

	var recurrenceCron sql.NullString
	if team.RecurrenceCron != "" {
		recurrenceCron = sql.NullString{String: team.RecurrenceCron, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		team.ID,
		team.Name,
		team.WFMBuID,
		team.TimeZone,
		team.Initialized,
		team.PastWeeks,
		team.FutureWeeks,
		int(team.WeekStartDay),
		team.SyncIntervalSeconds,
		recurrenceCron,
		team.ContinueOnError,
		team.DraftMode,
		team.ClearOnFirstRun,
		team.BatchSize,
		team.CreatedAt,
		team.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save team %s: %w", team.ID, err)
	}

	return nil
}

// Delete removes a team. Deleting a missing team is not an error.
func (r *TeamRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM teams WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete team %s: %w", id, err)
	}

	return nil
}
