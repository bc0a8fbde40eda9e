package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// SnapshotRepository stores per-(team, week) shift snapshots as JSONB rows.
type SnapshotRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *sql.DB, logger *slog.Logger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

func (r *SnapshotRepository) Get(ctx context.Context, teamID string, weekStart time.Time) ([]*models.ShiftRecord, error) {
	query := "SELECT records FROM snapshots WHERE team_id = $1 AND week_start = $2"

	var body []byte

	err := r.db.QueryRowContext(ctx, query, teamID, weekStart).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []*models.ShiftRecord{}, nil
		}

		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var records []*models.ShiftRecord

	err = json.Unmarshal(body, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return records, nil
}

func (r *SnapshotRepository) Save(ctx context.Context, teamID string, weekStart time.Time, records []*models.ShiftRecord) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO snapshots (team_id, week_start, records, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (team_id, week_start) DO UPDATE SET
			records = EXCLUDED.records,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query, teamID, weekStart, body)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, teamID string, weekStart time.Time) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM snapshots WHERE team_id = $1 AND week_start = $2", teamID, weekStart)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}

func (r *SnapshotRepository) DeleteRange(ctx context.Context, teamID string, from, to time.Time) error {
	query := "DELETE FROM snapshots WHERE team_id = $1 AND week_start BETWEEN $2 AND $3"

	_, err := r.db.ExecContext(ctx, query, teamID, from, to)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot range: %w", err)
	}

	return nil
}

func (r *SnapshotRepository) DeleteAll(ctx context.Context, teamID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM snapshots WHERE team_id = $1", teamID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots for team %s: %w", teamID, err)
	}

	return nil
}
