package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

const weekKeyLayout = "2006-01-02"

// SnapshotRepository stores one JSON file per (team, week start).
type SnapshotRepository struct {
	root string
}

func NewSnapshotRepository(root string) *SnapshotRepository {
	return &SnapshotRepository{root: root}
}

func (sr *SnapshotRepository) dir(teamID string) string {
	return path.Join(sr.root, "snapshots", teamID)
}

func (sr *SnapshotRepository) Get(_ context.Context, teamID string, weekStart time.Time) ([]*models.ShiftRecord, error) {
	filePath := filepath.Clean(path.Join(sr.dir(teamID), weekStart.Format(weekKeyLayout)+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ShiftRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read snapshot %s/%s: %w", teamID, weekStart.Format(weekKeyLayout), err)
	}

	var records []*models.ShiftRecord

	err = json.Unmarshal(body, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s/%s: %w", teamID, weekStart.Format(weekKeyLayout), err)
	}

	return records, nil
}

func (sr *SnapshotRepository) Save(_ context.Context, teamID string, weekStart time.Time, records []*models.ShiftRecord) error {
	err := os.MkdirAll(sr.dir(teamID), 0750)
	if err != nil {
		return fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s/%s: %w", teamID, weekStart.Format(weekKeyLayout), err)
	}

	return os.WriteFile(path.Join(sr.dir(teamID), weekStart.Format(weekKeyLayout)+".json"), data, 0600)
}

func (sr *SnapshotRepository) Delete(_ context.Context, teamID string, weekStart time.Time) error {
	err := os.Remove(path.Join(sr.dir(teamID), weekStart.Format(weekKeyLayout)+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot %s/%s: %w", teamID, weekStart.Format(weekKeyLayout), err)
	}

	return nil
}

func (sr *SnapshotRepository) DeleteRange(ctx context.Context, teamID string, from, to time.Time) error {
	dir := os.DirFS(sr.dir(teamID))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return fmt.Errorf("failed to list snapshots for team %s: %w", teamID, err)
	}

	for _, file := range jsonFiles {
		weekStart, err := time.Parse(weekKeyLayout, file[:len(file)-5])
		if err != nil {
			continue
		}

		if weekStart.Before(from) || weekStart.After(to) {
			continue
		}

		if err := sr.Delete(ctx, teamID, weekStart); err != nil {
			return err
		}
	}

	return nil
}

func (sr *SnapshotRepository) DeleteAll(_ context.Context, teamID string) error {
	err := os.RemoveAll(sr.dir(teamID))
	if err != nil {
		return fmt.Errorf("failed to delete snapshots for team %s: %w", teamID, err)
	}

	return nil
}
