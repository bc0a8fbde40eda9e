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
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
)

// TeamRepository stores one JSON file per team.
type TeamRepository struct {
	root string
}

func NewTeamRepository(root string) *TeamRepository {
	return &TeamRepository{root: root}
}

func (tr *TeamRepository) GetAll(ctx context.Context) ([]*models.Team, error) {
	dir := os.DirFS(path.Join(tr.root, "teams"))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list team files: %w", err)
	}

	teams := make([]*models.Team, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		teamID := file[:len(file)-5] // strip .json

		team, err := tr.GetByID(ctx, teamID)
		if err != nil {
			if persistence.IsTeamNotFound(err) {
				continue
			}

			return nil, err
		}

		teams = append(teams, team)
	}

	return teams, nil
}

func (tr *TeamRepository) GetByID(_ context.Context, id string) (*models.Team, error) {
	filePath := filepath.Clean(path.Join(tr.root, "teams", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewTeamError("GetByID", id, persistence.ErrTeamNotFound)
		}

		return nil, fmt.Errorf("failed to read team %s: %w", id, err)
	}

	var team models.Team

	err = json.Unmarshal(body, &team)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal team %s: %w", id, err)
	}

	return &team, nil
}

func (tr *TeamRepository) Save(_ context.Context, team *models.Team) error {
	err := os.MkdirAll(path.Join(tr.root, "teams"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create teams directory: %w", err)
	}

	now := time.Now().UTC()
	if team.CreatedAt.IsZero() {
		team.CreatedAt = now
	}

	team.UpdatedAt = now

	data, err := json.MarshalIndent(team, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal team %s: %w", team.ID, err)
	}

	return os.WriteFile(path.Join(tr.root, "teams", team.ID+".json"), data, 0600)
}

func (tr *TeamRepository) Delete(_ context.Context, id string) error {
	err := os.Remove(path.Join(tr.root, "teams", id+".json"))
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to delete team %s: %w", id, err)
	}

	return nil
}
