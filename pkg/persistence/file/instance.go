package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/shiftbridge/shiftbridge/pkg/models"
)

// InstanceRepository stores instance state and replay history as JSON
// files. History appends are serialized with a mutex: concurrent fan-out
// branches of one orchestration may record events at the same time.
type InstanceRepository struct {
	root string
	mu   sync.Mutex
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (ir *InstanceRepository) instancePath(teamID string) string {
	return filepath.Clean(path.Join(ir.root, "instances", teamID+".json"))
}

func (ir *InstanceRepository) historyPath(teamID, runID string) string {
	return filepath.Clean(path.Join(ir.root, "history", teamID, runID+".json"))
}

func (ir *InstanceRepository) Get(_ context.Context, teamID string) (*models.Instance, error) {
	body, err := os.ReadFile(ir.instancePath(teamID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read instance %s: %w", teamID, err)
	}

	var instance models.Instance

	err = json.Unmarshal(body, &instance)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance %s: %w", teamID, err)
	}

	return &instance, nil
}

func (ir *InstanceRepository) Save(_ context.Context, instance *models.Instance) error {
	err := os.MkdirAll(path.Join(ir.root, "instances"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create instances directory: %w", err)
	}

	instance.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", instance.TeamID, err)
	}

	return os.WriteFile(ir.instancePath(instance.TeamID), data, 0600)
}

func (ir *InstanceRepository) Delete(ctx context.Context, teamID string) error {
	if err := ir.ResetHistory(ctx, teamID); err != nil {
		return err
	}

	err := os.Remove(ir.instancePath(teamID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete instance %s: %w", teamID, err)
	}

	return nil
}

func (ir *InstanceRepository) Running(ctx context.Context) ([]*models.Instance, error) {
	dir := os.DirFS(path.Join(ir.root, "instances"))

	jsonFiles, err := fs.Glob(dir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	var running []*models.Instance

	for _, file := range jsonFiles {
		instance, err := ir.Get(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if instance != nil && !instance.State.Terminal() {
			running = append(running, instance)
		}
	}

	return running, nil
}

func (ir *InstanceRepository) AppendHistory(ctx context.Context, teamID string, event *models.HistoryEvent) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	events, err := ir.History(ctx, teamID, event.RunID)
	if err != nil {
		return err
	}

	// Replace an existing entry with the same step id (timer fired after
	// being scheduled); otherwise append.
	replaced := false

	for i, existing := range events {
		if existing.StepID == event.StepID {
			events[i] = event
			replaced = true

			break
		}
	}

	if !replaced {
		events = append(events, event)
	}

	err = os.MkdirAll(path.Join(ir.root, "history", teamID), 0750)
	if err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal history %s/%s: %w", teamID, event.RunID, err)
	}

	return os.WriteFile(ir.historyPath(teamID, event.RunID), data, 0600)
}

func (ir *InstanceRepository) History(_ context.Context, teamID, runID string) ([]*models.HistoryEvent, error) {
	body, err := os.ReadFile(ir.historyPath(teamID, runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.HistoryEvent{}, nil
		}

		return nil, fmt.Errorf("failed to read history %s/%s: %w", teamID, runID, err)
	}

	var events []*models.HistoryEvent

	err = json.Unmarshal(body, &events)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal history %s/%s: %w", teamID, runID, err)
	}

	return events, nil
}

func (ir *InstanceRepository) ResetHistory(_ context.Context, teamID string) error {
	err := os.RemoveAll(path.Join(ir.root, "history", teamID))
	if err != nil {
		return fmt.Errorf("failed to reset history for team %s: %w", teamID, err)
	}

	return nil
}
