package file

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
)

func testTeam(id string) *models.Team {
	return &models.Team{
		ID:                  id,
		Name:                "Store 42",
		WFMBuID:             "bu-42",
		TimeZone:            "America/New_York",
		PastWeeks:           1,
		FutureWeeks:         2,
		WeekStartDay:        time.Monday,
		SyncIntervalSeconds: 600,
		BatchSize:           20,
	}
}

func TestTeamRepository_SaveAndGet(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.TeamRepository()

	team := testTeam("team-1")
	require.NoError(t, repo.Save(t.Context(), team))
	assert.False(t, team.CreatedAt.IsZero())

	loaded, err := repo.GetByID(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, "Store 42", loaded.Name)
	assert.Equal(t, time.Monday, loaded.WeekStartDay)
}

func TestTeamRepository_GetMissing(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.TeamRepository().GetByID(t.Context(), "nope")
	require.Error(t, err)
	assert.True(t, persistence.IsTeamNotFound(err))
}

func TestTeamRepository_GetAllAndDelete(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.TeamRepository()

	require.NoError(t, repo.Save(t.Context(), testTeam("team-1")))
	require.NoError(t, repo.Save(t.Context(), testTeam("team-2")))

	teams, err := repo.GetAll(t.Context())
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	require.NoError(t, repo.Delete(t.Context(), "team-1"))

	teams, err = repo.GetAll(t.Context())
	require.NoError(t, err)
	assert.Len(t, teams, 1)

	// Deleting twice is fine.
	require.NoError(t, repo.Delete(t.Context(), "team-1"))
}

func TestSnapshotRepository_RoundTrip(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.SnapshotRepository()

	week := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	records := []*models.ShiftRecord{
		{SourceID: "S1", DestinationID: "d1", StartAt: week.Add(9 * time.Hour), EndAt: week.Add(17 * time.Hour)},
	}

	require.NoError(t, repo.Save(t.Context(), "team-1", week, records))

	loaded, err := repo.Get(t.Context(), "team-1", week)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "d1", loaded[0].DestinationID)
}

func TestSnapshotRepository_MissingIsEmpty(t *testing.T) {
	p := NewPersistence(t.TempDir())

	loaded, err := p.SnapshotRepository().Get(t.Context(), "team-1", time.Now())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSnapshotRepository_DeleteRange(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.SnapshotRepository()

	week1 := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	week2 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	week3 := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)

	for _, week := range []time.Time{week1, week2, week3} {
		require.NoError(t, repo.Save(t.Context(), "team-1", week, []*models.ShiftRecord{{SourceID: "S"}}))
	}

	require.NoError(t, repo.DeleteRange(t.Context(), "team-1", week1, week2))

	loaded, err := repo.Get(t.Context(), "team-1", week1)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	loaded, err = repo.Get(t.Context(), "team-1", week3)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestInstanceRepository_Lifecycle(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	instance, err := repo.Get(t.Context(), "team-1")
	require.NoError(t, err)
	assert.Nil(t, instance)

	instance = &models.Instance{
		TeamID:    "team-1",
		RunID:     "run-1",
		State:     models.InstanceStateRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Save(t.Context(), instance))

	running, err := repo.Running(t.Context())
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "team-1", running[0].TeamID)

	instance.State = models.InstanceStateTerminated
	require.NoError(t, repo.Save(t.Context(), instance))

	running, err = repo.Running(t.Context())
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestInstanceRepository_History(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.InstanceRepository()

	event := &models.HistoryEvent{
		RunID:      "run-1",
		StepID:     "iter/week:2025-03-10/sync:0",
		Kind:       models.HistoryKindActivity,
		Name:       "sync.week",
		Result:     []byte(`{"finished":true}`),
		RecordedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.AppendHistory(t.Context(), "team-1", event))

	events, err := repo.History(t.Context(), "team-1", "run-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.HistoryKindActivity, events[0].Kind)

	// Same step id replaces the entry instead of appending.
	event.Result = []byte(`{"finished":false}`)
	require.NoError(t, repo.AppendHistory(t.Context(), "team-1", event))

	events, err = repo.History(t.Context(), "team-1", "run-1")
	require.NoError(t, err)
	require.Len(t, events, 1)

	require.NoError(t, repo.ResetHistory(t.Context(), "team-1"))

	events, err = repo.History(t.Context(), "team-1", "run-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}
