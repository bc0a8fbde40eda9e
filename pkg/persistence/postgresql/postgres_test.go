package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"instance_history", "instances", "snapshots", "teams", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("shiftbridge_test"),
			postgres.WithUsername("shiftbridge"),
			postgres.WithPassword("shiftbridge"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	for _, table := range []string{"teams", "snapshots", "instances", "instance_history"} {
		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table+" table should exist")
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestTeamRepository_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	team := &models.Team{
		ID:                  "team-1",
		Name:                "Downtown Store",
		WFMBuID:             "bu-100",
		TimeZone:            "America/Chicago",
		PastWeeks:           1,
		FutureWeeks:         3,
		WeekStartDay:        time.Sunday,
		SyncIntervalSeconds: 900,
		RecurrenceCron:      "*/15 * * * *",
		DraftMode:           true,
		BatchSize:           25,
	}

	err := p.TeamRepository().Save(ctx, team)
	require.NoError(t, err)
	assert.False(t, team.CreatedAt.IsZero())
	assert.False(t, team.UpdatedAt.IsZero())

	retrieved, err := p.TeamRepository().GetByID(ctx, "team-1")
	require.NoError(t, err)
	assert.Equal(t, "Downtown Store", retrieved.Name)
	assert.Equal(t, time.Sunday, retrieved.WeekStartDay)
	assert.Equal(t, "*/15 * * * *", retrieved.RecurrenceCron)
	assert.True(t, retrieved.DraftMode)

	_, err = p.TeamRepository().GetByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsTeamNotFound(err))
}

func TestTeamRepository_Update(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	team := &models.Team{
		ID:        "team-1",
		Name:      "Downtown Store",
		WFMBuID:   "bu-100",
		TimeZone:  "UTC",
		BatchSize: 20,
	}

	require.NoError(t, p.TeamRepository().Save(ctx, team))

	initialUpdatedAt := team.UpdatedAt

	time.Sleep(10 * time.Millisecond)

	team.Initialized = true
	team.FutureWeeks = 5
	require.NoError(t, p.TeamRepository().Save(ctx, team))

	retrieved, err := p.TeamRepository().GetByID(ctx, "team-1")
	require.NoError(t, err)
	assert.True(t, retrieved.Initialized)
	assert.Equal(t, 5, retrieved.FutureWeeks)
	assert.True(t, retrieved.UpdatedAt.After(initialUpdatedAt))
}

func TestSnapshotRepository_RoundTripAndRange(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.SnapshotRepository()

	week1 := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	week2 := week1.AddDate(0, 0, 7)
	week3 := week1.AddDate(0, 0, 14)

	records := []*models.ShiftRecord{
		{SourceID: "S1", DestinationID: "d1", StartAt: week1.Add(9 * time.Hour), EndAt: week1.Add(17 * time.Hour)},
		{SourceID: "S2", StartAt: week1.Add(10 * time.Hour), EndAt: week1.Add(18 * time.Hour)},
	}

	for _, week := range []time.Time{week1, week2, week3} {
		require.NoError(t, repo.Save(ctx, "team-1", week, records))
	}

	loaded, err := repo.Get(ctx, "team-1", week1)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "d1", loaded[0].DestinationID)

	// Missing week reads back as empty, not an error.
	loaded, err = repo.Get(ctx, "team-1", week1.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, repo.DeleteRange(ctx, "team-1", week1, week2))

	loaded, err = repo.Get(ctx, "team-1", week2)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	loaded, err = repo.Get(ctx, "team-1", week3)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	require.NoError(t, repo.DeleteAll(ctx, "team-1"))

	loaded, err = repo.Get(ctx, "team-1", week3)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestInstanceRepository_LifecycleAndHistory(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.InstanceRepository()

	instance, err := repo.Get(ctx, "team-1")
	require.NoError(t, err)
	assert.Nil(t, instance)

	instance = &models.Instance{
		TeamID:    "team-1",
		RunID:     "run-1",
		State:     models.InstanceStateRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, instance))

	running, err := repo.Running(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "run-1", running[0].RunID)

	event := &models.HistoryEvent{
		RunID:      "run-1",
		StepID:     "iter/timer:next",
		Kind:       models.HistoryKindTimer,
		FireAt:     time.Now().UTC().Add(time.Minute),
		RecordedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.AppendHistory(ctx, "team-1", event))

	// Firing the timer rewrites the same step instead of appending.
	event.Fired = true
	require.NoError(t, repo.AppendHistory(ctx, "team-1", event))

	events, err := repo.History(ctx, "team-1", "run-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Fired)
	assert.Equal(t, models.HistoryKindTimer, events[0].Kind)

	require.NoError(t, repo.ResetHistory(ctx, "team-1"))

	events, err = repo.History(ctx, "team-1", "run-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	instance.State = models.InstanceStateTerminated
	require.NoError(t, repo.Save(ctx, instance))

	running, err = repo.Running(ctx)
	require.NoError(t, err)
	assert.Empty(t, running)

	require.NoError(t, repo.Delete(ctx, "team-1"))

	instance, err = repo.Get(ctx, "team-1")
	require.NoError(t, err)
	assert.Nil(t, instance)
}
