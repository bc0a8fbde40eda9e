package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/shiftbridge/shiftbridge/pkg/adapters/shifts"
	"github.com/shiftbridge/shiftbridge/pkg/adapters/wfm"
	"github.com/shiftbridge/shiftbridge/pkg/eventbus"
	"github.com/shiftbridge/shiftbridge/pkg/events"
	"github.com/shiftbridge/shiftbridge/pkg/models"
	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
)

const (
	defaultBatchSize   = 50
	defaultFutureWeeks = 2
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// SyncStarter is the engine surface the connection service drives.
type SyncStarter interface {
	StartOrError(ctx context.Context, teamID string) (orchestrator.StartResult, error)
	Terminate(ctx context.Context, teamID string) error
}

// CacheForgetter drops per-team cached lookup tables on unsubscribe.
type CacheForgetter interface {
	Forget(teamID string)
}

// Connection manages team subscriptions: create, start, restart and tear
// down.
type Connection struct {
	logger    *slog.Logger
	persist   persistence.Persistence
	secrets   protocol.Secrets
	engine    SyncStarter
	caches    CacheForgetter
	eventBus  eventbus.EventBus
	validator *validator.Validate
}

func NewConnection(
	logger *slog.Logger,
	persist persistence.Persistence,
	secrets protocol.Secrets,
	engine SyncStarter,
	caches CacheForgetter,
	eventBus eventbus.EventBus,
	validator *validator.Validate,
) *Connection {
	return &Connection{
		logger:    logger.With("module", "connection"),
		persist:   persist,
		secrets:   secrets,
		engine:    engine,
		caches:    caches,
		eventBus:  eventBus,
		validator: validator,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Connection) HealthCheck(ctx context.Context) (string, bool) {
	if s.persist == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persist.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Credentials carried on a subscribe request and moved into the secrets
// store. Never persisted with the team.
type Credentials struct {
	WFMClientID     string `json:"wfm_client_id"     validate:"required"`
	WFMClientSecret string `json:"wfm_client_secret" validate:"required"`
	ShiftsAPIToken  string `json:"shifts_api_token"  validate:"required"`
}

// SubscribeRequest creates a team connection.
type SubscribeRequest struct {
	TeamID   string `json:"team_id"   validate:"required"`
	Name     string `json:"name"      validate:"required,min=3"`
	WFMBuID  string `json:"wfm_bu_id" validate:"required"`
	TimeZone string `json:"time_zone" validate:"required"`

	PastWeeks           int          `json:"past_weeks"            validate:"min=0"`
	FutureWeeks         *int         `json:"future_weeks"          validate:"omitempty,min=0"`
	WeekStartDay        time.Weekday `json:"week_start_day"        validate:"min=0,max=6"`
	SyncIntervalSeconds int          `json:"sync_interval_seconds"`
	RecurrenceCron      string       `json:"recurrence_cron"`
	ContinueOnError     bool         `json:"continue_on_error"`
	DraftMode           bool         `json:"draft_mode"`
	ClearOnFirstRun     bool         `json:"clear_on_first_run"`
	BatchSize           int          `json:"batch_size"            validate:"omitempty,min=1"`

	Credentials Credentials `json:"credentials"`
}

// Subscribe creates the team, stores its credentials and starts its sync
// instance.
func (s *Connection) Subscribe(ctx context.Context, req SubscribeRequest) (*models.Team, error) {
	err := s.validator.Struct(req)
	if err != nil {
		return nil, NewValidationError("Subscribe", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	_, err = time.LoadLocation(req.TimeZone)
	if err != nil {
		return nil, NewValidationError("Subscribe", "INVALID_TIME_ZONE",
			fmt.Sprintf("unknown time zone %q", req.TimeZone), ErrInvalidTimeZone)
	}

	if req.RecurrenceCron != "" {
		_, err = cronParser.Parse(req.RecurrenceCron)
		if err != nil {
			return nil, NewValidationError("Subscribe", "INVALID_CRON", err.Error(), ErrInvalidCron)
		}
	}

	existing, err := s.persist.TeamRepository().GetByID(ctx, req.TeamID)
	if err != nil && !persistence.IsTeamNotFound(err) {
		return nil, fmt.Errorf("failed to look up team: %w", err)
	}

	if existing != nil {
		return nil, &ServiceError{Op: "Subscribe", Code: "TEAM_EXISTS",
			Message: fmt.Sprintf("team %s is already subscribed", req.TeamID), Err: ErrTeamAlreadyExists}
	}

	now := time.Now().UTC()

	team := &models.Team{
		ID:                  req.TeamID,
		Name:                req.Name,
		WFMBuID:             req.WFMBuID,
		TimeZone:            req.TimeZone,
		PastWeeks:           req.PastWeeks,
		FutureWeeks:         defaultFutureWeeks,
		WeekStartDay:        req.WeekStartDay,
		SyncIntervalSeconds: req.SyncIntervalSeconds,
		RecurrenceCron:      req.RecurrenceCron,
		ContinueOnError:     req.ContinueOnError,
		DraftMode:           req.DraftMode,
		ClearOnFirstRun:     req.ClearOnFirstRun,
		BatchSize:           req.BatchSize,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if req.FutureWeeks != nil {
		team.FutureWeeks = *req.FutureWeeks
	}

	if team.BatchSize == 0 {
		team.BatchSize = defaultBatchSize
	}

	err = s.storeCredentials(ctx, req.TeamID, req.Credentials)
	if err != nil {
		return nil, err
	}

	err = s.persist.TeamRepository().Save(ctx, team)
	if err != nil {
		return nil, fmt.Errorf("failed to save team: %w", err)
	}

	s.publish(ctx, team.ID, events.TeamSubscribed{
		BaseEvent: events.NewBaseEvent(events.TeamSubscribedEvent, team.ID),
		TeamName:  team.Name,
		WFMBuID:   team.WFMBuID,
	})

	s.logger.InfoContext(ctx, "Team subscribed", "team_id", team.ID, "name", team.Name)

	return team, nil
}

func (s *Connection) storeCredentials(ctx context.Context, teamID string, credentials Credentials) error {
	pairs := map[string]string{
		wfm.SecretClientID:     credentials.WFMClientID,
		wfm.SecretClientSecret: credentials.WFMClientSecret,
		shifts.SecretAPIToken:  credentials.ShiftsAPIToken,
	}

	for key, value := range pairs {
		if err := s.secrets.Set(ctx, teamID, key, value); err != nil {
			return fmt.Errorf("failed to store credential %s: %w", key, err)
		}
	}

	return nil
}

// List returns all subscribed teams.
func (s *Connection) List(ctx context.Context) ([]*models.Team, error) {
	teams, err := s.persist.TeamRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	return teams, nil
}

// Get returns one subscribed team.
func (s *Connection) Get(ctx context.Context, teamID string) (*models.Team, error) {
	return s.persist.TeamRepository().GetByID(ctx, teamID)
}

// Start launches the team's sync instance.
func (s *Connection) Start(ctx context.Context, teamID string) (orchestrator.StartResult, error) {
	return s.engine.StartOrError(ctx, teamID)
}

// RestartResult is the per-team outcome of a restart-all sweep.
type RestartResult struct {
	TeamID string `json:"team_id"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// RestartAll starts every subscribed team. Teams already running report
// already_running; failures are collected, never fatal for the sweep.
func (s *Connection) RestartAll(ctx context.Context) ([]RestartResult, error) {
	teams, err := s.persist.TeamRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}

	results := make([]RestartResult, 0, len(teams))

	for _, team := range teams {
		entry := RestartResult{TeamID: team.ID}

		result, err := s.engine.StartOrError(ctx, team.ID)
		if err != nil {
			entry.Result = "error"
			entry.Error = err.Error()

			s.logger.ErrorContext(ctx, "Failed to restart team sync", "team_id", team.ID, "error", err)
		} else {
			entry.Result = string(result)
		}

		results = append(results, entry)
	}

	return results, nil
}

// Unsubscribe terminates the team's sync and removes every trace of the
// connection: credentials, snapshots, instance state and the team itself.
func (s *Connection) Unsubscribe(ctx context.Context, teamID string) error {
	team, err := s.persist.TeamRepository().GetByID(ctx, teamID)
	if err != nil {
		return err
	}

	err = s.engine.Terminate(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to terminate sync for team %s: %w", teamID, err)
	}

	err = s.secrets.DeleteAll(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete credentials for team %s: %w", teamID, err)
	}

	err = s.persist.SnapshotRepository().DeleteAll(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots for team %s: %w", teamID, err)
	}

	err = s.persist.InstanceRepository().Delete(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete instance for team %s: %w", teamID, err)
	}

	err = s.persist.TeamRepository().Delete(ctx, teamID)
	if err != nil {
		return fmt.Errorf("failed to delete team %s: %w", teamID, err)
	}

	if s.caches != nil {
		s.caches.Forget(teamID)
	}

	s.publish(ctx, teamID, events.TeamUnsubscribed{
		BaseEvent: events.NewBaseEvent(events.TeamUnsubscribedEvent, teamID),
	})

	s.logger.InfoContext(ctx, "Team unsubscribed", "team_id", teamID, "name", team.Name)

	return nil
}

func (s *Connection) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	err := s.eventBus.Publish(ctx, key, event)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
