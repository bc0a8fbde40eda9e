package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftbridge/shiftbridge/pkg/adapters/secrets"
	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/persistence/file"
	"github.com/shiftbridge/shiftbridge/pkg/services"
	"github.com/shiftbridge/shiftbridge/pkg/web"
)

type stubEngine struct {
	mu      sync.Mutex
	running map[string]bool
}

func (s *stubEngine) StartOrError(_ context.Context, teamID string) (orchestrator.StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running[teamID] {
		return orchestrator.StartResultAlreadyRunning, nil
	}

	s.running[teamID] = true

	return orchestrator.StartResultStarted, nil
}

func (s *stubEngine) Terminate(_ context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.running, teamID)

	return nil
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	store := secrets.NewMemoryStore()
	engine := &stubEngine{running: make(map[string]bool)}

	service := services.NewConnection(
		slog.Default(), persistence, store, engine, nil, nil,
		validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()
	web.NewAPIHandlers(service).Register(app)

	return app
}

func connectionBody(teamID string) []byte {
	body, _ := json.Marshal(map[string]any{
		"team_id":   teamID,
		"name":      "Store 42",
		"wfm_bu_id": "bu-42",
		"time_zone": "UTC",
		"credentials": map[string]string{
			"wfm_client_id":     "id",
			"wfm_client_secret": "secret",
			"shifts_api_token":  "token",
		},
	})

	return body
}

func subscribe(t *testing.T, app *fiber.App, teamID string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/connections/", bytes.NewBuffer(connectionBody(teamID)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCreateConnection(t *testing.T) {
	app := setupTestApp(t)

	subscribe(t, app, "team-1")

	// Duplicate subscription conflicts.
	req := httptest.NewRequest(http.MethodPost, "/connections/", bytes.NewBuffer(connectionBody("team-1")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateConnection_SchemaValidation(t *testing.T) {
	app := setupTestApp(t)

	body, _ := json.Marshal(map[string]any{
		"team_id": "team-1",
		"name":    "Store 42",
		// missing wfm_bu_id, time_zone and credentials
	})

	req := httptest.NewRequest(http.MethodPost, "/connections/", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "wfm_bu_id")
}

func TestStartSync(t *testing.T) {
	app := setupTestApp(t)
	subscribe(t, app, "team-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/start/team-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "started")

	// Second start while running conflicts.
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/start/team-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStartSync_UnknownTeam(t *testing.T) {
	app := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/start/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRestartSyncs(t *testing.T) {
	app := setupTestApp(t)
	subscribe(t, app, "team-1")
	subscribe(t, app, "team-2")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/restart", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Results []services.RestartResult `json:"results"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Len(t, payload.Results, 2)

	for _, result := range payload.Results {
		assert.Equal(t, "started", result.Result)
	}
}

func TestUnsubscribe(t *testing.T) {
	app := setupTestApp(t)
	subscribe(t, app, "team-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/unsubscribe/team-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The connection is gone.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/connections/team-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/unsubscribe/team-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetConnections(t *testing.T) {
	app := setupTestApp(t)
	subscribe(t, app, "team-1")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/connections/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "team-1")
}
