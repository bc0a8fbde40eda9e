// Package web provides the HTTP boundary for team connections and sync
// control.
package web

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/shiftbridge/shiftbridge/pkg/config"
	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/services"
)

type APIHandlers struct {
	connections *services.Connection
}

func NewAPIHandlers(connections *services.Connection) *APIHandlers {
	return &APIHandlers{connections: connections}
}

// Register mounts the sync-control and connection routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Post("/start/:teamId", h.StartSync)
	app.Post("/restart", h.RestartSyncs)
	app.Post("/unsubscribe/:teamId", h.Unsubscribe)

	connections := app.Group("/connections")
	connections.Post("/", h.CreateConnection)
	connections.Get("/", h.GetConnections)
	connections.Get("/:teamId", h.GetConnection)

	app.Get("/health", h.HealthCheck)
}

// StartSync launches the team's sync instance. A second start while one is
// running is a conflict, not an error.
func (h *APIHandlers) StartSync(c fiber.Ctx) error {
	teamID := c.Params("teamId")
	if teamID == "" {
		return badRequest(c, "Team ID is required")
	}

	result, err := h.connections.Start(c.Context(), teamID)
	if err != nil {
		if persistence.IsTeamNotFound(err) {
			return notFound(c, "Team not found")
		}

		return internalError(c, err)
	}

	if result == orchestrator.StartResultAlreadyRunning {
		return conflict(c, "Sync already running for team "+teamID)
	}

	return c.JSON(fiber.Map{
		"team_id": teamID,
		"result":  string(result),
	})
}

// RestartSyncs starts every subscribed team. Always 200; per-team outcomes
// are in the body.
func (h *APIHandlers) RestartSyncs(c fiber.Ctx) error {
	results, err := h.connections.RestartAll(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"results": results})
}

func (h *APIHandlers) Unsubscribe(c fiber.Ctx) error {
	teamID := c.Params("teamId")
	if teamID == "" {
		return badRequest(c, "Team ID is required")
	}

	err := h.connections.Unsubscribe(c.Context(), teamID)
	if err != nil {
		if persistence.IsTeamNotFound(err) {
			return notFound(c, "Team not found")
		}

		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"team_id": teamID,
		"status":  "unsubscribed",
	})
}

func (h *APIHandlers) CreateConnection(c fiber.Ctx) error {
	err := config.ValidateConnection(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req services.SubscribeRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	team, err := h.connections.Subscribe(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(team)
}

func (h *APIHandlers) GetConnections(c fiber.Ctx) error {
	teams, err := h.connections.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"connections": teams})
}

func (h *APIHandlers) GetConnection(c fiber.Ctx) error {
	teamID := c.Params("teamId")
	if teamID == "" {
		return badRequest(c, "Team ID is required")
	}

	team, err := h.connections.Get(c.Context(), teamID)
	if err != nil {
		if persistence.IsTeamNotFound(err) {
			return notFound(c, "Team not found")
		}

		return internalError(c, err)
	}

	return c.JSON(team)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.connections.HealthCheck(c.Context())

	status := "unhealthy"
	message := "ShiftBridge API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "ShiftBridge API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
