// Package main provides the ShiftBridge API server implementation.
package main

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/shiftbridge/shiftbridge/pkg/eventbus"
	"github.com/shiftbridge/shiftbridge/pkg/persistence"
	"github.com/shiftbridge/shiftbridge/pkg/protocol"
	"github.com/shiftbridge/shiftbridge/pkg/services"
	"github.com/shiftbridge/shiftbridge/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	secrets     protocol.Secrets
	engine      services.SyncStarter
	caches      services.CacheForgetter
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	secrets protocol.Secrets,
	engine services.SyncStarter,
	caches services.CacheForgetter,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		secrets:     secrets,
		engine:      engine,
		caches:      caches,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	connectionService := services.NewConnection(
		a.logger, a.persistence, a.secrets, a.engine, a.caches, a.eventBus, a.validate)

	handlers := web.NewAPIHandlers(connectionService)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("ShiftBridge API")
	})

	handlers.Register(app)

	return app
}
