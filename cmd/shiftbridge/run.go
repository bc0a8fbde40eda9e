package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/shiftbridge/shiftbridge/pkg/activities"
	"github.com/shiftbridge/shiftbridge/pkg/adapters/shifts"
	"github.com/shiftbridge/shiftbridge/pkg/adapters/wfm"
	"github.com/shiftbridge/shiftbridge/pkg/cmd"
	"github.com/shiftbridge/shiftbridge/pkg/log"
	"github.com/shiftbridge/shiftbridge/pkg/orchestrator"
	"github.com/shiftbridge/shiftbridge/pkg/otelhelper"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("shiftbridge")

	logger.InfoContext(ctx, "Initializing ShiftBridge")

	persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

	if redisURL := command.String("redis-url"); redisURL != "" {
		persistence = cmd.WithRedisSnapshots(ctx, logger, persistence, redisURL)
	}

	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	secrets := cmd.NewSecrets(ctx, logger, command.String("redis-url"))

	source := wfm.NewClient(logger, command.String("wfm-api-url"), secrets)
	destination := shifts.NewClient(logger, command.String("shifts-api-url"), secrets)

	executor := activities.NewExecutor(logger, persistence, source, destination)

	var engineExecutor orchestrator.ActivityExecutor = executor

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "shiftbridge")
		if err != nil {
			return err
		}

		engineExecutor = activities.NewTracingExecutor(tracer, executor)
	}

	engine := orchestrator.NewEngine(logger, persistence, engineExecutor, eventBus)

	err := engine.ResumeAll(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to resume sync instances", "error", err)
	}

	api := NewAPI(logger, persistence, secrets, engine, executor, eventBus)
	app := api.App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(command.Int("port")))
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		logger.InfoContext(ctx, "Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Failed to shut down API server", "error", err)
	}

	// Running instances park where they are and resume by replay on the
	// next boot.
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down sync engine", "error", err)
	}

	return nil
}
