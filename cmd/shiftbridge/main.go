package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/shiftbridge/shiftbridge/pkg/log"
)

const defaultPort = 9090

func main() {
	command := &cli.Command{
		Name:                  "shiftbridge",
		Usage:                 "Continuous WFM to Shifts schedule synchronization",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a file-store path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for snapshots and secrets (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "wfm-api-url",
				Usage:    "Base URL of the WFM REST API",
				Required: true,
				Sources:  cli.EnvVars("WFM_API_URL"),
			},
			&cli.StringFlag{
				Name:     "shifts-api-url",
				Usage:    "Base URL of the Shifts REST API",
				Required: true,
				Sources:  cli.EnvVars("SHIFTS_API_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			return run(ctx, command)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
