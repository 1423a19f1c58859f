package main

import (
	"context"
	"os"

	"github.com/helixcrm/automation/pkg/log"
	"github.com/helixcrm/automation/pkg/otelhelper"
	"github.com/helixcrm/automation/pkg/persistence/postgresql"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort      = 9090
	defaultBatchSize = 50
)

func main() {
	cmd := &cli.Command{
		Name:                  "helix-runner",
		Usage:                 "Run CRM workflow automations",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the trigger API on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "dispatch-cron",
				Usage:   "Cron schedule for the background dispatch pass",
				Value:   "@every 30s",
				Sources: cli.EnvVars("DISPATCH_CRON"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum trigger events consumed per dispatch pass",
				Value:   defaultBatchSize,
				Sources: cli.EnvVars("DISPATCH_BATCH_SIZE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces via OTLP",
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

			logger := log.WithModule("helix-runner")

			logger.InfoContext(ctx, "Initializing automation runner")

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "helix-runner")
				if err != nil {
					logger.ErrorContext(ctx, "Failed to initialize tracing, continuing without it", "error", err)
				}
			}

			persistence, err := postgresql.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			runner := NewRunner(
				logger,
				persistence,
				command.String("dispatch-cron"),
				command.Int("batch-size"),
			)

			defer runner.Close(ctx)

			err = runner.Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Runner exited with error", "error", err)
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
