package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/storycut/storycut/pkg/cmd"
	"github.com/storycut/storycut/pkg/log"
	"github.com/storycut/storycut/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultRetentionDays = 30

func main() {
	command := &cli.Command{
		Name:                  "storycut-engine",
		Usage:                 "Drive workflow executions against the render farm",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus transport (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "executor-url",
				Usage:    "Base URL of the render farm job API",
				Required: true,
				Sources:  cli.EnvVars("RENDER_FARM_URL"),
			},
			&cli.IntFlag{
				Name:    "execution-retention-days",
				Usage:   "Days to keep terminal execution records before pruning",
				Value:   defaultRetentionDays,
				Sources: cli.EnvVars("EXECUTION_RETENTION_DAYS"),
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

			logger := log.WithModule("engine-worker")
			logger.InfoContext(ctx, "Initializing Storycut engine worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, err := otelhelper.NewTracer(ctx, "storycut-engine")
			if err != nil {
				return err
			}

			registry := cmd.NewRegistry(logger)
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			worker := NewWorker(
				logger,
				persistence,
				registry,
				eventBus,
				tracer,
				command.String("executor-url"),
				command.Int("execution-retention-days"),
			)

			return worker.Run(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
