package main

import (
	"context"
	"os"
	"time"

	"github.com/storycut/storycut/pkg/cmd"
	"github.com/storycut/storycut/pkg/collab"
	"github.com/storycut/storycut/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9092

func main() {
	command := &cli.Command{
		Name:                  "storycut-collab",
		Usage:                 "Host real-time collaboration rooms for story documents",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the collaboration gateway on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for document snapshots",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "retention",
				Usage:   "Events retained per room before compaction into a snapshot",
				Value:   1024,
				Sources: cli.EnvVars("ROOM_RETENTION"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus transport (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
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

			logger := log.WithModule("collab-gateway")
			logger.InfoContext(ctx, "Initializing Storycut collaboration gateway")

			store, err := collab.NewRedisSnapshotStore(ctx, collab.RedisSnapshotConfig{
				Addr:     command.String("redis-addr"),
				Password: command.String("redis-password"),
				TTL:      7 * 24 * time.Hour,
			}, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close snapshot store", "error", err)
				}
			}()

			config := collab.DefaultConfig()
			config.Retention = command.Int("retention")

			hub := collab.NewHub(logger, store, collab.NewLogCompactor(), config)
			defer func() {
				if err := hub.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close hub", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			gateway := NewGateway(logger, hub, eventBus)

			return gateway.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
