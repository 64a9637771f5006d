// Package main provides the Cadence sweeper service, which processes
// due run queue entries on a schedule.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/funnelworks/cadence/pkg/cmd"
	"github.com/funnelworks/cadence/pkg/engine"
	"github.com/funnelworks/cadence/pkg/log"
	trc "github.com/funnelworks/cadence/pkg/tracer"
)

const defaultSweepLimit = 500

func main() {
	command := &cli.Command{
		Name:                  "cadence-sweeper",
		Usage:                 "Start the Cadence queue sweeper service",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sweeper-id",
				Aliases: []string{"id"},
				Usage:   "Custom sweeper ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("SWEEPER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for workflow persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Connection URL for the run queue (defaults to database-url)",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "sweep-cron",
				Usage:   "Cron spec for sweep iterations",
				Value:   "* * * * *",
				Sources: cli.EnvVars("SWEEP_CRON"),
			},
			&cli.IntFlag{
				Name:    "sweep-limit",
				Usage:   "Maximum queue entries processed per sweep",
				Value:   defaultSweepLimit,
				Sources: cli.EnvVars("SWEEP_LIMIT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup("cadence-sweeper", command.String("log-level"))

	tracerProvider, err := trc.InitTracer(ctx, "cadence-sweeper")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown tracer provider", "error", err)
		}
	}()

	sweeperID := command.String("sweeper-id")
	if sweeperID == "" {
		sweeperID = fmt.Sprintf("sweeper-%s", uuid.New().String()[:8])
	}

	logger := log.WithModule("cadence-sweeper").With("sweeper_id", sweeperID)

	logger.Info("Initializing Cadence Sweeper", "sweeper_id", sweeperID)

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	queueStore, err := cmd.NewQueueStore(ctx, logger, command.String("queue-url"), command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize queue store: %w", err)
	}

	defer func() {
		if err := queueStore.Close(ctx); err != nil {
			logger.Error("Failed to close queue store", "error", err)
		}
	}()

	populationStore, err := cmd.NewPopulationStore(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize population store: %w", err)
	}

	defer func() {
		if err := populationStore.Close(ctx); err != nil {
			logger.Error("Failed to close population store", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "cadence-sweeper", logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	service := engine.NewService(engine.Config{
		Logger:      logger,
		Persistence: persistence,
		Queue:       queueStore,
		Population:  populationStore,
		Publisher:   eventBus,
	})

	sweeper, err := NewSweeper(sweeperID, service, command.String("sweep-cron"), int(command.Int("sweep-limit")), logger)
	if err != nil {
		return fmt.Errorf("failed to create sweeper: %w", err)
	}

	sweeper.Start(ctx)

	return nil
}
