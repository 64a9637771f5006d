// Package main provides the Cadence API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/funnelworks/cadence/pkg/cmd"
	"github.com/funnelworks/cadence/pkg/engine"
	"github.com/funnelworks/cadence/pkg/events"
	"github.com/funnelworks/cadence/pkg/log"
	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/receivers/redisqueue"
	trc "github.com/funnelworks/cadence/pkg/tracer"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "cadence-api",
		Usage:                 "Manage workflows and receive trigger notifications",
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
				Name:    "redis-queue-addr",
				Usage:   "Redis address for the trigger queue receiver (disabled when empty)",
				Sources: cli.EnvVars("REDIS_QUEUE_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-queue-name",
				Usage:   "Redis list the trigger queue receiver consumes",
				Value:   "cadence:triggers",
				Sources: cli.EnvVars("REDIS_QUEUE_NAME"),
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
	log.Setup("cadence-api", command.String("log-level"))

	logger := log.WithModule("api")

	tracerProvider, err := trc.InitTracer(ctx, "cadence-api")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	defer func() {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown tracer provider", "error", err)
		}
	}()

	logger.InfoContext(ctx, "Initializing Cadence API")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}

	defer func() {
		if err := persistence.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	queueStore, err := cmd.NewQueueStore(ctx, logger, command.String("queue-url"), command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize queue store: %w", err)
	}

	defer func() {
		if err := queueStore.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close queue store", "error", err)
		}
	}()

	populationStore, err := cmd.NewPopulationStore(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to initialize population store: %w", err)
	}

	defer func() {
		if err := populationStore.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close population store", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "cadence-api", logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	service := engine.NewService(engine.Config{
		Logger:      logger,
		Persistence: persistence,
		Queue:       queueStore,
		Population:  populationStore,
		Publisher:   eventBus,
	})

	// Trigger events arriving over the bus fan out to bound workflows.
	err = eventBus.Handle(events.TriggerFiredEvent, func(ctx context.Context, event any) error {
		fired, ok := event.(*events.TriggerFired)
		if !ok {
			return nil
		}

		trigger := models.TriggerContext{SubjectID: fired.SubjectID, Data: fired.Data}

		return service.NotifyTrigger(ctx, fired.TriggerID, trigger)
	})
	if err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	if addr := command.String("redis-queue-addr"); addr != "" {
		receiver, err := redisqueue.NewReceiver(redisqueue.Config{
			Addr:  addr,
			Queue: command.String("redis-queue-name"),
		}, eventBus, logger)
		if err != nil {
			return fmt.Errorf("failed to create trigger queue receiver: %w", err)
		}

		if err := receiver.Start(ctx); err != nil {
			return fmt.Errorf("failed to start trigger queue receiver: %w", err)
		}

		defer func() {
			if err := receiver.Stop(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to stop trigger queue receiver", "error", err)
			}
		}()
	}

	api := NewAPI(logger, service)

	return api.Start(int(command.Int("port")))
}
