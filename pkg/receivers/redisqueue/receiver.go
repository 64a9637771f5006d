// Package redisqueue receives trigger occurrences from a Redis list and
// publishes them onto the event bus. Producers push JSON documents of
// the form {"trigger_id": ..., "subject_id": ..., "data": {...}}.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/funnelworks/cadence/pkg/eventbus"
	"github.com/funnelworks/cadence/pkg/events"
)

const popTimeout = 1 * time.Second

// Config holds the receiver's connection and queue settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Queue    string
}

// message is the wire format producers push onto the list.
type message struct {
	TriggerID string         `json:"trigger_id"`
	SubjectID string         `json:"subject_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Receiver consumes trigger occurrences from a Redis list.
type Receiver struct {
	config    Config
	publisher eventbus.EventPublisher
	logger    *slog.Logger

	client *redis.Client
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewReceiver creates a receiver publishing to the given event bus.
func NewReceiver(config Config, publisher eventbus.EventPublisher, logger *slog.Logger) (*Receiver, error) {
	if config.Queue == "" {
		return nil, errors.New("redis queue name is required")
	}

	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}

	return &Receiver{
		config:    config,
		publisher: publisher,
		logger: logger.With(
			"module", "redisqueue_receiver",
			"queue", config.Queue,
		),
		stopCh: make(chan struct{}),
	}, nil
}

// Start connects to Redis and begins consuming.
func (r *Receiver) Start(ctx context.Context) error {
	r.client = redis.NewClient(&redis.Options{
		Addr:     r.config.Addr,
		Password: r.config.Password,
		DB:       r.config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.logger.InfoContext(ctx, "Connected to Redis", "addr", r.config.Addr, "db", r.config.DB)

	r.wg.Add(1)

	go r.consume(ctx)

	return nil
}

func (r *Receiver) consume(ctx context.Context) {
	defer r.wg.Done()

	r.logger.InfoContext(ctx, "Starting queue consumer")

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := r.processMessage(ctx); err != nil {
				r.logger.ErrorContext(ctx, "Error processing message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// processMessage pops one document and publishes the trigger event.
// Malformed documents are logged and dropped; they can never become
// valid by retrying.
func (r *Receiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, popTimeout, r.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var msg message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil || msg.TriggerID == "" {
		r.logger.WarnContext(ctx, "Dropping malformed trigger message", "message", result[1])

		return nil
	}

	event := events.NewTriggerFired(msg.TriggerID, msg.SubjectID, msg.Data)

	if err := r.publisher.Publish(ctx, msg.TriggerID, event); err != nil {
		return fmt.Errorf("failed to publish trigger event: %w", err)
	}

	return nil
}

// Stop drains the consumer and closes the connection.
func (r *Receiver) Stop(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Stopping receiver")

	close(r.stopCh)
	r.wg.Wait()

	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
