package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/funnelworks/cadence/pkg/queue"
	filequeue "github.com/funnelworks/cadence/pkg/queue/file"
	postgresqueue "github.com/funnelworks/cadence/pkg/queue/postgres"
)

// NewQueueStore selects the run queue store from the queue URL scheme.
// An empty URL falls back to the database URL so a single PostgreSQL
// instance can hold both stores.
func NewQueueStore(ctx context.Context, logger *slog.Logger, queueURL, databaseURL string) (queue.Store, error) {
	if queueURL == "" {
		queueURL = databaseURL
	}

	if isPostgresURL(queueURL) {
		return postgresqueue.NewStore(ctx, logger, queueURL)
	}

	return filequeue.NewStore(strings.TrimPrefix(queueURL, "file://"))
}
