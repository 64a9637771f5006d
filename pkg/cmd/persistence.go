// Package cmd provides common initialization helpers for the binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/funnelworks/cadence/pkg/persistence"
	filepersistence "github.com/funnelworks/cadence/pkg/persistence/file"
	postgrespersistence "github.com/funnelworks/cadence/pkg/persistence/postgres"
)

// NewPersistence selects the workflow store from the database URL
// scheme: postgres URLs get the SQL store, anything else is treated as
// a directory for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	if isPostgresURL(databaseURL) {
		return postgrespersistence.NewPersistence(ctx, logger, databaseURL)
	}

	return filepersistence.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
}

func isPostgresURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}
