package cmd

import (
	"context"
	"log/slog"

	"github.com/funnelworks/cadence/pkg/population"
	memorypopulation "github.com/funnelworks/cadence/pkg/population/memory"
	postgrespopulation "github.com/funnelworks/cadence/pkg/population/postgres"
)

// NewPopulationStore selects the population reader. Non-postgres URLs
// get the in-memory store, which serves development setups where no
// platform database exists.
func NewPopulationStore(ctx context.Context, logger *slog.Logger, databaseURL string) (population.Store, error) {
	if isPostgresURL(databaseURL) {
		return postgrespopulation.NewStore(ctx, logger, databaseURL)
	}

	return memorypopulation.NewStore(), nil
}
