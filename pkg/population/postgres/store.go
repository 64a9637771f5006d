// Package postgres reads populations from the platform's PostgreSQL
// database. The narrowing query renders into the WHERE clause; rows
// come back as generic column maps for full rule evaluation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/funnelworks/cadence/pkg/population"
	"github.com/funnelworks/cadence/pkg/quickfilter"

	_ "github.com/lib/pq"
)

// Store is the PostgreSQL population reader.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects to the platform database. No migrations run here:
// the population tables belong to the platform, not the engine.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		db:     database,
		logger: logger.With("component", "population_postgres_store"),
	}, nil
}

// QueryChunk runs one keyset-paginated chunk of the narrowing query.
func (s *Store) QueryChunk(ctx context.Context, query quickfilter.Query, cursor int64, limit int) (*population.Page, error) {
	table := query.Backend.Table
	idColumn := query.Backend.IDColumn

	if table == "" || idColumn == "" {
		return nil, fmt.Errorf("%w: %q", quickfilter.ErrUnsupportedDataType, query.DataType)
	}

	where, args := query.WhereSQL(3)

	var builder strings.Builder

	fmt.Fprintf(&builder, "SELECT * FROM %s WHERE %s > $1", table, idColumn)

	if where != "" {
		builder.WriteString(" AND ")
		builder.WriteString(where)
	}

	fmt.Fprintf(&builder, " ORDER BY %s ASC LIMIT $2", idColumn)

	queryArgs := append([]any{cursor, limit}, args...)

	rows, err := s.db.QueryContext(ctx, builder.String(), queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query population %s: %w", table, err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	page := &population.Page{Items: items, NextCursor: cursor}

	if len(items) > 0 {
		page.NextCursor = items[len(items)-1].ID()
	}

	page.Done = len(items) < limit

	return page, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// scanItems reads rows into generic column maps.
func scanItems(rows *sql.Rows) ([]population.Item, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var items []population.Item

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan population row: %w", err)
		}

		item := make(population.Item, len(columns))

		for i, column := range columns {
			value := values[i]
			if raw, ok := value.([]byte); ok {
				value = string(raw)
			}

			item[column] = value
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating population rows: %w", err)
	}

	return items, nil
}
