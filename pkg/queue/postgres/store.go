// Package postgres implements the run queue on PostgreSQL. Dedup is
// enforced by a unique index on (workflow_id, dedup_key) and an
// INSERT ... ON CONFLICT DO NOTHING, which makes concurrent enqueues of
// the same occurrence yield exactly one row.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/persistence/sqlbase"
	"github.com/funnelworks/cadence/pkg/queue"

	_ "github.com/lib/pq"
)

// Store is the PostgreSQL run queue.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects, migrates and returns the queue store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:     database,
		logger: logger.With("component", "queue_postgres_store"),
	}

	migrationManager := sqlbase.NewMigrationManager(store.logger, database, queueMigrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run queue migrations: %w", err)
	}

	return store, nil
}

// NewStoreWithDB wraps an existing connection (tests).
func NewStoreWithDB(ctx context.Context, logger *slog.Logger, db *sql.DB) (*Store, error) {
	store := &Store{
		db:     db,
		logger: logger.With("component", "queue_postgres_store"),
	}

	migrationManager := sqlbase.NewMigrationManager(store.logger, db, queueMigrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run queue migrations: %w", err)
	}

	return store, nil
}

// Enqueue inserts a pending entry unless an entry for the same
// (workflow, dedup key) already exists.
func (s *Store) Enqueue(ctx context.Context, workflowID, dedupKey string, runAt time.Time) (queue.EnqueueResult, error) {
	query := `
		INSERT INTO queue_entries (workflow_id, dedup_key, date, created, failed, failure_code)
		VALUES ($1, $2, $3, $4, false, 0)
		ON CONFLICT (workflow_id, dedup_key) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query, workflowID, dedupKey, runAt.UTC(), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to enqueue entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		s.logger.DebugContext(ctx, "Entry already pending", "workflow_id", workflowID, "dedup_key", dedupKey)

		return queue.EnqueueAlreadyPending, nil
	}

	s.logger.DebugContext(ctx, "Entry enqueued", "workflow_id", workflowID, "dedup_key", dedupKey, "run_at", runAt)

	return queue.EnqueueCreated, nil
}

// DequeueDue returns due, non-failed entries oldest first. Reading does
// not consume.
func (s *Store) DequeueDue(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT id, workflow_id, dedup_key, date, created, failed, failure_code
		FROM queue_entries
		WHERE date <= $1 AND failed = false
		ORDER BY date ASC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due entries: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	return s.scanEntryRows(rows)
}

// MarkFailed records a terminal failure on an entry.
func (s *Store) MarkFailed(ctx context.Context, entryID int64, failureCode int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE queue_entries SET failed = true, failure_code = $2 WHERE id = $1`,
		entryID, failureCode,
	)
	if err != nil {
		return fmt.Errorf("failed to mark entry failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return queue.ErrEntryNotFound
	}

	return nil
}

// Remove deletes an entry (the success path).
func (s *Store) Remove(ctx context.Context, entryID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return queue.ErrEntryNotFound
	}

	return nil
}

// FailedEntries lists failed entries, newest first.
func (s *Store) FailedEntries(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	query := `
		SELECT id, workflow_id, dedup_key, date, created, failed, failure_code
		FROM queue_entries
		WHERE failed = true
		ORDER BY created DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed entries: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	return s.scanEntryRows(rows)
}

// PurgeFailedBefore deletes failed entries created before the cutoff.
func (s *Store) PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE failed = true AND created < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge failed entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
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

func (s *Store) scanEntryRows(rows *sql.Rows) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry

	for rows.Next() {
		entry := &models.QueueEntry{}

		err := rows.Scan(
			&entry.ID,
			&entry.WorkflowID,
			&entry.DedupKey,
			&entry.Date,
			&entry.CreatedAt,
			&entry.Failed,
			&entry.FailureCode,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entry rows: %w", err)
	}

	return entries, nil
}

func queueMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE queue_entries (
				id BIGSERIAL PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				dedup_key VARCHAR(255) NOT NULL,
				date TIMESTAMP WITH TIME ZONE NOT NULL,
				created TIMESTAMP WITH TIME ZONE NOT NULL,
				failed BOOLEAN NOT NULL DEFAULT false,
				failure_code INTEGER NOT NULL DEFAULT 0
			);

			-- The dedup invariant: one entry per logical occurrence.
			CREATE UNIQUE INDEX idx_queue_entries_dedup ON queue_entries(workflow_id, dedup_key);

			CREATE INDEX idx_queue_entries_workflow_id ON queue_entries(workflow_id);
			CREATE INDEX idx_queue_entries_created ON queue_entries(created);

			-- The sweep query: due, non-failed, ordered by date.
			CREATE INDEX idx_queue_entries_due ON queue_entries(date) WHERE failed = false;
		`,
	}
}
