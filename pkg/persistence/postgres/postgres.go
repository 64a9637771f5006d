// Package postgres provides the PostgreSQL workflow store. Workflow
// documents (timing, rule groups, actions) are stored as JSONB; the
// columns the engine filters on are first-class.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/persistence"
	"github.com/funnelworks/cadence/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements the workflow store on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence connects, migrates and returns the store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Persistence{
		db:     database,
		logger: logger.With("component", "workflow_postgres_store"),
	}

	migrationManager := sqlbase.NewMigrationManager(store.logger, database, workflowMigrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run workflow migrations: %w", err)
	}

	return store, nil
}

// Workflows returns all workflows.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT id, name, trigger_id, status, batched, data_type, document, created_at, updated_at
		FROM workflows
		ORDER BY created_at ASC
	`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetAll", "", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			p.logger.ErrorContext(ctx, "Failed to close rows", "error", closeErr)
		}
	}()

	var workflows []*models.Workflow

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, persistence.NewWorkflowError("GetAll", "", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewWorkflowError("GetAll", "", err)
	}

	return workflows, nil
}

// WorkflowByID returns one workflow or ErrWorkflowNotFound.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT id, name, trigger_id, status, batched, data_type, document, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`

	workflow, err := scanWorkflow(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// SaveWorkflow upserts a workflow.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	document, err := json.Marshal(workflowDocument{
		Timing:     workflow.Timing,
		RuleGroups: workflow.RuleGroups,
		Actions:    workflow.Actions,
	})
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	query := `
		INSERT INTO workflows (id, name, trigger_id, status, batched, data_type, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			trigger_id = EXCLUDED.trigger_id,
			status = EXCLUDED.status,
			batched = EXCLUDED.batched,
			data_type = EXCLUDED.data_type,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	_, err = p.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.TriggerID,
		workflow.Status,
		workflow.Batched,
		string(workflow.DataType),
		document,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow removes a workflow. Queue entries referencing it are
// left behind; the sweep skips and cleans them.
func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// workflowDocument is the JSONB payload for the parts the engine never
// filters on directly.
type workflowDocument struct {
	Timing     models.WorkflowTiming `json:"timing"`
	RuleGroups []models.RuleGroup    `json:"rule_groups,omitempty"`
	Actions    []models.Action       `json:"actions,omitempty"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		dataType string
		document []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.TriggerID,
		&workflow.Status,
		&workflow.Batched,
		&dataType,
		&document,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.DataType = models.DataType(dataType)

	var doc workflowDocument
	if err := json.Unmarshal(document, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode workflow document: %w", err)
	}

	workflow.Timing = doc.Timing
	workflow.RuleGroups = doc.RuleGroups
	workflow.Actions = doc.Actions

	return &workflow, nil
}

func workflowMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				trigger_id VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL,
				batched BOOLEAN NOT NULL DEFAULT false,
				data_type VARCHAR(32) NOT NULL DEFAULT '',
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_trigger_id ON workflows(trigger_id);
			CREATE INDEX idx_workflows_status ON workflows(status);
		`,
	}
}
