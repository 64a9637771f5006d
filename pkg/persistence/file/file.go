// Package file provides a file-based workflow store for development and
// tests. One JSON file per workflow under the root directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/persistence"
)

// Persistence implements the workflow store on the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates the root directory if needed.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.TrimPrefix(root, "file://")

	if err := os.MkdirAll(cleanRoot, 0750); err != nil {
		return nil, fmt.Errorf("failed to create workflow directory: %w", err)
	}

	return &Persistence{root: cleanRoot}, nil
}

// Workflows returns all stored workflows, ordered by creation time.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	paths, err := filepath.Glob(filepath.Join(p.root, "*.json"))
	if err != nil {
		return nil, persistence.NewWorkflowError("GetAll", "", err)
	}

	workflows := make([]*models.Workflow, 0, len(paths))

	for _, path := range paths {
		workflow, err := readWorkflow(path)
		if err != nil {
			return nil, persistence.NewWorkflowError("GetAll", "", err)
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// WorkflowByID returns one workflow or ErrWorkflowNotFound.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, err := readWorkflow(p.path(id))
	if os.IsNotExist(err) {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	return workflow, nil
}

// SaveWorkflow writes the workflow to its JSON file.
func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	if err := os.WriteFile(p.path(workflow.ID), data, 0600); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// DeleteWorkflow removes the workflow file.
func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.path(id))
	if os.IsNotExist(err) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close has nothing to release for file persistence.
func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

func (p *Persistence) path(id string) string {
	return filepath.Join(p.root, id+".json")
}

func readWorkflow(path string) (*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow file %s: %w", path, err)
	}

	return &workflow, nil
}
