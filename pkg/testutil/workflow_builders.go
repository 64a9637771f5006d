// Package testutil provides test data builders.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/funnelworks/cadence/pkg/models"
)

// CreateTestWorkflow creates a workflow with sensible defaults that can
// be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:        uuid.New().String(),
		Name:      "Test Workflow",
		TriggerID: "order.created",
		Status:    models.WorkflowStatusActive,
		Timing:    models.WorkflowTiming{Kind: models.TimingImmediate},
		DataType:  models.DataTypeOrder,
		Actions: []models.Action{
			{Type: "send_email", Settings: map[string]string{"subject": "Hello"}},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithTiming sets the timing policy.
func WithTiming(timing models.WorkflowTiming) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Timing = timing
	}
}

// WithStatus sets the lifecycle status.
func WithStatus(status models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = status
	}
}

// WithRuleGroups sets the rule set.
func WithRuleGroups(groups ...models.RuleGroup) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.RuleGroups = groups
	}
}

// WithBatched marks the workflow as population-batched over a data
// type.
func WithBatched(dataType models.DataType) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Batched = true
		w.DataType = dataType
	}
}

// WithTriggerID sets the bound trigger.
func WithTriggerID(triggerID string) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.TriggerID = triggerID
	}
}

// WithActions sets the action list.
func WithActions(actions ...models.Action) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Actions = actions
	}
}
