// Package models defines the core domain models for the rule-driven
// marketing-automation engine: workflows, timing policies, rule groups
// and queue entries.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"   // Evaluated on triggers
	WorkflowStatusDisabled WorkflowStatus = "disabled" // Never runs
)

// DataType identifies the population a batched workflow (or a rule's
// quick filter) targets.
type DataType string

const (
	DataTypeOrder        DataType = "order"
	DataTypeSubscription DataType = "subscription"
	DataTypeCustomer     DataType = "customer"
)

// Workflow is the top-level automation unit: a trigger, a boolean rule
// set, a timing policy and a list of actions. The engine decides when
// and for whom it runs; action execution is downstream.
type Workflow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"       validate:"required,min=3"`
	TriggerID string         `json:"trigger_id" validate:"required"`
	Status    WorkflowStatus `json:"status"     validate:"required,oneof=active disabled"`

	Timing     WorkflowTiming `json:"timing"`
	RuleGroups []RuleGroup    `json:"rule_groups,omitempty" validate:"dive"`

	// Batched workflows are evaluated against a whole population in
	// chunked passes instead of one subject per trigger.
	Batched  bool     `json:"batched,omitempty"`
	DataType DataType `json:"data_type,omitempty"`

	// Actions are opaque to the scheduling core; the action runtime
	// interprets them when a run fires.
	Actions []Action `json:"actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Action is an action definition carried on the workflow. Templates may
// contain merge-field variables resolved at render time.
type Action struct {
	Type     string            `json:"type" validate:"required"`
	Settings map[string]string `json:"settings,omitempty"`
}

// IsActive reports whether the workflow should be evaluated at all.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}
