package models

// TriggerContext carries the subject and data of a platform event that
// fired a workflow's trigger. The event-capture layer decides that a
// workflow is relevant; the engine decides when and whether it runs.
type TriggerContext struct {
	// SubjectID identifies the customer/order/subscription the event
	// concerns. Empty for global (non-subject) triggers.
	SubjectID string `json:"subject_id,omitempty"`

	// Data is the event payload, keyed by data type name (e.g.
	// "order", "subscription", "customer") with field maps beneath.
	Data map[string]any `json:"data,omitempty"`
}
