package models

import "time"

// Failure codes recorded on a queue entry when processing raises. The
// code identifies the category of the failure for operational tooling;
// a failed entry is terminal and is never re-driven.
const (
	FailureNone             = 0
	FailureWorkflowMissing  = 1
	FailureWorkflowDisabled = 2
	FailureRuleEvaluation   = 3
	FailurePlanning         = 4
	FailureActionDispatch   = 5
	FailureInternal         = 9
)

// QueueEntry is one pending scheduled run. The existence of a row is the
// definition of "pending": success removes the row, failure marks it and
// leaves it visible to tooling only.
type QueueEntry struct {
	ID         int64  `json:"id"`
	WorkflowID string `json:"workflow_id"`

	// DedupKey identifies the logical occurrence this run corresponds
	// to. (WorkflowID, DedupKey) is unique in the store.
	DedupKey string `json:"dedup_key"`

	// Date is the logical due time of the run.
	Date time.Time `json:"date"`

	CreatedAt   time.Time `json:"created_at"`
	Failed      bool      `json:"failed"`
	FailureCode int       `json:"failure_code"`
}

// IsDue reports whether the entry's run time has passed.
func (e *QueueEntry) IsDue(now time.Time) bool {
	return !e.Failed && !e.Date.After(now)
}
