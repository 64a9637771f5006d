// Package queue defines the durable, deduplicated run queue: pending
// scheduled runs keyed by (workflow_id, dedup_key) with at-most-once
// semantics per logical occurrence.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/funnelworks/cadence/pkg/models"
)

// EnqueueResult reports whether an enqueue created a new entry or found
// an equivalent one already pending.
type EnqueueResult string

const (
	EnqueueCreated        EnqueueResult = "created"
	EnqueueAlreadyPending EnqueueResult = "already_pending"
)

// ErrEntryNotFound indicates the entry id does not exist (already
// removed, or never existed).
var ErrEntryNotFound = errors.New("queue entry not found")

// Store is the run queue contract. Implementations must make Enqueue
// atomic with respect to the dedup invariant: concurrent enqueues of
// the same (workflowID, dedupKey) yield exactly one stored entry.
type Store interface {
	// Enqueue records a pending run due at runAt.
	Enqueue(ctx context.Context, workflowID, dedupKey string, runAt time.Time) (EnqueueResult, error)

	// DequeueDue returns entries whose run time has passed, oldest
	// first, at most limit. Failed entries are excluded. Reading does
	// not consume: entries stay until Remove or MarkFailed.
	DequeueDue(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error)

	// MarkFailed records a terminal failure. The entry stays visible
	// to operational tooling but is never dequeued again.
	MarkFailed(ctx context.Context, entryID int64, failureCode int) error

	// Remove is the success path; absence of a row is the sole signal
	// of "already processed".
	Remove(ctx context.Context, entryID int64) error

	// FailedEntries lists failed entries for operational tooling.
	FailedEntries(ctx context.Context, limit int) ([]*models.QueueEntry, error)

	// PurgeFailedBefore deletes failed entries created before the
	// cutoff. Retention policy belongs to the operator, not the core.
	PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
