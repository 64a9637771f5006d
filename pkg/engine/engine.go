// Package engine wires the scheduling core together: trigger
// notifications resolve into run decisions, due queue entries sweep
// into action runs, and workflows are validated on the way in.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/funnelworks/cadence/pkg/eventbus"
	"github.com/funnelworks/cadence/pkg/events"
	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/persistence"
	"github.com/funnelworks/cadence/pkg/population"
	"github.com/funnelworks/cadence/pkg/queue"
	"github.com/funnelworks/cadence/pkg/quickfilter"
	"github.com/funnelworks/cadence/pkg/rules"
	"github.com/funnelworks/cadence/pkg/timing"
	"github.com/funnelworks/cadence/pkg/tracer"
)

// batchChunkSize bounds one population scan chunk so a sweep iteration
// has predictable cost.
const batchChunkSize = 100

// NotifyOutcome summarizes what a trigger notification resulted in.
type NotifyOutcome string

const (
	NotifyRan          NotifyOutcome = "ran"
	NotifyEnqueued     NotifyOutcome = "enqueued"
	NotifyDeduplicated NotifyOutcome = "deduplicated"
	NotifySkipped      NotifyOutcome = "skipped"
	NotifyDisabled     NotifyOutcome = "disabled"
)

// SweepStats reports one sweep iteration.
type SweepStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Orphaned  int `json:"orphaned"`
	Retained  int `json:"retained"`
}

// Config holds the service's collaborators.
type Config struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Queue       queue.Store
	Resolver    *timing.Resolver
	Registry    *rules.Registry
	Planner     *quickfilter.Planner
	Population  population.Store
	Runner      Runner

	// Publisher, when set, receives run outcome events.
	Publisher eventbus.EventPublisher
}

// Service is the engine core.
type Service struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	queue       queue.Store
	resolver    *timing.Resolver
	registry    *rules.Registry
	planner     *quickfilter.Planner
	population  population.Store
	runner      Runner
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	tracer      trace.Tracer
}

// NewService creates the engine service. Nil Resolver, Registry,
// Planner and Runner fall back to the defaults.
func NewService(cfg Config) *Service {
	if cfg.Resolver == nil {
		cfg.Resolver = timing.NewResolver(timing.SystemClock())
	}

	if cfg.Registry == nil {
		cfg.Registry = rules.DefaultRegistry()
	}

	if cfg.Planner == nil {
		cfg.Planner = quickfilter.NewPlanner(cfg.Registry, quickfilter.DefaultBackends())
	}

	if cfg.Runner == nil {
		cfg.Runner = NewLogRunner(cfg.Logger)
	}

	return &Service{
		logger:      cfg.Logger.With("module", "engine"),
		persistence: cfg.Persistence,
		queue:       cfg.Queue,
		resolver:    cfg.Resolver,
		registry:    cfg.Registry,
		planner:     cfg.Planner,
		population:  cfg.Population,
		runner:      cfg.Runner,
		publisher:   cfg.Publisher,
		validate:    validator.New(),
		tracer:      tracer.Tracer("engine"),
	}
}

// Notify handles one trigger occurrence for a workflow: resolve the
// timing into a decision, then run now, enqueue, or skip. Rule groups
// of non-batched workflows are evaluated here, against the trigger
// data; batched workflows defer evaluation to the population scan.
func (s *Service) Notify(ctx context.Context, workflowID string, trigger models.TriggerContext) (NotifyOutcome, error) {
	ctx, span := tracer.StartSpan(ctx, s.tracer, "engine.notify",
		attribute.String(tracer.WorkflowIDKey, workflowID),
		attribute.String(tracer.SubjectIDKey, trigger.SubjectID),
	)
	defer span.End()

	workflow, err := s.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		tracer.SetError(span, err)

		return "", fmt.Errorf("failed to load workflow: %w", err)
	}

	if !workflow.IsActive() {
		s.logger.DebugContext(ctx, "Trigger ignored, workflow disabled", "workflow_id", workflowID)

		return NotifyDisabled, nil
	}

	if !workflow.Batched {
		matched, err := s.registry.EvaluateGroups(workflow.RuleGroups, workflow.DataType, subjectOf(workflow, trigger))
		if err != nil {
			tracer.SetError(span, err)

			return "", fmt.Errorf("failed to evaluate rules: %w", err)
		}

		if !matched {
			return NotifySkipped, nil
		}
	}

	decision, err := s.resolver.Resolve(workflow.Timing, trigger)
	if err != nil {
		tracer.SetError(span, err)

		return "", fmt.Errorf("failed to resolve timing: %w", err)
	}

	switch decision.Kind {
	case timing.DecideRunNow:
		if err := s.execute(ctx, workflow, trigger); err != nil {
			tracer.SetError(span, err)

			return "", err
		}

		s.publish(ctx, workflow.ID, events.NewRunCompleted(workflow.ID, trigger.SubjectID, "immediate"))

		return NotifyRan, nil

	case timing.DecideRunAt:
		result, err := s.queue.Enqueue(ctx, workflow.ID, decision.DedupKey, decision.At)
		if err != nil {
			tracer.SetError(span, err)

			return "", fmt.Errorf("failed to enqueue run: %w", err)
		}

		if result == queue.EnqueueAlreadyPending {
			return NotifyDeduplicated, nil
		}

		s.logger.InfoContext(ctx, "Run scheduled",
			"workflow_id", workflow.ID, "dedup_key", decision.DedupKey, "run_at", decision.At)

		return NotifyEnqueued, nil

	default:
		s.logger.InfoContext(ctx, "Run skipped",
			"workflow_id", workflow.ID, "reason", string(decision.Reason))

		return NotifySkipped, nil
	}
}

// NotifyTrigger fans a trigger occurrence out to every workflow bound
// to the trigger. One workflow's failure does not block the others.
func (s *Service) NotifyTrigger(ctx context.Context, triggerID string, trigger models.TriggerContext) error {
	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	var firstErr error

	for _, workflow := range workflows {
		if workflow.TriggerID != triggerID {
			continue
		}

		outcome, err := s.Notify(ctx, workflow.ID, trigger)
		if err != nil {
			s.logger.ErrorContext(ctx, "Trigger notification failed",
				"workflow_id", workflow.ID, "trigger_id", triggerID, "error", err)

			if firstErr == nil {
				firstErr = err
			}

			continue
		}

		s.logger.DebugContext(ctx, "Trigger notification handled",
			"workflow_id", workflow.ID, "trigger_id", triggerID, "outcome", string(outcome))
	}

	return firstErr
}

// Sweep processes due queue entries, at most limit. Each entry is
// isolated: one entry's failure is recorded on that entry and never
// aborts the iteration.
func (s *Service) Sweep(ctx context.Context, now time.Time, limit int) (SweepStats, error) {
	ctx, span := tracer.StartSpan(ctx, s.tracer, "engine.sweep")
	defer span.End()

	stats := SweepStats{}

	entries, err := s.queue.DequeueDue(ctx, now, limit)
	if err != nil {
		tracer.SetError(span, err)

		return stats, fmt.Errorf("failed to dequeue due entries: %w", err)
	}

	for _, entry := range entries {
		stats.Processed++

		s.processEntry(ctx, entry, &stats)
	}

	span.SetAttributes(
		attribute.Int("cadence.sweep.processed", stats.Processed),
		attribute.Int("cadence.sweep.failed", stats.Failed),
	)

	return stats, nil
}

// processEntry drives one due entry to a terminal state: removed on
// success or orphan, marked failed on processing errors. Transient
// load errors leave the entry pending for the next sweep.
func (s *Service) processEntry(ctx context.Context, entry *models.QueueEntry, stats *SweepStats) {
	ctx, span := tracer.StartSpan(ctx, s.tracer, "engine.process_entry",
		attribute.Int64(tracer.QueueEntryKey, entry.ID),
		attribute.String(tracer.WorkflowIDKey, entry.WorkflowID),
	)
	defer span.End()

	workflow, err := s.persistence.WorkflowByID(ctx, entry.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			s.logger.WarnContext(ctx, "Removing orphaned queue entry",
				"entry_id", entry.ID, "workflow_id", entry.WorkflowID)
			s.removeEntry(ctx, entry.ID)
			stats.Orphaned++

			return
		}

		tracer.SetError(span, err)
		s.logger.ErrorContext(ctx, "Failed to load workflow, entry retained",
			"entry_id", entry.ID, "workflow_id", entry.WorkflowID, "error", err)
		stats.Retained++

		return
	}

	if !workflow.IsActive() {
		s.markFailed(ctx, entry.ID, models.FailureWorkflowDisabled)
		stats.Failed++

		return
	}

	trigger := models.TriggerContext{SubjectID: subjectFromKey(entry.DedupKey)}

	if err := s.execute(ctx, workflow, trigger); err != nil {
		tracer.SetError(span, err)
		s.logger.ErrorContext(ctx, "Queue entry processing failed",
			"entry_id", entry.ID, "workflow_id", entry.WorkflowID, "error", err)

		code := classifyFailure(err)
		s.markFailed(ctx, entry.ID, code)
		s.publish(ctx, workflow.ID, events.NewRunFailed(workflow.ID, entry.ID, code, err.Error()))
		stats.Failed++

		return
	}

	s.removeEntry(ctx, entry.ID)
	s.publish(ctx, workflow.ID, events.NewRunCompleted(workflow.ID, trigger.SubjectID, "swept"))
	stats.Succeeded++
}

// execute runs the workflow for one occurrence: a population scan for
// batched workflows, a single runner call otherwise.
func (s *Service) execute(ctx context.Context, workflow *models.Workflow, trigger models.TriggerContext) error {
	if workflow.Batched {
		return s.runBatched(ctx, workflow)
	}

	if err := s.runner.Run(ctx, workflow, trigger); err != nil {
		return fmt.Errorf("%w: %w", ErrActionDispatch, err)
	}

	return nil
}

// runBatched evaluates the workflow against its whole population in
// bounded chunks. The narrowing query from the planner only prunes;
// every admitted item still gets full rule evaluation.
func (s *Service) runBatched(ctx context.Context, workflow *models.Workflow) error {
	query, err := s.planner.Plan(workflow.RuleGroups, workflow.DataType)
	if err != nil {
		return fmt.Errorf("failed to plan population query: %w", err)
	}

	var cursor int64

	for {
		page, err := s.population.QueryChunk(ctx, query, cursor, batchChunkSize)
		if err != nil {
			return fmt.Errorf("failed to scan population: %w", err)
		}

		for _, item := range page.Items {
			matched, err := s.registry.EvaluateGroups(workflow.RuleGroups, workflow.DataType, item)
			if err != nil {
				return fmt.Errorf("failed to evaluate rules: %w", err)
			}

			if !matched {
				continue
			}

			trigger := models.TriggerContext{
				SubjectID: fmt.Sprintf("%d", item.ID()),
				Data:      map[string]any{string(workflow.DataType): map[string]any(item)},
			}

			if err := s.runner.Run(ctx, workflow, trigger); err != nil {
				return fmt.Errorf("%w: %w", ErrActionDispatch, err)
			}
		}

		if page.Done {
			return nil
		}

		cursor = page.NextCursor
	}
}

// ValidateWorkflow checks a workflow before it is saved: structural
// validation, timing validity, rule registration and operator support,
// and a population backend for batched workflows.
func (s *Service) ValidateWorkflow(workflow *models.Workflow) error {
	if err := s.validate.Struct(workflow); err != nil {
		var invalid validator.ValidationErrors
		if ok := asValidationErrors(err, &invalid); ok && len(invalid) > 0 {
			first := invalid[0]

			return newValidationError(first.Field(), "failed %q validation", first.Tag())
		}

		return newValidationError("workflow", "%v", err)
	}

	if err := workflow.Timing.Validate(); err != nil {
		return newValidationError("timing", "%v", err)
	}

	for _, group := range workflow.RuleGroups {
		for _, rule := range group.Rules {
			if err := s.registry.ValidateRule(rule); err != nil {
				return newValidationError("rule_groups", "%v", err)
			}
		}
	}

	if workflow.Batched && !s.planner.Supports(workflow.DataType) {
		return newValidationError("data_type", "no population backend for %q", workflow.DataType)
	}

	return nil
}

// SaveWorkflow validates and persists a workflow, assigning an id and
// timestamps when absent.
func (s *Service) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = time.Now().UTC()
	}

	workflow.UpdatedAt = time.Now().UTC()

	if err := s.ValidateWorkflow(workflow); err != nil {
		return err
	}

	if err := s.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Workflow saved", "workflow_id", workflow.ID, "name", workflow.Name)

	return nil
}

// ImportPreset parses a preset document and saves the resulting
// workflow. Presets import disabled unless the document says otherwise.
func (s *Service) ImportPreset(ctx context.Context, document []byte) (*models.Workflow, error) {
	workflow, err := models.ParsePreset(document)
	if err != nil {
		return nil, err
	}

	if err := s.SaveWorkflow(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Workflows lists all workflows.
func (s *Service) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return s.persistence.Workflows(ctx)
}

// WorkflowByID loads one workflow.
func (s *Service) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	return s.persistence.WorkflowByID(ctx, id)
}

// DeleteWorkflow removes a workflow. Its pending queue entries become
// orphans and are removed by the next sweep that sees them.
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	return s.persistence.DeleteWorkflow(ctx, id)
}

// FailedEntries lists terminally failed queue entries.
func (s *Service) FailedEntries(ctx context.Context, limit int) ([]*models.QueueEntry, error) {
	return s.queue.FailedEntries(ctx, limit)
}

// PurgeFailedBefore deletes failed entries older than the cutoff.
func (s *Service) PurgeFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.queue.PurgeFailedBefore(ctx, cutoff)
}

// HealthCheck verifies the service's stores.
func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.persistence.HealthCheck(ctx); err != nil {
		return fmt.Errorf("persistence unhealthy: %w", err)
	}

	if err := s.queue.HealthCheck(ctx); err != nil {
		return fmt.Errorf("queue unhealthy: %w", err)
	}

	return nil
}

// publish sends an event when a publisher is attached. A bus failure
// is logged, never propagated: run outcomes are advisory.
func (s *Service) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event", "event_type", string(event.GetType()), "error", err)
	}
}

func (s *Service) markFailed(ctx context.Context, entryID int64, code int) {
	if err := s.queue.MarkFailed(ctx, entryID, code); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark queue entry failed", "entry_id", entryID, "error", err)
	}
}

// removeEntry removes an entry, tolerating a concurrent removal: the
// absence of the row already means "processed".
func (s *Service) removeEntry(ctx context.Context, entryID int64) {
	err := s.queue.Remove(ctx, entryID)
	if err != nil && !isEntryNotFound(err) {
		s.logger.ErrorContext(ctx, "Failed to remove queue entry", "entry_id", entryID, "error", err)
	}
}

// subjectOf selects the rule-evaluation subject from trigger data: the
// map under the workflow's data type when present, the whole data
// context otherwise.
func subjectOf(workflow *models.Workflow, trigger models.TriggerContext) map[string]any {
	if workflow.DataType != "" {
		if nested, ok := trigger.Data[string(workflow.DataType)].(map[string]any); ok {
			return nested
		}
	}

	return trigger.Data
}

// subjectFromKey recovers the subject id from a dedup key; date-scoped
// keys carry the subject in their first segment.
func subjectFromKey(dedupKey string) string {
	if idx := strings.IndexByte(dedupKey, '|'); idx >= 0 {
		return dedupKey[:idx]
	}

	if dedupKey == "fixed" {
		return ""
	}

	return dedupKey
}
