package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelworks/cadence/pkg/models"
	filepersistence "github.com/funnelworks/cadence/pkg/persistence/file"
	"github.com/funnelworks/cadence/pkg/population"
	memorypopulation "github.com/funnelworks/cadence/pkg/population/memory"
	filequeue "github.com/funnelworks/cadence/pkg/queue/file"
	"github.com/funnelworks/cadence/pkg/testutil"
	"github.com/funnelworks/cadence/pkg/timing"
)

var engineNow = time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)

// recordingRunner captures runs and can be told to fail per workflow.
type recordingRunner struct {
	runs    []recordedRun
	failFor map[string]error
}

type recordedRun struct {
	workflowID string
	subjectID  string
}

func (r *recordingRunner) Run(_ context.Context, workflow *models.Workflow, trigger models.TriggerContext) error {
	if err, ok := r.failFor[workflow.ID]; ok {
		return err
	}

	r.runs = append(r.runs, recordedRun{workflowID: workflow.ID, subjectID: trigger.SubjectID})

	return nil
}

type testEnv struct {
	service    *Service
	queue      *filequeue.Store
	population *memorypopulation.Store
	runner     *recordingRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	persistence, err := filepersistence.NewPersistence(t.TempDir())
	require.NoError(t, err)

	queueStore, err := filequeue.NewStore(t.TempDir())
	require.NoError(t, err)

	populationStore := memorypopulation.NewStore()
	runner := &recordingRunner{failFor: map[string]error{}}

	service := NewService(Config{
		Logger:      logger,
		Persistence: persistence,
		Queue:       queueStore,
		Resolver:    timing.NewResolver(timing.FixedClock(engineNow)),
		Population:  populationStore,
		Runner:      runner,
	})

	return &testEnv{
		service:    service,
		queue:      queueStore,
		population: populationStore,
		runner:     runner,
	}
}

func (e *testEnv) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, e.service.SaveWorkflow(context.Background(), workflow))
}

func TestService_Notify_ImmediateRuns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow()
	env.saveWorkflow(t, workflow)

	outcome, err := env.service.Notify(ctx, workflow.ID, models.TriggerContext{SubjectID: "order-7"})

	require.NoError(t, err)
	assert.Equal(t, NotifyRan, outcome)
	require.Len(t, env.runner.runs, 1)
	assert.Equal(t, workflow.ID, env.runner.runs[0].workflowID)
	assert.Equal(t, "order-7", env.runner.runs[0].subjectID)
}

func TestService_Notify_DelayedEnqueuesAndDedups(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(testutil.WithTiming(models.WorkflowTiming{
		Kind: models.TimingDelayed, DelayValue: 4, DelayUnit: models.DelayHour,
	}))
	env.saveWorkflow(t, workflow)

	outcome, err := env.service.Notify(ctx, workflow.ID, models.TriggerContext{SubjectID: "order-7"})
	require.NoError(t, err)
	assert.Equal(t, NotifyEnqueued, outcome)
	assert.Empty(t, env.runner.runs)

	// A second occurrence for the same subject is absorbed while the
	// first is still pending.
	outcome, err = env.service.Notify(ctx, workflow.ID, models.TriggerContext{SubjectID: "order-7"})
	require.NoError(t, err)
	assert.Equal(t, NotifyDeduplicated, outcome)

	due, err := env.queue.DequeueDue(ctx, engineNow.Add(5*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "order-7", due[0].DedupKey)
}

func TestService_Notify_DisabledWorkflow(t *testing.T) {
	env := newTestEnv(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithStatus(models.WorkflowStatusDisabled))
	require.NoError(t, env.service.SaveWorkflow(context.Background(), workflow))

	outcome, err := env.service.Notify(context.Background(), workflow.ID, models.TriggerContext{SubjectID: "order-7"})

	require.NoError(t, err)
	assert.Equal(t, NotifyDisabled, outcome)
	assert.Empty(t, env.runner.runs)
}

func TestService_Notify_RulesNotMatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(testutil.WithRuleGroups(models.RuleGroup{
		Rules: []models.Rule{
			{Name: "order.total", CompareOperator: models.CompareGreaterThan, ExpectedValue: "100"},
		},
	}))
	env.saveWorkflow(t, workflow)

	trigger := models.TriggerContext{
		SubjectID: "order-7",
		Data:      map[string]any{"order": map[string]any{"total": 20.0}},
	}

	outcome, err := env.service.Notify(ctx, workflow.ID, trigger)
	require.NoError(t, err)
	assert.Equal(t, NotifySkipped, outcome)
	assert.Empty(t, env.runner.runs)

	// The same workflow runs when the rules match.
	trigger.Data = map[string]any{"order": map[string]any{"total": 200.0}}

	outcome, err = env.service.Notify(ctx, workflow.ID, trigger)
	require.NoError(t, err)
	assert.Equal(t, NotifyRan, outcome)
	assert.Len(t, env.runner.runs, 1)
}

func TestService_Notify_ExpiredFixedTimingSkips(t *testing.T) {
	env := newTestEnv(t)

	workflow := testutil.CreateTestWorkflow(testutil.WithTiming(models.WorkflowTiming{
		Kind: models.TimingFixed, At: engineNow.Add(-time.Hour),
	}))
	require.NoError(t, env.service.SaveWorkflow(context.Background(), workflow))

	outcome, err := env.service.Notify(context.Background(), workflow.ID, models.TriggerContext{SubjectID: "order-7"})

	require.NoError(t, err)
	assert.Equal(t, NotifySkipped, outcome)
	assert.Empty(t, env.runner.runs)
}

func TestService_NotifyTrigger_FansOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := testutil.CreateTestWorkflow(testutil.WithTriggerID("order.created"))
	second := testutil.CreateTestWorkflow(testutil.WithTriggerID("order.created"))
	other := testutil.CreateTestWorkflow(testutil.WithTriggerID("cart.abandoned"))

	env.saveWorkflow(t, first)
	env.saveWorkflow(t, second)
	env.saveWorkflow(t, other)

	err := env.service.NotifyTrigger(ctx, "order.created", models.TriggerContext{SubjectID: "order-7"})
	require.NoError(t, err)

	require.Len(t, env.runner.runs, 2)

	seen := map[string]bool{}
	for _, run := range env.runner.runs {
		seen[run.workflowID] = true
	}

	assert.True(t, seen[first.ID])
	assert.True(t, seen[second.ID])
	assert.False(t, seen[other.ID])
}

func TestService_Sweep_RunsDueEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(testutil.WithTiming(models.WorkflowTiming{
		Kind: models.TimingDelayed, DelayValue: 4, DelayUnit: models.DelayHour,
	}))
	env.saveWorkflow(t, workflow)

	_, err := env.service.Notify(ctx, workflow.ID, models.TriggerContext{SubjectID: "order-7"})
	require.NoError(t, err)

	// Not due yet.
	stats, err := env.service.Sweep(ctx, engineNow.Add(time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)

	// Due now: the run fires with the subject recovered from the entry.
	stats, err = env.service.Sweep(ctx, engineNow.Add(5*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)

	require.Len(t, env.runner.runs, 1)
	assert.Equal(t, "order-7", env.runner.runs[0].subjectID)

	// The entry is gone; the next sweep sees nothing.
	stats, err = env.service.Sweep(ctx, engineNow.Add(5*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
}

func TestService_Sweep_OrphanedEntryIsRemoved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.queue.Enqueue(ctx, "deleted-workflow", "order-7", engineNow.Add(-time.Hour))
	require.NoError(t, err)

	stats, err := env.service.Sweep(ctx, engineNow, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Orphaned)
	assert.Empty(t, env.runner.runs)

	// Removed, not failed: tooling sees nothing left behind.
	failed, err := env.queue.FailedEntries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)

	due, err := env.queue.DequeueDue(ctx, engineNow, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestService_Sweep_DisabledWorkflowFailsEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow(testutil.WithStatus(models.WorkflowStatusDisabled))
	env.saveWorkflow(t, workflow)

	_, err := env.queue.Enqueue(ctx, workflow.ID, "order-7", engineNow.Add(-time.Hour))
	require.NoError(t, err)

	stats, err := env.service.Sweep(ctx, engineNow, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	failed, err := env.queue.FailedEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.FailureWorkflowDisabled, failed[0].FailureCode)
}

func TestService_Sweep_FailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	broken := testutil.CreateTestWorkflow()
	healthy := testutil.CreateTestWorkflow()
	env.saveWorkflow(t, broken)
	env.saveWorkflow(t, healthy)

	env.runner.failFor[broken.ID] = errors.New("smtp connection refused")

	_, err := env.queue.Enqueue(ctx, broken.ID, "order-1", engineNow.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = env.queue.Enqueue(ctx, healthy.ID, "order-2", engineNow.Add(-time.Hour))
	require.NoError(t, err)

	stats, err := env.service.Sweep(ctx, engineNow, 100)
	require.NoError(t, err)

	// One entry's failure never blocks the rest of the batch.
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)

	require.Len(t, env.runner.runs, 1)
	assert.Equal(t, "order-2", env.runner.runs[0].subjectID)

	failed, err := env.queue.FailedEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.FailureActionDispatch, failed[0].FailureCode)
	assert.Equal(t, broken.ID, failed[0].WorkflowID)
}

func TestService_Sweep_SubjectRecoveredFromDateScopedKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow()
	env.saveWorkflow(t, workflow)

	_, err := env.queue.Enqueue(ctx, workflow.ID, "sub-5|2026-08-26", engineNow.Add(-time.Hour))
	require.NoError(t, err)

	_, err = env.service.Sweep(ctx, engineNow, 100)
	require.NoError(t, err)

	require.Len(t, env.runner.runs, 1)
	assert.Equal(t, "sub-5", env.runner.runs[0].subjectID)
}

func TestService_RunBatched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 250 orders force multiple population chunks.
	for i := 1; i <= 250; i++ {
		total := 20.0
		if i%5 == 0 {
			total = 200.0
		}

		env.population.Add(models.DataTypeOrder, population.Item{
			"id":     int64(i),
			"total":  total,
			"status": "completed",
		})
	}

	workflow := testutil.CreateTestWorkflow(
		testutil.WithBatched(models.DataTypeOrder),
		testutil.WithRuleGroups(models.RuleGroup{
			Rules: []models.Rule{
				{Name: "order.total", CompareOperator: models.CompareGreaterThan, ExpectedValue: "100"},
			},
		}),
	)
	env.saveWorkflow(t, workflow)

	outcome, err := env.service.Notify(ctx, workflow.ID, models.TriggerContext{})
	require.NoError(t, err)
	assert.Equal(t, NotifyRan, outcome)

	// Every fifth order matched, across chunk boundaries.
	assert.Len(t, env.runner.runs, 50)
}

func TestService_ValidateWorkflow(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name     string
		workflow *models.Workflow
	}{
		{
			name:     "name too short",
			workflow: testutil.CreateTestWorkflow(func(w *models.Workflow) { w.Name = "ab" }),
		},
		{
			name:     "missing trigger",
			workflow: testutil.CreateTestWorkflow(testutil.WithTriggerID("")),
		},
		{
			name: "invalid timing",
			workflow: testutil.CreateTestWorkflow(testutil.WithTiming(models.WorkflowTiming{
				Kind: models.TimingScheduled, Hour: 23,
			})),
		},
		{
			name: "unknown rule",
			workflow: testutil.CreateTestWorkflow(testutil.WithRuleGroups(models.RuleGroup{
				Rules: []models.Rule{{Name: "order.weight", CompareOperator: models.CompareIs}},
			})),
		},
		{
			name: "unsupported operator",
			workflow: testutil.CreateTestWorkflow(testutil.WithRuleGroups(models.RuleGroup{
				Rules: []models.Rule{{Name: "order.total", CompareOperator: models.CompareContains, ExpectedValue: "1"}},
			})),
		},
		{
			name:     "batched without population backend",
			workflow: testutil.CreateTestWorkflow(testutil.WithBatched(models.DataType("invoice"))),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := env.service.SaveWorkflow(context.Background(), tc.workflow)

			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}

	t.Run("valid workflow passes", func(t *testing.T) {
		err := env.service.ValidateWorkflow(testutil.CreateTestWorkflow())
		require.NoError(t, err)
	})
}

func TestService_SaveWorkflow_AssignsIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	workflow := testutil.CreateTestWorkflow()
	workflow.ID = ""
	workflow.CreatedAt = time.Time{}
	workflow.UpdatedAt = time.Time{}

	require.NoError(t, env.service.SaveWorkflow(ctx, workflow))

	assert.NotEmpty(t, workflow.ID)
	assert.False(t, workflow.CreatedAt.IsZero())
	assert.False(t, workflow.UpdatedAt.IsZero())

	fetched, err := env.service.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, fetched.Name)
}

func TestService_ImportPreset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	document := []byte(`{
		"name": "Abandoned cart reminder",
		"trigger_id": "cart.abandoned",
		"timing": {"kind": "delayed", "delay_value": 4, "delay_unit": "hour"},
		"actions": [{"type": "send_email", "settings": {"template": "abandoned-cart"}}]
	}`)

	workflow, err := env.service.ImportPreset(ctx, document)
	require.NoError(t, err)
	require.NotNil(t, workflow)

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, models.WorkflowStatusDisabled, workflow.Status)

	fetched, err := env.service.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Abandoned cart reminder", fetched.Name)

	t.Run("invalid preset is rejected", func(t *testing.T) {
		_, err := env.service.ImportPreset(ctx, []byte(`{"name": "No trigger"}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrInvalidPreset)
	})
}
