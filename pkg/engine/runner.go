package engine

import (
	"context"
	"log/slog"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/variables"
)

// Runner executes a workflow's actions for one subject. The scheduling
// core decides when and for whom; the runner owns the how.
type Runner interface {
	Run(ctx context.Context, workflow *models.Workflow, trigger models.TriggerContext) error
}

// LogRunner renders action templates against the trigger context and
// logs the result. It is the default runner for environments without a
// downstream action runtime attached.
type LogRunner struct {
	logger *slog.Logger
}

// NewLogRunner creates a runner that logs rendered actions.
func NewLogRunner(logger *slog.Logger) *LogRunner {
	return &LogRunner{logger: logger.With("component", "log_runner")}
}

// Run renders each action's settings and logs the dispatch.
func (r *LogRunner) Run(ctx context.Context, workflow *models.Workflow, trigger models.TriggerContext) error {
	renderer := variables.NewRenderer(variables.ContextResolver(trigger.Data))

	for _, action := range workflow.Actions {
		r.logger.InfoContext(ctx, "Dispatching action",
			"workflow_id", workflow.ID,
			"subject_id", trigger.SubjectID,
			"action_type", action.Type,
			"settings", renderer.RenderSettings(action.Settings),
		)
	}

	return nil
}
