// Package timing converts a workflow's timing policy plus a triggering
// event into a concrete run decision: run now, run at a computed time
// with a dedup key, or skip this occurrence.
package timing

import (
	"fmt"
	"strings"
	"time"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/variables"
)

// DecisionKind discriminates RunDecision variants.
type DecisionKind string

const (
	DecideRunNow DecisionKind = "run_now"
	DecideRunAt  DecisionKind = "run_at"
	DecideSkip   DecisionKind = "skip"
)

// SkipReason explains a Skip decision.
type SkipReason string

const (
	// SkipExpired: a Fixed timing whose datetime had already elapsed
	// when first evaluated. Policy: the workflow never fires.
	SkipExpired SkipReason = "expired"

	// SkipUnresolved: a Variable timing reference could not be
	// resolved against the trigger context. Recoverable; the
	// triggering event itself is unaffected.
	SkipUnresolved SkipReason = "unresolved_variable"
)

// RunDecision is the resolver's output. Enqueueing is the caller's
// responsibility; resolving has no side effects.
type RunDecision struct {
	Kind     DecisionKind
	At       time.Time
	DedupKey string
	Reason   SkipReason
}

// Resolver computes run decisions. It depends only on a clock and the
// variable parser used for Variable timing references.
type Resolver struct {
	clock  Clock
	parser *variables.Parser
}

// NewResolver creates a resolver with the given clock.
func NewResolver(clock Clock) *Resolver {
	return &Resolver{
		clock:  clock,
		parser: variables.NewParser(),
	}
}

// dateKeyFormat is the date portion embedded in dedup keys so a
// workflow cannot schedule twice for the same calendar day.
const dateKeyFormat = "2006-01-02"

// Resolve computes the run decision for one trigger occurrence.
// Timings are validated at workflow save time, so an unknown kind here
// is a programming error and is returned as such.
func (r *Resolver) Resolve(t models.WorkflowTiming, trigger models.TriggerContext) (RunDecision, error) {
	now := r.clock.Now()

	switch t.Kind {
	case models.TimingImmediate:
		return RunDecision{Kind: DecideRunNow}, nil

	case models.TimingDelayed:
		// Zero or unset delay means "no delay", not an error.
		delay := t.Delay()
		if delay == 0 {
			return RunDecision{Kind: DecideRunNow}, nil
		}

		return RunDecision{
			Kind:     DecideRunAt,
			At:       now.Add(delay),
			DedupKey: trigger.SubjectID,
		}, nil

	case models.TimingScheduled:
		at := nextScheduledOccurrence(t, now)

		return RunDecision{
			Kind:     DecideRunAt,
			At:       at,
			DedupKey: joinKey(trigger.SubjectID, at.Format(dateKeyFormat)),
		}, nil

	case models.TimingFixed:
		if !t.At.After(now) {
			return RunDecision{Kind: DecideSkip, Reason: SkipExpired}, nil
		}

		// Fires once, globally, not per subject.
		return RunDecision{
			Kind:     DecideRunAt,
			At:       t.At,
			DedupKey: "fixed",
		}, nil

	case models.TimingVariable:
		at, ok := r.resolveVariableTime(t.VariableRef, trigger)
		if !ok {
			return RunDecision{Kind: DecideSkip, Reason: SkipUnresolved}, nil
		}

		return RunDecision{
			Kind:     DecideRunAt,
			At:       at,
			DedupKey: joinKey(trigger.SubjectID, at.Format(dateKeyFormat)),
		}, nil

	default:
		return RunDecision{}, fmt.Errorf("%w: %q", models.ErrUnknownTimingKind, t.Kind)
	}
}

// nextScheduledOccurrence computes the next wall-clock occurrence of
// Hour:Minute on one of the configured days, on or after now plus the
// configured delay, strictly in the future. If the time of day has
// already passed it rolls to the next eligible day.
func nextScheduledOccurrence(t models.WorkflowTiming, now time.Time) time.Time {
	earliest := now.Add(t.Delay())

	// Eight iterations always suffice: a full weekday cycle plus the
	// case where today's time has already passed.
	for offset := 0; offset <= 8; offset++ {
		day := earliest.AddDate(0, 0, offset)

		candidate := time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, now.Location())
		if candidate.Before(earliest) || !candidate.After(now) {
			continue
		}

		if !t.RunsOn(candidate.Weekday()) {
			continue
		}

		return candidate
	}

	// Unreachable for validated timings.
	return earliest
}

// resolveVariableTime resolves a variable reference such as
// "subscription.next_payment|modify:'-72h'" against the trigger data.
// Any failure is a recoverable skip, reported via ok=false.
func (r *Resolver) resolveVariableTime(ref string, trigger models.TriggerContext) (time.Time, bool) {
	parsed, err := r.parser.Parse(ref)
	if err != nil {
		return time.Time{}, false
	}

	variable, ok := parsed.(variables.ParsedVariable)
	if !ok {
		return time.Time{}, false
	}

	value, ok := lookupField(trigger.Data, variable.Type, variable.Field)
	if !ok {
		return time.Time{}, false
	}

	at, ok := coerceTime(value)
	if !ok {
		return time.Time{}, false
	}

	if modify, exists := variable.Parameters["modify"]; exists {
		offset, err := time.ParseDuration(modify)
		if err != nil {
			return time.Time{}, false
		}

		at = at.Add(offset)
	}

	return at, true
}

// lookupField walks trigger data: top level keyed by data type, then a
// dot-separated field path beneath it.
func lookupField(data map[string]any, dataType, field string) (any, bool) {
	if data == nil {
		return nil, false
	}

	current, ok := data[dataType]
	if !ok {
		return nil, false
	}

	for _, segment := range strings.Split(field, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func coerceTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if at, err := time.Parse(layout, v); err == nil {
				return at, true
			}
		}

		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func joinKey(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))

	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	return strings.Join(nonEmpty, "|")
}
