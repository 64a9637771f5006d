package engine

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/queue"
	"github.com/funnelworks/cadence/pkg/quickfilter"
	"github.com/funnelworks/cadence/pkg/rules"
)

// ErrActionDispatch wraps runner failures so sweep processing can
// classify them.
var ErrActionDispatch = errors.New("action dispatch failed")

// ValidationError reports why a workflow was rejected at save time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow validation failed: %s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError checks whether an error is a workflow rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	return errors.As(err, target)
}

func isEntryNotFound(err error) bool {
	return errors.Is(err, queue.ErrEntryNotFound)
}

// classifyFailure maps a processing error to the failure code recorded
// on the queue entry.
func classifyFailure(err error) int {
	switch {
	case errors.Is(err, ErrActionDispatch):
		return models.FailureActionDispatch
	case errors.Is(err, quickfilter.ErrUnsupportedDataType),
		errors.Is(err, quickfilter.ErrMalformedClause),
		errors.Is(err, quickfilter.ErrUnknownRule):
		return models.FailurePlanning
	case errors.Is(err, rules.ErrNotRegistered),
		errors.Is(err, rules.ErrOperatorUnsupported):
		return models.FailureRuleEvaluation
	default:
		return models.FailureInternal
	}
}
