// Package rules holds the registry of rule definitions and their
// quick-filter capabilities. A rule definition knows how to evaluate a
// configured rule against a subject in full, and optionally how to
// contribute narrowing clauses for its own or other data types.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/quickfilter"
)

// ErrNotRegistered is returned when a rule name has no registered
// definition. Workflow save validation treats this as a hard error.
var ErrNotRegistered = errors.New("rule not registered")

// ErrOperatorUnsupported is returned when a configured rule uses an
// operator its definition does not support.
var ErrOperatorUnsupported = errors.New("operator not supported by rule")

// Definition is one registered rule kind.
type Definition interface {
	Name() string
	DataType() models.DataType
	Operators() []models.CompareOperator

	// Evaluate applies the configured comparison against a subject.
	// The subject is an item of the target data type; fields of
	// related entities live in nested maps keyed by data type name.
	Evaluate(subject map[string]any, target models.DataType, op models.CompareOperator, expected string) (bool, error)
}

// QuickFilterable is the capability of narrowing the rule's own data
// type.
type QuickFilterable interface {
	Clauses(op models.CompareOperator, expected string) quickfilter.ClauseSet
}

// NonPrimaryQuickFilterable is the capability of narrowing a target
// data type other than the rule's own (e.g. a customer rule narrowing
// an order query through a denormalized column).
type NonPrimaryQuickFilterable interface {
	ClausesForTarget(target models.DataType, op models.CompareOperator, expected string) quickfilter.ClauseSet
}

// Registry maps rule names to definitions.
type Registry struct {
	definitions map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Register adds a definition, replacing any previous one of the same
// name.
func (r *Registry) Register(def Definition) {
	r.definitions[def.Name()] = def
}

// Lookup resolves a rule name.
func (r *Registry) Lookup(name string) (Definition, error) {
	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}

	return def, nil
}

// ClausesFor implements quickfilter.ClauseSource: it asks the rule's
// definition for clauses against the target data type, returning the
// no-op marker when the definition supports neither capability for
// that target.
func (r *Registry) ClausesFor(rule models.Rule, target models.DataType) (quickfilter.ClauseSet, error) {
	def, err := r.Lookup(rule.Name)
	if err != nil {
		return quickfilter.ClauseSet{}, fmt.Errorf("%w: %q", quickfilter.ErrUnknownRule, rule.Name)
	}

	if def.DataType() == target {
		if qf, ok := def.(QuickFilterable); ok {
			return qf.Clauses(rule.CompareOperator, rule.ExpectedValue), nil
		}

		return quickfilter.NoOp(), nil
	}

	if np, ok := def.(NonPrimaryQuickFilterable); ok {
		return np.ClausesForTarget(target, rule.CompareOperator, rule.ExpectedValue), nil
	}

	return quickfilter.NoOp(), nil
}

// ValidateRule checks a configured rule against its definition: the
// name must be registered and the operator supported. Called at
// workflow save time so evaluation never sees an unknown rule.
func (r *Registry) ValidateRule(rule models.Rule) error {
	def, err := r.Lookup(rule.Name)
	if err != nil {
		return err
	}

	if !models.ValidCompareOperator(rule.CompareOperator) {
		return fmt.Errorf("%w: rule %q operator %q", ErrOperatorUnsupported, rule.Name, rule.CompareOperator)
	}

	if !supportsOperator(def, rule.CompareOperator) {
		return fmt.Errorf("%w: rule %q operator %q", ErrOperatorUnsupported, rule.Name, rule.CompareOperator)
	}

	return nil
}

// Evaluate runs one rule in full against a subject.
func (r *Registry) Evaluate(rule models.Rule, target models.DataType, subject map[string]any) (bool, error) {
	def, err := r.Lookup(rule.Name)
	if err != nil {
		return false, err
	}

	return def.Evaluate(subject, target, rule.CompareOperator, rule.ExpectedValue)
}

// EvaluateGroups runs the full rule set against a subject: rules within
// a group AND, groups OR. An empty rule set matches everything.
func (r *Registry) EvaluateGroups(groups []models.RuleGroup, target models.DataType, subject map[string]any) (bool, error) {
	if len(groups) == 0 {
		return true, nil
	}

	for _, group := range groups {
		matched := true

		for _, rule := range group.Rules {
			ok, err := r.Evaluate(rule, target, subject)
			if err != nil {
				return false, err
			}

			if !ok {
				matched = false

				break
			}
		}

		if matched {
			return true, nil
		}
	}

	return false, nil
}

// subjectField reads the definition's backing field from a subject of
// the given target type: a direct key when the subject is the rule's
// own data type, otherwise through the nested map keyed by data type
// name. A missing value evaluates as nil (the rule simply won't match).
func subjectField(subject map[string]any, own models.DataType, target models.DataType, field string) any {
	scope := subject

	if own != target {
		nested, ok := subject[string(own)].(map[string]any)
		if !ok {
			return nil
		}

		scope = nested
	}

	var current any = scope

	for _, segment := range strings.Split(field, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current = node[segment]
	}

	return current
}

func supportsOperator(def Definition, op models.CompareOperator) bool {
	for _, candidate := range def.Operators() {
		if candidate == op {
			return true
		}
	}

	return false
}
