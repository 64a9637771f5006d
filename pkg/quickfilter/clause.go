// Package quickfilter turns a workflow's rule groups into a narrowing
// query against a target population. The narrowing is necessary but not
// sufficient: false positives are expected and re-checked by full rule
// evaluation, false negatives are forbidden.
package quickfilter

import (
	"errors"
	"fmt"

	"github.com/funnelworks/cadence/pkg/models"
)

var (
	// ErrUnsupportedDataType is returned when no query backend is
	// registered for the target data type. Callers must not mistake
	// this for "no candidates".
	ErrUnsupportedDataType = errors.New("unsupported data type")

	// ErrMalformedClause indicates a rule implementation produced a
	// clause that does not conform to the contract. This is a broken
	// rule, not a skippable condition.
	ErrMalformedClause = errors.New("malformed quick-filter clause")

	// ErrUnknownRule indicates a rule name with no registered
	// definition reached the planner. Save-time validation should
	// make this impossible.
	ErrUnknownRule = errors.New("unknown rule")
)

// Clause is one column predicate contributed by a rule.
type Clause struct {
	Column   string
	Operator models.CompareOperator
	Value    any
}

func (c Clause) validate() error {
	if c.Column == "" {
		return fmt.Errorf("%w: empty column", ErrMalformedClause)
	}

	if !models.ValidCompareOperator(c.Operator) {
		return fmt.Errorf("%w: operator %q", ErrMalformedClause, c.Operator)
	}

	return nil
}

// ClauseSet is what a rule contributes for a target data type: either
// the distinguished no-op marker (the rule cannot narrow this target)
// or one or more clauses. The zero value is not valid; use NoOp or
// Clauses.
type ClauseSet struct {
	noOp    bool
	clauses []Clause
}

// NoOp returns the marker for a rule that contributes no narrowing.
// The rule is still evaluated in full later.
func NoOp() ClauseSet {
	return ClauseSet{noOp: true}
}

// Clauses returns a set carrying the given clauses.
func Clauses(clauses ...Clause) ClauseSet {
	return ClauseSet{clauses: clauses}
}

// IsNoOp reports whether this set is the no-op marker.
func (s ClauseSet) IsNoOp() bool { return s.noOp }

// List returns the clauses in the set.
func (s ClauseSet) List() []Clause { return s.clauses }

// Matches evaluates a single clause against an item's column values.
// Used by the in-memory backend and by tests comparing planner output
// with brute-force rule evaluation.
func (c Clause) Matches(item map[string]any) bool {
	actual, ok := item[c.Column]
	if !ok {
		// Unknown column on the item: keep the candidate. Narrowing
		// may over-select, never under-select.
		return true
	}

	return models.Compare(actual, c.Operator, c.Value)
}
