package quickfilter

import (
	"fmt"
	"strings"

	"github.com/funnelworks/cadence/pkg/models"
)

// Query is the planner's output: an OR of AND-groups of clauses over
// one population. It renders to SQL for the Postgres population store
// and evaluates directly for the in-memory one.
type Query struct {
	DataType models.DataType
	Backend  Backend

	// Groups is the OR of AND-groups. Empty when Unfiltered.
	Groups [][]Clause

	// Unfiltered means the rule set admits no narrowing at all; the
	// caller must scan the whole population.
	Unfiltered bool
}

// WhereSQL renders the narrowing predicate as a SQL fragment with $n
// placeholders starting at startArg. An unfiltered query renders to an
// empty fragment and no arguments.
func (q Query) WhereSQL(startArg int) (string, []any) {
	if q.Unfiltered || len(q.Groups) == 0 {
		return "", nil
	}

	var (
		args       []any
		groupFrags []string
		arg        = startArg
	)

	for _, group := range q.Groups {
		frags := make([]string, 0, len(group))

		for _, clause := range group {
			frag, value := clauseSQL(clause, arg)
			frags = append(frags, frag)

			if value != nil {
				args = append(args, value)
				arg++
			}
		}

		groupFrags = append(groupFrags, "("+strings.Join(frags, " AND ")+")")
	}

	return "(" + strings.Join(groupFrags, " OR ") + ")", args
}

func clauseSQL(c Clause, arg int) (string, any) {
	placeholder := fmt.Sprintf("$%d", arg)

	switch c.Operator {
	case models.CompareIs:
		return fmt.Sprintf("%s = %s", c.Column, placeholder), c.Value
	case models.CompareIsNot:
		return fmt.Sprintf("%s <> %s", c.Column, placeholder), c.Value
	case models.CompareGreaterThan, models.CompareAfter:
		return fmt.Sprintf("%s > %s", c.Column, placeholder), c.Value
	case models.CompareLessThan, models.CompareBefore:
		return fmt.Sprintf("%s < %s", c.Column, placeholder), c.Value
	case models.CompareContains:
		return fmt.Sprintf("%s LIKE '%%' || %s || '%%'", c.Column, placeholder), c.Value
	case models.CompareStartsWith:
		return fmt.Sprintf("%s LIKE %s || '%%'", c.Column, placeholder), c.Value
	default:
		// validate() rejects unknown operators before rendering.
		return "TRUE", nil
	}
}

// Matches evaluates the query against an item's column map, with the
// same boolean structure as the SQL rendering.
func (q Query) Matches(item map[string]any) bool {
	if q.Unfiltered || len(q.Groups) == 0 {
		return true
	}

	for _, group := range q.Groups {
		matched := true

		for _, clause := range group {
			if !clause.Matches(item) {
				matched = false

				break
			}
		}

		if matched {
			return true
		}
	}

	return false
}
