package quickfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelworks/cadence/pkg/models"
)

// stubSource maps rule names to clause sets so planner behavior can be
// tested without the full rule registry.
type stubSource struct {
	sets map[string]ClauseSet
	errs map[string]error
}

func (s stubSource) ClausesFor(rule models.Rule, _ models.DataType) (ClauseSet, error) {
	if err, ok := s.errs[rule.Name]; ok {
		return ClauseSet{}, err
	}

	set, ok := s.sets[rule.Name]
	if !ok {
		return ClauseSet{}, ErrUnknownRule
	}

	return set, nil
}

func group(names ...string) models.RuleGroup {
	rules := make([]models.Rule, 0, len(names))
	for _, name := range names {
		rules = append(rules, models.Rule{Name: name, CompareOperator: models.CompareIs})
	}

	return models.RuleGroup{Rules: rules}
}

func TestPlanner_Plan_GroupStructure(t *testing.T) {
	source := stubSource{sets: map[string]ClauseSet{
		"a": Clauses(Clause{Column: "total", Operator: models.CompareGreaterThan, Value: "100"}),
		"b": Clauses(Clause{Column: "status", Operator: models.CompareIs, Value: "completed"}),
		"c": Clauses(Clause{Column: "country", Operator: models.CompareIs, Value: "NL"}),
	}}

	planner := NewPlanner(source, DefaultBackends())

	// (a AND b) OR (c)
	query, err := planner.Plan(
		[]models.RuleGroup{group("a", "b"), group("c")},
		models.DataTypeOrder,
	)

	require.NoError(t, err)
	assert.False(t, query.Unfiltered)
	require.Len(t, query.Groups, 2)
	assert.Len(t, query.Groups[0], 2)
	assert.Len(t, query.Groups[1], 1)
	assert.Equal(t, "total", query.Groups[0][0].Column)
	assert.Equal(t, "country", query.Groups[1][0].Column)
	assert.Equal(t, "orders", query.Backend.Table)
}

func TestPlanner_Plan_NoOpGroupUnfiltersWholeQuery(t *testing.T) {
	source := stubSource{sets: map[string]ClauseSet{
		"narrowing": Clauses(Clause{Column: "total", Operator: models.CompareGreaterThan, Value: "100"}),
		"noop":      NoOp(),
	}}

	planner := NewPlanner(source, DefaultBackends())

	// The second group contributes nothing, so it admits everything;
	// OR-ing with everything admits everything.
	query, err := planner.Plan(
		[]models.RuleGroup{group("narrowing"), group("noop")},
		models.DataTypeOrder,
	)

	require.NoError(t, err)
	assert.True(t, query.Unfiltered)
	assert.Empty(t, query.Groups)
}

func TestPlanner_Plan_NoOpRuleInsideGroupIsSkipped(t *testing.T) {
	source := stubSource{sets: map[string]ClauseSet{
		"narrowing": Clauses(Clause{Column: "total", Operator: models.CompareGreaterThan, Value: "100"}),
		"noop":      NoOp(),
	}}

	planner := NewPlanner(source, DefaultBackends())

	// The no-op rule inside a group that still narrows does not widen
	// anything: the other clause keeps the group selective.
	query, err := planner.Plan(
		[]models.RuleGroup{group("narrowing", "noop")},
		models.DataTypeOrder,
	)

	require.NoError(t, err)
	assert.False(t, query.Unfiltered)
	require.Len(t, query.Groups, 1)
	assert.Len(t, query.Groups[0], 1)
}

func TestPlanner_Plan_EmptyRuleSetIsUnfiltered(t *testing.T) {
	planner := NewPlanner(stubSource{}, DefaultBackends())

	query, err := planner.Plan(nil, models.DataTypeCustomer)

	require.NoError(t, err)
	assert.True(t, query.Unfiltered)
}

func TestPlanner_Plan_UnsupportedDataType(t *testing.T) {
	planner := NewPlanner(stubSource{}, DefaultBackends())

	_, err := planner.Plan(nil, models.DataType("invoice"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedDataType)
}

func TestPlanner_Plan_UnknownRuleIsAnError(t *testing.T) {
	planner := NewPlanner(stubSource{}, DefaultBackends())

	_, err := planner.Plan([]models.RuleGroup{group("nonexistent")}, models.DataTypeOrder)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRule)
}

func TestPlanner_Plan_MalformedClauseIsAnError(t *testing.T) {
	source := stubSource{sets: map[string]ClauseSet{
		"broken": Clauses(Clause{Column: "", Operator: models.CompareIs, Value: "x"}),
	}}

	planner := NewPlanner(source, DefaultBackends())

	_, err := planner.Plan([]models.RuleGroup{group("broken")}, models.DataTypeOrder)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedClause)
}

func TestPlanner_Supports(t *testing.T) {
	planner := NewPlanner(stubSource{}, DefaultBackends())

	assert.True(t, planner.Supports(models.DataTypeOrder))
	assert.True(t, planner.Supports(models.DataTypeSubscription))
	assert.True(t, planner.Supports(models.DataTypeCustomer))
	assert.False(t, planner.Supports(models.DataType("invoice")))
}
