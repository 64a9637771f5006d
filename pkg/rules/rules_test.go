package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelworks/cadence/pkg/models"
)

func TestRegistry_Lookup(t *testing.T) {
	registry := DefaultRegistry()

	def, err := registry.Lookup("order.total")
	require.NoError(t, err)
	assert.Equal(t, "order.total", def.Name())
	assert.Equal(t, models.DataTypeOrder, def.DataType())

	_, err = registry.Lookup("order.nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_ValidateRule(t *testing.T) {
	registry := DefaultRegistry()

	testCases := []struct {
		name    string
		rule    models.Rule
		wantErr error
	}{
		{
			name: "valid numeric rule",
			rule: models.Rule{Name: "order.total", CompareOperator: models.CompareGreaterThan, ExpectedValue: "100"},
		},
		{
			name: "valid date rule",
			rule: models.Rule{Name: "subscription.next_payment", CompareOperator: models.CompareBefore, ExpectedValue: "2026-12-01"},
		},
		{
			name:    "unknown rule name",
			rule:    models.Rule{Name: "order.weight", CompareOperator: models.CompareIs},
			wantErr: ErrNotRegistered,
		},
		{
			name:    "operator not in definition's set",
			rule:    models.Rule{Name: "order.total", CompareOperator: models.CompareContains, ExpectedValue: "1"},
			wantErr: ErrOperatorUnsupported,
		},
		{
			name:    "operator unknown entirely",
			rule:    models.Rule{Name: "order.total", CompareOperator: "resembles"},
			wantErr: ErrOperatorUnsupported,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := registry.ValidateRule(tc.rule)

			if tc.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestRegistry_Evaluate(t *testing.T) {
	registry := DefaultRegistry()

	order := map[string]any{
		"total":  120.0,
		"status": "completed",
		"customer": map[string]any{
			"country":     "NL",
			"order_count": 5,
		},
	}

	testCases := []struct {
		name string
		rule models.Rule
		want bool
	}{
		{
			name: "own field matches",
			rule: models.Rule{Name: "order.total", CompareOperator: models.CompareGreaterThan, ExpectedValue: "100"},
			want: true,
		},
		{
			name: "own field does not match",
			rule: models.Rule{Name: "order.status", CompareOperator: models.CompareIs, ExpectedValue: "refunded"},
			want: false,
		},
		{
			name: "related entity field through nested map",
			rule: models.Rule{Name: "customer.country", CompareOperator: models.CompareIs, ExpectedValue: "NL"},
			want: true,
		},
		{
			name: "computed related field",
			rule: models.Rule{Name: "customer.order_count", CompareOperator: models.CompareGreaterThan, ExpectedValue: "3"},
			want: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := registry.Evaluate(tc.rule, models.DataTypeOrder, order)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRegistry_Evaluate_MissingValueIsFalseNotError(t *testing.T) {
	registry := DefaultRegistry()

	got, err := registry.Evaluate(
		models.Rule{Name: "order.total", CompareOperator: models.CompareGreaterThan, ExpectedValue: "10"},
		models.DataTypeOrder,
		map[string]any{"status": "completed"},
	)

	require.NoError(t, err)
	assert.False(t, got)
}

func TestRegistry_EvaluateGroups(t *testing.T) {
	registry := DefaultRegistry()

	bigOrder := models.RuleGroup{Rules: []models.Rule{
		{Name: "order.total", CompareOperator: models.CompareGreaterThan, ExpectedValue: "100"},
		{Name: "order.status", CompareOperator: models.CompareIs, ExpectedValue: "completed"},
	}}
	dutchOrder := models.RuleGroup{Rules: []models.Rule{
		{Name: "customer.country", CompareOperator: models.CompareIs, ExpectedValue: "NL"},
	}}

	groups := []models.RuleGroup{bigOrder, dutchOrder}

	testCases := []struct {
		name    string
		subject map[string]any
		want    bool
	}{
		{
			name:    "first group matches",
			subject: map[string]any{"total": 200.0, "status": "completed", "customer": map[string]any{"country": "DE"}},
			want:    true,
		},
		{
			name:    "second group matches",
			subject: map[string]any{"total": 20.0, "status": "pending", "customer": map[string]any{"country": "NL"}},
			want:    true,
		},
		{
			name:    "no group matches",
			subject: map[string]any{"total": 20.0, "status": "pending", "customer": map[string]any{"country": "DE"}},
			want:    false,
		},
		{
			name:    "half of an AND group is not enough",
			subject: map[string]any{"total": 200.0, "status": "pending", "customer": map[string]any{"country": "DE"}},
			want:    false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := registry.EvaluateGroups(groups, models.DataTypeOrder, tc.subject)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("empty rule set matches everything", func(t *testing.T) {
		got, err := registry.EvaluateGroups(nil, models.DataTypeOrder, map[string]any{})

		require.NoError(t, err)
		assert.True(t, got)
	})
}

func TestRegistry_ClausesFor(t *testing.T) {
	registry := DefaultRegistry()

	t.Run("filterable rule narrows its own type", func(t *testing.T) {
		set, err := registry.ClausesFor(
			models.Rule{Name: "order.total", CompareOperator: models.CompareGreaterThan, ExpectedValue: "100"},
			models.DataTypeOrder,
		)

		require.NoError(t, err)
		assert.False(t, set.IsNoOp())
		require.Len(t, set.List(), 1)
		assert.Equal(t, "total", set.List()[0].Column)
	})

	t.Run("cross-filterable rule narrows another type", func(t *testing.T) {
		set, err := registry.ClausesFor(
			models.Rule{Name: "customer.country", CompareOperator: models.CompareIs, ExpectedValue: "NL"},
			models.DataTypeOrder,
		)

		require.NoError(t, err)
		assert.False(t, set.IsNoOp())
		require.Len(t, set.List(), 1)
		assert.Equal(t, "billing_country", set.List()[0].Column)
	})

	t.Run("cross-filterable rule without a column for the target", func(t *testing.T) {
		set, err := registry.ClausesFor(
			models.Rule{Name: "customer.country", CompareOperator: models.CompareIs, ExpectedValue: "NL"},
			models.DataTypeSubscription,
		)

		require.NoError(t, err)
		assert.True(t, set.IsNoOp())
	})

	t.Run("computed rule never narrows", func(t *testing.T) {
		set, err := registry.ClausesFor(
			models.Rule{Name: "customer.order_count", CompareOperator: models.CompareGreaterThan, ExpectedValue: "3"},
			models.DataTypeCustomer,
		)

		require.NoError(t, err)
		assert.True(t, set.IsNoOp())
	})

	t.Run("unknown rule is an error", func(t *testing.T) {
		_, err := registry.ClausesFor(
			models.Rule{Name: "order.weight", CompareOperator: models.CompareIs},
			models.DataTypeOrder,
		)

		require.Error(t, err)
	})
}
