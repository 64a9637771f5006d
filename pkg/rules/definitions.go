package rules

import (
	"fmt"

	"github.com/funnelworks/cadence/pkg/models"
	"github.com/funnelworks/cadence/pkg/quickfilter"
)

var (
	numericOperators = []models.CompareOperator{
		models.CompareIs, models.CompareIsNot,
		models.CompareGreaterThan, models.CompareLessThan,
	}
	stringOperators = []models.CompareOperator{
		models.CompareIs, models.CompareIsNot,
		models.CompareContains, models.CompareStartsWith,
	}
	dateOperators = []models.CompareOperator{
		models.CompareBefore, models.CompareAfter,
	}
)

// fieldRule evaluates a single subject field with the shared comparison
// semantics. It contributes no quick-filter clauses by itself.
type fieldRule struct {
	name      string
	dataType  models.DataType
	field     string
	operators []models.CompareOperator
}

func (f fieldRule) Name() string                        { return f.name }
func (f fieldRule) DataType() models.DataType           { return f.dataType }
func (f fieldRule) Operators() []models.CompareOperator { return f.operators }

func (f fieldRule) Evaluate(subject map[string]any, target models.DataType, op models.CompareOperator, expected string) (bool, error) {
	if !supportsOperator(f, op) {
		return false, fmt.Errorf("rule %q does not support operator %q", f.name, op)
	}

	value := subjectField(subject, f.dataType, target, f.field)
	if value == nil {
		return false, nil
	}

	return models.Compare(value, op, expected), nil
}

// filterableRule additionally narrows queries over its own data type
// through a backing column.
type filterableRule struct {
	fieldRule

	column string
}

func (f filterableRule) Clauses(op models.CompareOperator, expected string) quickfilter.ClauseSet {
	return quickfilter.Clauses(quickfilter.Clause{
		Column:   f.column,
		Operator: op,
		Value:    expected,
	})
}

// crossFilterableRule can also narrow other data types through
// denormalized columns on their tables.
type crossFilterableRule struct {
	filterableRule

	targetColumns map[models.DataType]string
}

func (c crossFilterableRule) ClausesForTarget(target models.DataType, op models.CompareOperator, expected string) quickfilter.ClauseSet {
	column, ok := c.targetColumns[target]
	if !ok {
		return quickfilter.NoOp()
	}

	return quickfilter.Clauses(quickfilter.Clause{
		Column:   column,
		Operator: op,
		Value:    expected,
	})
}

// DefaultRegistry registers the built-in rule set.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(filterableRule{
		fieldRule: fieldRule{name: "order.total", dataType: models.DataTypeOrder, field: "total", operators: numericOperators},
		column:    "total",
	})

	r.Register(filterableRule{
		fieldRule: fieldRule{name: "order.status", dataType: models.DataTypeOrder, field: "status", operators: stringOperators},
		column:    "status",
	})

	r.Register(filterableRule{
		fieldRule: fieldRule{name: "order.created", dataType: models.DataTypeOrder, field: "created_at", operators: dateOperators},
		column:    "created_at",
	})

	r.Register(crossFilterableRule{
		filterableRule: filterableRule{
			fieldRule: fieldRule{name: "customer.country", dataType: models.DataTypeCustomer, field: "country", operators: stringOperators},
			column:    "country",
		},
		// Orders carry the billing country denormalized, so a customer
		// country rule can still narrow an order query.
		targetColumns: map[models.DataType]string{
			models.DataTypeOrder: "billing_country",
		},
	})

	// Computed from order history; no backing column, so it cannot
	// quick-filter and contributes the no-op marker.
	r.Register(fieldRule{
		name: "customer.order_count", dataType: models.DataTypeCustomer,
		field: "order_count", operators: numericOperators,
	})

	r.Register(filterableRule{
		fieldRule: fieldRule{name: "subscription.status", dataType: models.DataTypeSubscription, field: "status", operators: stringOperators},
		column:    "status",
	})

	r.Register(filterableRule{
		fieldRule: fieldRule{name: "subscription.next_payment", dataType: models.DataTypeSubscription, field: "next_payment_at", operators: dateOperators},
		column:    "next_payment_at",
	})

	return r
}
