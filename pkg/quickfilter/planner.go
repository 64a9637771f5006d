package quickfilter

import (
	"fmt"

	"github.com/funnelworks/cadence/pkg/models"
)

// ClauseSource is the per-rule capability contract. Implementations
// look up the rule definition by name and ask it for clauses against
// the target data type, returning the no-op marker when the rule cannot
// narrow that target. An unknown rule name is an error, not a no-op.
type ClauseSource interface {
	ClausesFor(rule models.Rule, target models.DataType) (ClauseSet, error)
}

// Backend describes the query backend registered for a data type.
type Backend struct {
	Table    string
	IDColumn string
}

// Planner converts rule groups into narrowing queries.
type Planner struct {
	source   ClauseSource
	backends map[models.DataType]Backend
}

// NewPlanner creates a planner over the given clause source and
// backend registry.
func NewPlanner(source ClauseSource, backends map[models.DataType]Backend) *Planner {
	return &Planner{source: source, backends: backends}
}

// DefaultBackends registers the built-in populations.
func DefaultBackends() map[models.DataType]Backend {
	return map[models.DataType]Backend{
		models.DataTypeOrder:        {Table: "orders", IDColumn: "id"},
		models.DataTypeSubscription: {Table: "subscriptions", IDColumn: "id"},
		models.DataTypeCustomer:     {Table: "customers", IDColumn: "id"},
	}
}

// Supports reports whether a query backend is registered for the data
// type.
func (p *Planner) Supports(dataType models.DataType) bool {
	_, ok := p.backends[dataType]

	return ok
}

// Plan builds the narrowing query for the rule groups against the
// target data type, mirroring the rule set's boolean structure exactly:
// clauses within a group AND together, groups OR together. A group in
// which no rule can narrow contributes TRUE to the OR, which makes the
// whole query unfiltered.
func (p *Planner) Plan(groups []models.RuleGroup, target models.DataType) (Query, error) {
	backend, ok := p.backends[target]
	if !ok {
		return Query{}, fmt.Errorf("%w: %q", ErrUnsupportedDataType, target)
	}

	query := Query{DataType: target, Backend: backend}

	if len(groups) == 0 {
		query.Unfiltered = true

		return query, nil
	}

	for _, group := range groups {
		var clauses []Clause

		for _, rule := range group.Rules {
			set, err := p.source.ClausesFor(rule, target)
			if err != nil {
				return Query{}, err
			}

			if set.IsNoOp() {
				continue
			}

			for _, clause := range set.List() {
				if err := clause.validate(); err != nil {
					return Query{}, fmt.Errorf("rule %q: %w", rule.Name, err)
				}

				clauses = append(clauses, clause)
			}
		}

		if len(clauses) == 0 {
			// No rule in this group narrows: the group admits every
			// candidate, so the OR of groups admits every candidate.
			query.Unfiltered = true
			query.Groups = nil

			return query, nil
		}

		query.Groups = append(query.Groups, clauses)
	}

	return query, nil
}
