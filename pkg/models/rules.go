package models

// CompareOperator is the comparison a rule applies between the live value
// of its subject and the expected value configured by the merchant.
type CompareOperator string

const (
	CompareIs          CompareOperator = "is"
	CompareIsNot       CompareOperator = "is_not"
	CompareGreaterThan CompareOperator = "greater_than"
	CompareLessThan    CompareOperator = "less_than"
	CompareContains    CompareOperator = "contains"
	CompareStartsWith  CompareOperator = "starts_with"
	CompareBefore      CompareOperator = "before"
	CompareAfter       CompareOperator = "after"
)

// ValidCompareOperator reports whether op is one of the known operators.
func ValidCompareOperator(op CompareOperator) bool {
	switch op {
	case CompareIs, CompareIsNot, CompareGreaterThan, CompareLessThan,
		CompareContains, CompareStartsWith, CompareBefore, CompareAfter:
		return true
	default:
		return false
	}
}

// Rule is one condition inside a rule group. Name must resolve to a
// registered rule definition; an unresolvable name is a validation error
// at save or parse time, never a runtime skip.
type Rule struct {
	Name            string          `json:"name"             validate:"required"`
	CompareOperator CompareOperator `json:"compare_operator" validate:"required"`
	ExpectedValue   string          `json:"expected_value"`
}

// RuleGroup is an ordered set of rules combined with AND. A workflow's
// full rule set is an ordered set of groups combined with OR.
type RuleGroup struct {
	Rules []Rule `json:"rules" validate:"dive"`
}
