package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Compare applies a compare operator between a live value and an
// expected value, coercing both sides to times, numbers or strings in
// that order. Quick-filter clause evaluation and full rule evaluation
// share this so narrowing can never disagree with the rule it narrows.
func Compare(actual any, op CompareOperator, expected any) bool {
	if at, aok := CoerceTime(actual); aok {
		if et, eok := CoerceTime(expected); eok {
			switch op {
			case CompareBefore, CompareLessThan:
				return at.Before(et)
			case CompareAfter, CompareGreaterThan:
				return at.After(et)
			case CompareIs:
				return at.Equal(et)
			case CompareIsNot:
				return !at.Equal(et)
			}

			return false
		}
	}

	if af, aok := CoerceFloat(actual); aok {
		if ef, eok := CoerceFloat(expected); eok {
			switch op {
			case CompareIs:
				return af == ef
			case CompareIsNot:
				return af != ef
			case CompareGreaterThan:
				return af > ef
			case CompareLessThan:
				return af < ef
			}

			return false
		}
	}

	as := fmt.Sprintf("%v", actual)
	es := fmt.Sprintf("%v", expected)

	switch op {
	case CompareIs:
		return as == es
	case CompareIsNot:
		return as != es
	case CompareContains:
		return strings.Contains(as, es)
	case CompareStartsWith:
		return strings.HasPrefix(as, es)
	case CompareGreaterThan:
		return as > es
	case CompareLessThan:
		return as < es
	default:
		return false
	}
}

// CoerceFloat interprets a value as a float64 where possible.
func CoerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// CoerceTime interprets a value as a time.Time where possible.
func CoerceTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	}

	return time.Time{}, false
}
