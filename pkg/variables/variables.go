// Package variables parses merge-field tokens from action templates into
// structured references the action runtime can resolve. The parser never
// resolves a value itself.
package variables

import "fmt"

// Variable is the result of parsing a template token: either a
// structured ParsedVariable or an ExcludedParsedVariable for tokens that
// are intentionally left to a contextual resolver. The set is closed.
type Variable interface {
	isVariable()
}

// ParsedVariable is a structured merge-field reference such as
// order.total|format:'decimal'.
type ParsedVariable struct {
	// Name is the full type.field identifier, e.g. "order.total".
	Name string

	// Type is the data type segment before the first dot.
	Type string

	// Field is everything after the first dot.
	Field string

	// Parameters holds the key:value pairs after the first pipe.
	// Unknown keys are preserved; which keys are meaningful is the
	// resolver's call, not the parser's.
	Parameters map[string]string
}

func (ParsedVariable) isVariable() {}

// ExcludedParsedVariable is a token that matched the exclusion list and
// is deliberately not given structured parsing (e.g. unsubscribe_url,
// which is resolved by a contextual mechanism downstream).
type ExcludedParsedVariable struct {
	VariableString string
}

func (ExcludedParsedVariable) isVariable() {}

// ParseError reports a malformed token.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse variable %q: %s", e.Token, e.Reason)
}
