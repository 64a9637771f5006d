package variables

import (
	"strings"
	"unicode"
)

// DefaultExclusions lists tokens that bypass structured parsing. They
// are resolved contextually at render time, not through the type.field
// mechanism.
var DefaultExclusions = []string{
	"unsubscribe_url",
}

// Parser turns raw template tokens into Variables.
type Parser struct {
	exclusions map[string]struct{}
}

// NewParser creates a parser with the default exclusion list.
func NewParser() *Parser {
	return NewParserWithExclusions(DefaultExclusions)
}

// NewParserWithExclusions creates a parser with a custom exclusion list.
func NewParserWithExclusions(exclusions []string) *Parser {
	set := make(map[string]struct{}, len(exclusions))
	for _, e := range exclusions {
		set[e] = struct{}{}
	}

	return &Parser{exclusions: set}
}

// Parse sanitizes and parses a single template token.
func (p *Parser) Parse(token string) (Variable, error) {
	cleaned := sanitize(token)
	if cleaned == "" {
		return nil, &ParseError{Token: token, Reason: "empty token"}
	}

	if _, excluded := p.exclusions[cleaned]; excluded {
		return ExcludedParsedVariable{VariableString: cleaned}, nil
	}

	name := cleaned

	rest := ""
	if idx := strings.IndexByte(cleaned, '|'); idx >= 0 {
		name = strings.TrimSpace(cleaned[:idx])
		rest = cleaned[idx+1:]
	}

	if name == "" {
		return nil, &ParseError{Token: token, Reason: "missing name segment"}
	}

	dot := strings.IndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return nil, &ParseError{Token: token, Reason: "name must be of the form type.field"}
	}

	parsed := ParsedVariable{
		Name:       name,
		Type:       name[:dot],
		Field:      name[dot+1:],
		Parameters: parseParameters(rest),
	}

	return parsed, nil
}

// sanitize strips markup, normalizes unicode whitespace to plain spaces
// and trims the result.
func sanitize(token string) string {
	var b strings.Builder

	b.Grow(len(token))

	inTag := false

	for _, r := range token {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case inTag:
			// drop tag contents
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	return strings.TrimSpace(b.String())
}

// parseParameters splits the post-pipe remainder into key:value pairs.
// Commas inside single-quoted values do not split, so
// template:'abandoned-cart, extra' stays one parameter.
func parseParameters(rest string) map[string]string {
	params := make(map[string]string)

	for _, pair := range splitOutsideQuotes(rest, ',') {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key := pair
		value := ""

		if idx := strings.IndexByte(pair, ':'); idx >= 0 {
			key = pair[:idx]
			value = pair[idx+1:]
		}

		key = normalizeKey(key)
		if key == "" {
			continue
		}

		params[key] = unquote(strings.TrimSpace(value))
	}

	return params
}

// splitOutsideQuotes splits s on sep, ignoring separators inside
// single-quoted runs.
func splitOutsideQuotes(s string, sep byte) []string {
	var (
		parts  []string
		start  int
		quoted bool
	)

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			quoted = !quoted
		case sep:
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}

	parts = append(parts, s[start:])

	return parts
}

// unquote trims one layer of surrounding single quotes.
func unquote(value string) string {
	if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
		return value[1 : len(value)-1]
	}

	return value
}

// normalizeKey lowercases the key and keeps only safe identifier runes.
func normalizeKey(key string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-':
			b.WriteByte('_')
		}
	}

	return b.String()
}
