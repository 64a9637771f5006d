package variables

import (
	"fmt"
	"strings"
)

// ValueResolver turns a parsed variable into its rendered value. The
// boolean reports whether the resolver could produce a value; an
// unresolvable variable renders as empty.
type ValueResolver func(v Variable) (string, bool)

// Renderer expands {{ token }} merge fields in action templates.
type Renderer struct {
	parser  *Parser
	resolve ValueResolver
}

// NewRenderer creates a renderer with the default parser.
func NewRenderer(resolve ValueResolver) *Renderer {
	return &Renderer{parser: NewParser(), resolve: resolve}
}

// ContextResolver resolves structured variables against trigger data:
// the top level is keyed by data type, the field is a dot path beneath
// it. Excluded variables are left to the caller and resolve as false.
func ContextResolver(data map[string]any) ValueResolver {
	return func(v Variable) (string, bool) {
		parsed, ok := v.(ParsedVariable)
		if !ok {
			return "", false
		}

		current, ok := data[parsed.Type]
		if !ok {
			return "", false
		}

		for _, segment := range strings.Split(parsed.Field, ".") {
			node, isMap := current.(map[string]any)
			if !isMap {
				return "", false
			}

			current, ok = node[segment]
			if !ok {
				return "", false
			}
		}

		return fmt.Sprintf("%v", current), true
	}
}

// Render expands every {{ token }} in the template. Malformed tokens
// and unresolved variables render as empty strings rather than failing
// the whole template; a broken merge field should not block a send.
func (r *Renderer) Render(template string) string {
	var b strings.Builder

	b.Grow(len(template))

	rest := template

	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			b.WriteString(rest)

			break
		}

		close := strings.Index(rest[open:], "}}")
		if close < 0 {
			b.WriteString(rest)

			break
		}

		b.WriteString(rest[:open])

		token := rest[open+2 : open+close]
		rest = rest[open+close+2:]

		variable, err := r.parser.Parse(token)
		if err != nil {
			continue
		}

		if value, ok := r.resolve(variable); ok {
			b.WriteString(value)
		}
	}

	return b.String()
}

// RenderSettings expands merge fields in every action setting value.
func (r *Renderer) RenderSettings(settings map[string]string) map[string]string {
	if settings == nil {
		return nil
	}

	rendered := make(map[string]string, len(settings))

	for key, value := range settings {
		rendered[key] = r.Render(value)
	}

	return rendered
}
